package learner

import (
	"context"

	"github.com/marten/tabula/internal/domain/table"
	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

// CexHandler incorporates a counterexample into the table by adding new
// distinguishing suffixes. Handle must only be invoked when the
// counterexample genuinely contradicts the hypothesis; callers verify that
// precondition, handlers may assume it.
type CexHandler[D comparable] interface {
	Handle(ctx context.Context, cex *ports.Counterexample[D], t *table.Table[D],
		hypothesis ports.SuffixOutput[D], oracle ports.MembershipOracle[D]) ([][]*table.Row[D], error)
}

// ClassicCex adds every non-empty suffix of the counterexample word as a new
// column. Always correct but may add redundant suffixes; the table never
// shrinks.
type ClassicCex[D comparable] struct{}

func (ClassicCex[D]) Handle(ctx context.Context, cex *ports.Counterexample[D], t *table.Table[D],
	_ ports.SuffixOutput[D], oracle ports.MembershipOracle[D]) ([][]*table.Row[D], error) {

	n := cex.Input.Len()
	suffixes := make([]word.Word, 0, n)
	for k := 1; k <= n; k++ {
		suffixes = append(suffixes, cex.Input.Suffix(k))
	}
	return t.AddSuffixes(ctx, suffixes, oracle)
}

// RivestSchapireCex binary-searches the counterexample for the minimal split
// point where the oracle and the hypothesis disagree, and adds exactly one
// distinguishing suffix. Costs O(log n) extra membership queries but keeps
// the table small.
type RivestSchapireCex[D comparable] struct{}

func (RivestSchapireCex[D]) Handle(ctx context.Context, cex *ports.Counterexample[D], t *table.Table[D],
	hypothesis ports.SuffixOutput[D], oracle ports.MembershipOracle[D]) ([][]*table.Row[D], error) {

	n := cex.Input.Len()

	// agrees reports whether, after replacing the first i symbols of the
	// counterexample by the access sequence of the state they reach, the
	// oracle still agrees with the hypothesis on the remainder. At i=0 they
	// disagree (precondition); at i=n they agree, since access sequences are
	// table rows whose cells came from the oracle.
	agrees := func(i int) (bool, error) {
		access, err := t.TransformAccessSequence(cex.Input.Prefix(i))
		if err != nil {
			return false, err
		}
		suffix := cex.Input.Suffix(n - i)
		probe, err := oracle.Answer(ctx, access, suffix)
		if err != nil {
			return false, err
		}
		return probe == hypothesis.SuffixOutput(access, suffix), nil
	}

	low, high := 0, n
	for high-low > 1 {
		mid := low + (high-low)/2
		eq, err := agrees(mid)
		if err != nil {
			return nil, err
		}
		if eq {
			high = mid
		} else {
			low = mid
		}
	}

	return t.AddSuffix(ctx, cex.Input.Suffix(n-high), oracle)
}
