// Package ports defines the interfaces (contracts) that adapters must implement.
// These are the boundaries of the hexagonal architecture. Domain logic depends
// only on these interfaces, never on concrete implementations.
package ports

import (
	"context"
	"errors"

	"github.com/marten/tabula/internal/domain/word"
)

// ErrQueryLimit is returned by query-limited membership oracles once their
// budget is exhausted. The learning core propagates it unmodified out of any
// in-flight batch; no partial batch result is ever committed to a table.
var ErrQueryLimit = errors.New("membership query limit exhausted")

// Query is one membership query, split into a prefix and a suffix part.
// For DFA-style learning the answer is acceptance of prefix·suffix. For
// Mealy-style learning the answer is the output produced by the suffix
// after the target has processed the prefix.
type Query[D comparable] struct {
	Prefix word.Word
	Suffix word.Word

	// Answer is filled in by the oracle.
	Answer D
}

// Input returns the full input word prefix·suffix.
func (q *Query[D]) Input() word.Word { return q.Prefix.Concat(q.Suffix) }

// MembershipOracle answers membership queries against the target system.
// Answers must be deterministic for a fixed target within one learning run.
//
// AnswerBatch fills in the Answer field of every query in the batch and
// returns only when all of them are answered. Implementations may reorder
// the actual dispatch (e.g. across a worker pool) but must preserve
// query-to-answer correspondence. If any query fails (ErrQueryLimit, context
// cancellation), the whole batch fails and no answer may be consumed.
type MembershipOracle[D comparable] interface {
	Answer(ctx context.Context, prefix, suffix word.Word) (D, error)
	AnswerBatch(ctx context.Context, batch []*Query[D]) error
}

// SuffixOutput is the output concept shared by hypotheses and targets: the
// answer a machine gives to a (prefix, suffix) membership query. Hypothesis
// automata implement it, which lets counterexample checks and equivalence
// testing treat the hypothesis and the oracle uniformly.
type SuffixOutput[D comparable] interface {
	SuffixOutput(prefix, suffix word.Word) D
}

// Counterexample is an input word on which the target's output (Output)
// disagrees with the current hypothesis.
type Counterexample[D comparable] struct {
	Input  word.Word
	Output D
}

// EquivalenceOracle searches for a counterexample separating a hypothesis
// from the target. A nil counterexample with a nil error means no
// counterexample was found within the oracle's test budget.
type EquivalenceOracle[D comparable] interface {
	FindCounterexample(ctx context.Context, hypothesis SuffixOutput[D], alphabet *word.Alphabet) (*Counterexample[D], error)
}
