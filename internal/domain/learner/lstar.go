// Package learner implements the L*-style observation-table learning engine:
// the completion loop alternating closedness and consistency repair, the
// counterexample handling strategies, and hypothesis construction.
//
// The engine is generic over the output domain D (bool for DFA learning,
// string for Mealy learning) and the hypothesis machine type M. Concrete
// variants plug in a Builder, a CexHandler and a ClosingStrategy; the
// fixpoint control structure is shared.
//
// Thread safety: NOT safe for concurrent use. The caller must serialize
// access to one learner per learning run.
package learner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/marten/tabula/internal/domain/table"
	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

var (
	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("learner already started")

	// ErrNotStarted is returned by Refine and Suspend before Start.
	ErrNotStarted = errors.New("learner not started")

	// ErrBogusInconsistency indicates an internal defect: an inconsistency
	// witness whose successor rows do not actually differ in any column.
	ErrBogusInconsistency = errors.New("bogus inconsistency: successor rows do not differ")
)

// ClosingStrategy selects, for each unclosed equivalence class, the
// long-prefix row to promote to a short-prefix row.
type ClosingStrategy[D comparable] func(unclosed [][]*table.Row[D]) []*table.Row[D]

// CloseFirst promotes the first row (in creation order) of each unclosed
// class.
func CloseFirst[D comparable](unclosed [][]*table.Row[D]) []*table.Row[D] {
	closing := make([]*table.Row[D], 0, len(unclosed))
	for _, group := range unclosed {
		closing = append(closing, group[0])
	}
	return closing
}

// CloseShortest promotes the row with the shortest label of each unclosed
// class, ties broken by creation order.
func CloseShortest[D comparable](unclosed [][]*table.Row[D]) []*table.Row[D] {
	closing := make([]*table.Row[D], 0, len(unclosed))
	for _, group := range unclosed {
		best := group[0]
		for _, r := range group[1:] {
			if r.Label().Len() < best.Label().Len() {
				best = r
			}
		}
		closing = append(closing, best)
	}
	return closing
}

// Learner is the generic observation-table learning engine. It owns the
// table for the duration of a run and drives it to a closed, consistent
// state after initialization, after every counterexample, and after every
// alphabet growth.
type Learner[D comparable, M ports.SuffixOutput[D]] struct {
	alphabet *word.Alphabet
	oracle   ports.MembershipOracle[D]
	tbl      *table.Table[D]
	builder  Builder[D, M]
	cex      CexHandler[D]
	closing  ClosingStrategy[D]

	checkConsistency bool
	verify           bool

	initialPrefixes []word.Word
	initialSuffixes []word.Word

	// symbolSuffixes, when set, yields the suffix columns a newly added
	// alphabet symbol requires before the hypothesis can be rebuilt (the
	// Mealy builder reads transition outputs from one-symbol columns).
	symbolSuffixes func(symbol string) []word.Word

	hyp     M
	started bool
	log     *zap.Logger
}

// Option configures a learner.
type Option[D comparable, M ports.SuffixOutput[D]] func(*Learner[D, M])

// WithCexHandler selects the counterexample handling strategy.
func WithCexHandler[D comparable, M ports.SuffixOutput[D]](h CexHandler[D]) Option[D, M] {
	return func(l *Learner[D, M]) { l.cex = h }
}

// WithClosingStrategy selects the closedness-repair tie-break policy.
func WithClosingStrategy[D comparable, M ports.SuffixOutput[D]](s ClosingStrategy[D]) Option[D, M] {
	return func(l *Learner[D, M]) { l.closing = s }
}

// WithConsistencyCheck enables or disables consistency repair. Disabling it
// is only sound for variants whose counterexample handler never lets two
// short rows share content.
func WithConsistencyCheck[D comparable, M ports.SuffixOutput[D]](on bool) Option[D, M] {
	return func(l *Learner[D, M]) { l.checkConsistency = on }
}

// WithVerifiedInconsistencies makes the completion loop re-validate every
// reported inconsistency against the oracle before repairing it, correcting
// stale cells in place. This is the dynamic/incremental variant's defense
// against observations that predate a target change between runs.
func WithVerifiedInconsistencies[D comparable, M ports.SuffixOutput[D]]() Option[D, M] {
	return func(l *Learner[D, M]) { l.verify = true }
}

// WithLogger attaches a logger; the default is a nop logger.
func WithLogger[D comparable, M ports.SuffixOutput[D]](log *zap.Logger) Option[D, M] {
	return func(l *Learner[D, M]) { l.log = log }
}

func newLearner[D comparable, M ports.SuffixOutput[D]](alphabet *word.Alphabet, oracle ports.MembershipOracle[D],
	builder Builder[D, M], initialSuffixes []word.Word, opts ...Option[D, M]) *Learner[D, M] {

	l := &Learner[D, M]{
		alphabet:         alphabet,
		oracle:           oracle,
		tbl:              table.New[D](alphabet),
		builder:          builder,
		cex:              ClassicCex[D]{},
		closing:          CloseFirst[D],
		checkConsistency: true,
		initialPrefixes:  []word.Word{word.Epsilon},
		initialSuffixes:  initialSuffixes,
		log:              zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start initializes the table from the initial prefixes and suffixes, runs
// the completion loop, and constructs the first hypothesis.
func (l *Learner[D, M]) Start(ctx context.Context) error {
	if l.started {
		return ErrAlreadyStarted
	}

	unclosed, err := l.tbl.Initialize(ctx, l.initialPrefixes, l.initialSuffixes, l.oracle)
	if err != nil {
		return err
	}
	if err := l.complete(ctx, unclosed, l.tbl.InitialConsistencyCheckRequired()); err != nil {
		return err
	}
	if err := l.rebuild(); err != nil {
		return err
	}
	l.started = true
	l.log.Debug("learning started",
		zap.Int("rows", l.tbl.NumRows()),
		zap.Int("classes", l.tbl.NumDistinctRows()))
	return nil
}

// Refine incorporates a counterexample. It first checks that the
// counterexample still contradicts the current hypothesis; a stale one is
// absorbed as a no-op returning false. Returns true if the hypothesis
// changed.
func (l *Learner[D, M]) Refine(ctx context.Context, cex *ports.Counterexample[D]) (bool, error) {
	if !l.started {
		return false, ErrNotStarted
	}
	if cex == nil {
		return false, nil
	}
	if l.hyp.SuffixOutput(word.Epsilon, cex.Input) == cex.Output {
		l.log.Debug("stale counterexample", zap.Stringer("input", cex.Input))
		return false, nil
	}

	unclosed, err := l.cex.Handle(ctx, cex, l.tbl, l.hyp, l.oracle)
	if err != nil {
		return false, err
	}
	if err := l.complete(ctx, unclosed, true); err != nil {
		return false, err
	}
	if err := l.rebuild(); err != nil {
		return false, err
	}
	l.log.Debug("hypothesis refined",
		zap.Stringer("counterexample", cex.Input),
		zap.Int("rows", l.tbl.NumRows()),
		zap.Int("classes", l.tbl.NumDistinctRows()))
	return true, nil
}

// AddAlphabetSymbol grows the alphabet mid-run. Idempotent for known
// symbols. If learning has started, the table is re-closed and the
// hypothesis rebuilt so every state has a defined transition for the new
// symbol.
func (l *Learner[D, M]) AddAlphabetSymbol(ctx context.Context, symbol string) error {
	known := l.alphabet.Contains(symbol)
	unclosed, err := l.tbl.AddAlphabetSymbol(ctx, symbol, l.oracle)
	if err != nil {
		return err
	}
	if !l.started {
		return nil
	}
	if !known && l.symbolSuffixes != nil {
		var fresh []word.Word
		for _, s := range l.symbolSuffixes(symbol) {
			if _, ok := l.tbl.SuffixIndex(s); !ok {
				fresh = append(fresh, s)
			}
		}
		if len(fresh) > 0 {
			// A suffix addition recomputes every class, superseding the
			// earlier unclosedness result.
			unclosed, err = l.tbl.AddSuffixes(ctx, fresh, l.oracle)
			if err != nil {
				return err
			}
		}
	}
	if err := l.complete(ctx, unclosed, true); err != nil {
		return err
	}
	return l.rebuild()
}

// Hypothesis returns the current hypothesis machine. Only valid after Start.
func (l *Learner[D, M]) Hypothesis() M { return l.hyp }

// Table returns the underlying observation table for diagnostics and
// serialization. Callers must treat it as read-only.
func (l *Learner[D, M]) Table() *table.Table[D] { return l.tbl }

// Started reports whether Start has completed.
func (l *Learner[D, M]) Started() bool { return l.started }

// Suspend captures a snapshot of the table for persistence. The snapshot is
// an owned deep copy; the learner remains usable.
func (l *Learner[D, M]) Suspend() (*table.Snapshot[D], error) {
	if !l.started {
		return nil, ErrNotStarted
	}
	return l.tbl.Snapshot(), nil
}

func (l *Learner[D, M]) rebuild() error {
	hyp, err := l.builder.Build(l.tbl)
	if err != nil {
		return err
	}
	l.hyp = hyp
	return nil
}

// complete drives the table to a simultaneously closed and consistent
// state: promote a representative of every unclosed class until closed,
// then repair the first inconsistency by adding a distinguishing suffix
// (which may reopen unclosedness) and repeat. Content monotonicity
// guarantees classes only split, so the loop terminates.
func (l *Learner[D, M]) complete(ctx context.Context, unclosed [][]*table.Row[D], checkConsistency bool) error {
	check := checkConsistency && l.checkConsistency
	for {
		for len(unclosed) > 0 {
			closing := l.closing(unclosed)
			l.log.Debug("closing table", zap.Int("classes", len(unclosed)))
			var err error
			unclosed, err = l.tbl.Promote(ctx, closing, l.oracle)
			if err != nil {
				return err
			}
		}
		if !check {
			return nil
		}

		inc := l.tbl.FindInconsistency()
		if inc != nil && l.verify {
			verified, corrected, err := l.verifyInconsistency(ctx, inc)
			if err != nil {
				return err
			}
			if verified == nil {
				// A stale cell was corrected; the correction may have
				// reopened unclosedness, so feed it back into the loop.
				unclosed = corrected
				continue
			}
			inc = verified
		}
		if inc == nil {
			return nil
		}

		idx := l.tbl.DistinguishingSuffixIndex(inc)
		if idx == table.NoDistinguishingSuffix {
			return fmt.Errorf("%w: rows %v and %v under %q",
				ErrBogusInconsistency, inc.FirstRow.Label(), inc.SecondRow.Label(), inc.Symbol)
		}
		suffix := l.tbl.SuffixAt(idx).Prepend(inc.Symbol)
		l.log.Debug("repairing inconsistency", zap.Stringer("suffix", suffix))
		var err error
		unclosed, err = l.tbl.AddSuffix(ctx, suffix, l.oracle)
		if err != nil {
			return err
		}
	}
}

// verifyInconsistency re-asks the oracle for every cell of the four rows an
// inconsistency witness touches. The first stale cell found is corrected and
// the witness discarded (nil returned with the resulting unclosed classes);
// if all cells check out, the witness stands.
func (l *Learner[D, M]) verifyInconsistency(ctx context.Context, inc *table.Inconsistency[D]) (*table.Inconsistency[D], [][]*table.Row[D], error) {
	rows := []*table.Row[D]{
		inc.FirstRow,
		inc.SecondRow,
		l.tbl.Successor(inc.FirstRow, inc.SymbolIndex),
		l.tbl.Successor(inc.SecondRow, inc.SymbolIndex),
	}
	for _, r := range rows {
		for i, suffix := range l.tbl.Suffixes() {
			correct, err := l.oracle.Answer(ctx, r.Label(), suffix)
			if err != nil {
				return nil, nil, err
			}
			if correct == l.tbl.Cell(r, i) {
				continue
			}
			l.log.Warn("correcting stale observation",
				zap.Stringer("prefix", r.Label()),
				zap.Stringer("suffix", suffix))
			unclosed, err := l.tbl.CorrectCell(r.Label(), suffix, correct)
			if err != nil {
				return nil, nil, err
			}
			return nil, unclosed, nil
		}
	}
	return inc, nil, nil
}
