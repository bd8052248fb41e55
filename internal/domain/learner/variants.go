package learner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/marten/tabula/internal/domain/automaton"
	"github.com/marten/tabula/internal/domain/table"
	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

// DFALearner learns a DFA over bool membership answers.
type DFALearner = Learner[bool, *automaton.DFA]

// MealyLearner learns a Mealy machine over suffix-output answers.
type MealyLearner = Learner[string, *automaton.Mealy]

// NewDFA creates a DFA learner. The table starts from the empty prefix and
// the empty suffix, as in classic L*.
func NewDFA(alphabet *word.Alphabet, oracle ports.MembershipOracle[bool],
	opts ...Option[bool, *automaton.DFA]) *DFALearner {

	return newLearner[bool, *automaton.DFA](alphabet, oracle, DFABuilder{},
		[]word.Word{word.Epsilon}, opts...)
}

// NewMealy creates a Mealy learner. The initial suffix set contains one
// one-symbol word per alphabet symbol, which makes every transition output
// well defined; an empty alphabet is a configuration defect.
func NewMealy(alphabet *word.Alphabet, oracle ports.MembershipOracle[string],
	opts ...Option[string, *automaton.Mealy]) (*MealyLearner, error) {

	if alphabet.Size() == 0 {
		return nil, fmt.Errorf("mealy learner: alphabet must be non-empty")
	}
	suffixes := make([]word.Word, alphabet.Size())
	for i := range suffixes {
		suffixes[i] = word.New(alphabet.Symbol(i))
	}
	l := newLearner[string, *automaton.Mealy](alphabet, oracle, MealyBuilder{},
		suffixes, opts...)
	l.symbolSuffixes = func(symbol string) []word.Word {
		return []word.Word{word.New(symbol)}
	}
	return l, nil
}

// ResumeDFA rebuilds a DFA learner from a persisted snapshot and drives it
// back to a closed, consistent state. Symbols the alphabet gained since the
// snapshot are incorporated before the hypothesis is rebuilt.
func ResumeDFA(ctx context.Context, alphabet *word.Alphabet, oracle ports.MembershipOracle[bool],
	snap *table.Snapshot[bool], opts ...Option[bool, *automaton.DFA]) (*DFALearner, error) {

	l := NewDFA(alphabet, oracle, opts...)
	return l, resume(ctx, l, snap, nil)
}

// ResumeMealy rebuilds a Mealy learner from a persisted snapshot. Symbols
// added since the snapshot need their one-symbol suffix column before the
// builder can read transition outputs, so those are ensured as well.
func ResumeMealy(ctx context.Context, alphabet *word.Alphabet, oracle ports.MembershipOracle[string],
	snap *table.Snapshot[string], opts ...Option[string, *automaton.Mealy]) (*MealyLearner, error) {

	l, err := NewMealy(alphabet, oracle, opts...)
	if err != nil {
		return nil, err
	}
	var required []word.Word
	for i := len(snap.Alphabet); i < alphabet.Size(); i++ {
		required = append(required, word.New(alphabet.Symbol(i)))
	}
	return l, resume(ctx, l, snap, required)
}

// resume swaps in a table restored from the snapshot (a fresh deep copy,
// never an alias of the suspended table), grows it to cover any alphabet
// symbols and required suffixes added since suspension, and re-runs the
// completion loop.
func resume[D comparable, M ports.SuffixOutput[D]](ctx context.Context, l *Learner[D, M], snap *table.Snapshot[D], requiredSuffixes []word.Word) error {
	tbl, err := table.Restore(l.alphabet, snap, l.log)
	if err != nil {
		return err
	}
	l.tbl = tbl

	var unclosed [][]*table.Row[D]
	if l.alphabet.Size() > len(snap.Alphabet) {
		l.log.Info("alphabet grew since snapshot",
			zap.Int("stored", len(snap.Alphabet)),
			zap.Int("current", l.alphabet.Size()))
		for i := len(snap.Alphabet); i < l.alphabet.Size(); i++ {
			unclosed, err = tbl.AddAlphabetSymbol(ctx, l.alphabet.Symbol(i), l.oracle)
			if err != nil {
				return err
			}
		}
	} else {
		unclosed = tbl.FindUnclosedRows()
	}

	if len(requiredSuffixes) > 0 {
		more, err := tbl.AddSuffixes(ctx, requiredSuffixes, l.oracle)
		if err != nil {
			return err
		}
		// A suffix addition supersedes the earlier unclosedness scan.
		unclosed = more
	}

	if err := l.complete(ctx, unclosed, true); err != nil {
		return err
	}
	if err := l.rebuild(); err != nil {
		return err
	}
	l.started = true
	return nil
}
