package learner

import (
	"fmt"

	"github.com/marten/tabula/internal/domain/automaton"
	"github.com/marten/tabula/internal/domain/table"
	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

// Builder derives a hypothesis machine from a closed table. Implementations
// decide how state and transition properties are read out of rows; the
// engine stays agnostic of the machine kind.
type Builder[D comparable, M ports.SuffixOutput[D]] interface {
	Build(t *table.Table[D]) (M, error)
}

// hypothesisStates assigns one dense state index per distinct short-prefix
// row class, in short-row creation order, tolerating (and merging) multiple
// short rows that transiently share a class. Returns the representative rows
// in state order and the initial state.
func hypothesisStates[D comparable](t *table.Table[D]) (reps []*table.Row[D], stateOf map[*table.Row[D]]int, initial int, err error) {
	stateOf = make(map[*table.Row[D]]int)
	for _, sp := range t.ShortRows() {
		rep := t.ShortRepresentative(sp)
		if rep == nil {
			return nil, nil, 0, fmt.Errorf("hypothesis: short row %v has no representative", sp.Label())
		}
		if _, ok := stateOf[rep]; !ok {
			stateOf[rep] = len(reps)
			reps = append(reps, rep)
		}
	}
	if len(reps) == 0 {
		return nil, nil, 0, fmt.Errorf("hypothesis: table has no short rows")
	}

	initRep := t.ShortRepresentative(t.ShortRows()[0])
	return reps, stateOf, stateOf[initRep], nil
}

// target resolves the state reached from rep under the symbol at index i.
func target[D comparable](t *table.Table[D], stateOf map[*table.Row[D]]int, rep *table.Row[D], i int) (int, error) {
	succ := t.Successor(rep, i)
	succRep := t.ShortRepresentative(succ)
	if succRep == nil {
		return 0, fmt.Errorf("hypothesis: table is not closed at %v", succ.Label())
	}
	state, ok := stateOf[succRep]
	if !ok {
		return 0, fmt.Errorf("hypothesis: successor %v maps to unknown state", succRep.Label())
	}
	return state, nil
}

// DFABuilder derives a DFA: one state per short-row class, acceptance read
// from the empty-suffix column.
type DFABuilder struct{}

// Build constructs the hypothesis in two passes: all states first (targets
// may reference states discovered later), then transitions.
func (DFABuilder) Build(t *table.Table[bool]) (*automaton.DFA, error) {
	emptyIdx, ok := t.SuffixIndex(word.Epsilon)
	if !ok {
		return nil, fmt.Errorf("hypothesis: table has no empty-word suffix")
	}

	reps, stateOf, initial, err := hypothesisStates(t)
	if err != nil {
		return nil, err
	}

	d := automaton.NewDFA(t.Alphabet(), len(reps), initial)
	for s, rep := range reps {
		d.SetAccept(s, t.Cell(rep, emptyIdx))
		for i := 0; i < t.Alphabet().Size(); i++ {
			to, err := target(t, stateOf, rep, i)
			if err != nil {
				return nil, err
			}
			d.SetTransition(s, i, to)
		}
	}
	return d, nil
}

// MealyBuilder derives a Mealy machine: transition outputs are read from the
// one-symbol suffix column matching the triggering symbol.
type MealyBuilder struct{}

func (MealyBuilder) Build(t *table.Table[string]) (*automaton.Mealy, error) {
	alphabet := t.Alphabet()
	symIdx := make([]int, alphabet.Size())
	for i := 0; i < alphabet.Size(); i++ {
		idx, ok := t.SuffixIndex(word.New(alphabet.Symbol(i)))
		if !ok {
			return nil, fmt.Errorf("hypothesis: table has no suffix for symbol %q", alphabet.Symbol(i))
		}
		symIdx[i] = idx
	}

	reps, stateOf, initial, err := hypothesisStates(t)
	if err != nil {
		return nil, err
	}

	m := automaton.NewMealy(alphabet, len(reps), initial)
	for s, rep := range reps {
		for i := 0; i < alphabet.Size(); i++ {
			to, err := target(t, stateOf, rep, i)
			if err != nil {
				return nil, err
			}
			m.SetTransition(s, i, to, t.Cell(rep, symIdx[i]))
		}
	}
	return m, nil
}
