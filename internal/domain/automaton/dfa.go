// Package automaton provides the hypothesis machine types produced by the
// learning engine: deterministic finite automata and Mealy machines, both
// total over their alphabet, plus DOT rendering for export.
package automaton

import (
	"github.com/marten/tabula/internal/domain/word"
)

// DFA is a total deterministic finite automaton. States are dense integers;
// transitions are indexed by state and alphabet symbol index.
type DFA struct {
	alphabet *word.Alphabet
	initial  int
	accept   []bool
	next     [][]int
}

// NewDFA creates a DFA with the given number of states, all rejecting, with
// no transitions wired yet (two-pass construction: callers create states
// first, then wire transitions).
func NewDFA(alphabet *word.Alphabet, numStates, initial int) *DFA {
	d := &DFA{
		alphabet: alphabet,
		initial:  initial,
		accept:   make([]bool, numStates),
		next:     make([][]int, numStates),
	}
	for i := range d.next {
		d.next[i] = make([]int, alphabet.Size())
		for j := range d.next[i] {
			d.next[i][j] = -1
		}
	}
	return d
}

// Alphabet returns the automaton's input alphabet.
func (d *DFA) Alphabet() *word.Alphabet { return d.alphabet }

// NumStates returns the number of states.
func (d *DFA) NumStates() int { return len(d.accept) }

// Initial returns the initial state.
func (d *DFA) Initial() int { return d.initial }

// SetAccept marks a state accepting or rejecting.
func (d *DFA) SetAccept(state int, accept bool) { d.accept[state] = accept }

// Accept reports whether a state is accepting.
func (d *DFA) Accept(state int) bool { return d.accept[state] }

// SetTransition wires the transition from state on the symbol at symbolIndex.
func (d *DFA) SetTransition(state, symbolIndex, target int) {
	d.next[state][symbolIndex] = target
}

// Transition returns the target of the transition from state on the symbol
// at symbolIndex, or -1 if unwired.
func (d *DFA) Transition(state, symbolIndex int) int { return d.next[state][symbolIndex] }

// Run returns the state reached from the initial state by the given word,
// or -1 if the word contains a symbol outside the alphabet.
func (d *DFA) Run(w word.Word) int {
	state := d.initial
	for i := 0; i < w.Len(); i++ {
		idx, ok := d.alphabet.Index(w.At(i))
		if !ok {
			return -1
		}
		state = d.next[state][idx]
	}
	return state
}

// Accepts reports whether the automaton accepts the given word.
func (d *DFA) Accepts(w word.Word) bool {
	state := d.Run(w)
	return state >= 0 && d.accept[state]
}

// SuffixOutput answers a (prefix, suffix) membership query: acceptance of
// prefix·suffix. This is the same contract a membership oracle satisfies for
// DFA-style learning.
func (d *DFA) SuffixOutput(prefix, suffix word.Word) bool {
	return d.Accepts(prefix.Concat(suffix))
}
