package automaton

import (
	"strings"

	"github.com/marten/tabula/internal/domain/word"
)

// OutputSep joins the per-symbol outputs of a Mealy machine into the single
// string value used as the learning output domain. Both the simulator oracle
// and the hypothesis use it, so the two sides always agree on encoding.
const OutputSep = ","

// JoinOutputs encodes a sequence of output symbols as one output value.
func JoinOutputs(outputs []string) string { return strings.Join(outputs, OutputSep) }

// Mealy is a total deterministic Mealy machine: every transition carries an
// output symbol.
type Mealy struct {
	alphabet *word.Alphabet
	initial  int
	next     [][]int
	out      [][]string
}

// NewMealy creates a Mealy machine with the given number of states and no
// transitions wired yet (two-pass construction mirrors NewDFA).
func NewMealy(alphabet *word.Alphabet, numStates, initial int) *Mealy {
	m := &Mealy{
		alphabet: alphabet,
		initial:  initial,
		next:     make([][]int, numStates),
		out:      make([][]string, numStates),
	}
	for i := range m.next {
		m.next[i] = make([]int, alphabet.Size())
		m.out[i] = make([]string, alphabet.Size())
		for j := range m.next[i] {
			m.next[i][j] = -1
		}
	}
	return m
}

// Alphabet returns the machine's input alphabet.
func (m *Mealy) Alphabet() *word.Alphabet { return m.alphabet }

// NumStates returns the number of states.
func (m *Mealy) NumStates() int { return len(m.next) }

// Initial returns the initial state.
func (m *Mealy) Initial() int { return m.initial }

// SetTransition wires the transition from state on the symbol at symbolIndex,
// producing output.
func (m *Mealy) SetTransition(state, symbolIndex, target int, output string) {
	m.next[state][symbolIndex] = target
	m.out[state][symbolIndex] = output
}

// Transition returns the target of the transition from state on the symbol
// at symbolIndex, or -1 if unwired.
func (m *Mealy) Transition(state, symbolIndex int) int { return m.next[state][symbolIndex] }

// TransitionOutput returns the output of the transition from state on the
// symbol at symbolIndex.
func (m *Mealy) TransitionOutput(state, symbolIndex int) string { return m.out[state][symbolIndex] }

// Run returns the state reached from the initial state by the given word,
// or -1 if the word contains a symbol outside the alphabet.
func (m *Mealy) Run(w word.Word) int {
	state := m.initial
	for i := 0; i < w.Len(); i++ {
		idx, ok := m.alphabet.Index(w.At(i))
		if !ok {
			return -1
		}
		state = m.next[state][idx]
	}
	return state
}

// OutputsFrom returns the per-symbol outputs produced by feeding w from the
// given state.
func (m *Mealy) OutputsFrom(state int, w word.Word) []string {
	outputs := make([]string, 0, w.Len())
	for i := 0; i < w.Len(); i++ {
		idx, ok := m.alphabet.Index(w.At(i))
		if !ok {
			return nil
		}
		outputs = append(outputs, m.out[state][idx])
		state = m.next[state][idx]
	}
	return outputs
}

// SuffixOutput answers a (prefix, suffix) membership query: the output word
// produced by the suffix after the machine has processed the prefix.
func (m *Mealy) SuffixOutput(prefix, suffix word.Word) string {
	state := m.Run(prefix)
	if state < 0 {
		return ""
	}
	return JoinOutputs(m.OutputsFrom(state, suffix))
}
