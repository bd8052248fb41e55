package automaton

import (
	"fmt"
	"strings"
)

// DOT renders the DFA in Graphviz dot format. Accepting states are drawn
// with a double circle; the initial state is marked by an entry arrow.
func (d *DFA) DOT() string {
	var b strings.Builder
	b.WriteString("digraph dfa {\n")
	b.WriteString("\trankdir=LR;\n")
	b.WriteString("\t__start [shape=point];\n")
	for s := 0; s < d.NumStates(); s++ {
		shape := "circle"
		if d.accept[s] {
			shape = "doublecircle"
		}
		fmt.Fprintf(&b, "\tq%d [shape=%s label=\"q%d\"];\n", s, shape, s)
	}
	fmt.Fprintf(&b, "\t__start -> q%d;\n", d.initial)
	for s := 0; s < d.NumStates(); s++ {
		for i := 0; i < d.alphabet.Size(); i++ {
			if d.next[s][i] < 0 {
				continue
			}
			fmt.Fprintf(&b, "\tq%d -> q%d [label=%q];\n", s, d.next[s][i], d.alphabet.Symbol(i))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// DOT renders the Mealy machine in Graphviz dot format; edges are labeled
// "input / output".
func (m *Mealy) DOT() string {
	var b strings.Builder
	b.WriteString("digraph mealy {\n")
	b.WriteString("\trankdir=LR;\n")
	b.WriteString("\t__start [shape=point];\n")
	for s := 0; s < m.NumStates(); s++ {
		fmt.Fprintf(&b, "\tq%d [shape=circle label=\"q%d\"];\n", s, s)
	}
	fmt.Fprintf(&b, "\t__start -> q%d;\n", m.initial)
	for s := 0; s < m.NumStates(); s++ {
		for i := 0; i < m.alphabet.Size(); i++ {
			if m.next[s][i] < 0 {
				continue
			}
			fmt.Fprintf(&b, "\tq%d -> q%d [label=%q];\n",
				s, m.next[s][i], m.alphabet.Symbol(i)+" / "+m.out[s][i])
		}
	}
	b.WriteString("}\n")
	return b.String()
}
