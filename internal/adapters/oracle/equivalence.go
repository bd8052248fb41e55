package oracle

import (
	"context"
	"errors"
	"math/rand"

	"github.com/marten/tabula/internal/domain/automaton"
	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

var (
	errNotDFA   = errors.New("oracle: exact equivalence requires a DFA hypothesis")
	errNotMealy = errors.New("oracle: exact equivalence requires a Mealy hypothesis")
)

// RandomWords approximates equivalence by sampling random words and
// comparing the hypothesis against a membership oracle. It is seeded, so a
// run is reproducible. Not safe for concurrent use.
type RandomWords[D comparable] struct {
	oracle   ports.MembershipOracle[D]
	maxTests int
	minLen   int
	maxLen   int
	rng      *rand.Rand
}

// NewRandomWords creates a random-words equivalence oracle that asks up to
// maxTests words with lengths drawn uniformly from [minLen, maxLen].
func NewRandomWords[D comparable](oracle ports.MembershipOracle[D], maxTests, minLen, maxLen int, seed int64) *RandomWords[D] {
	if minLen < 0 {
		minLen = 0
	}
	if maxLen < minLen {
		maxLen = minLen
	}
	return &RandomWords[D]{
		oracle:   oracle,
		maxTests: maxTests,
		minLen:   minLen,
		maxLen:   maxLen,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

func (r *RandomWords[D]) FindCounterexample(ctx context.Context, hypothesis ports.SuffixOutput[D], alphabet *word.Alphabet) (*ports.Counterexample[D], error) {
	if alphabet.Size() == 0 {
		return nil, nil
	}
	for i := 0; i < r.maxTests; i++ {
		n := r.minLen + r.rng.Intn(r.maxLen-r.minLen+1)
		syms := make([]string, n)
		for j := range syms {
			syms[j] = alphabet.Symbol(r.rng.Intn(alphabet.Size()))
		}
		w := word.New(syms...)

		expected, err := r.oracle.Answer(ctx, word.Epsilon, w)
		if err != nil {
			return nil, err
		}
		if hypothesis.SuffixOutput(word.Epsilon, w) != expected {
			return &ports.Counterexample[D]{Input: w, Output: expected}, nil
		}
	}
	return nil, nil
}

// statePair tracks a reached (target, hypothesis) state pair and the access
// word that reached it during the product exploration.
type statePair struct {
	target int
	hyp    int
	access word.Word
}

// ExactDFA decides equivalence against a known target DFA by breadth-first
// exploration of the product automaton over the learned alphabet.
type ExactDFA struct {
	target *automaton.DFA
}

// NewExactDFA creates an exact equivalence oracle over the given target.
func NewExactDFA(target *automaton.DFA) *ExactDFA {
	return &ExactDFA{target: target}
}

func (e *ExactDFA) FindCounterexample(ctx context.Context, hypothesis ports.SuffixOutput[bool], alphabet *word.Alphabet) (*ports.Counterexample[bool], error) {
	hyp, ok := hypothesis.(*automaton.DFA)
	if !ok {
		return nil, errNotDFA
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := statePair{target: e.target.Initial(), hyp: hyp.Initial(), access: word.Epsilon}
	queue := []statePair{start}
	seen := map[[2]int]bool{{start.target, start.hyp}: true}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		if e.target.Accept(p.target) != hyp.Accept(p.hyp) {
			return &ports.Counterexample[bool]{Input: p.access, Output: e.target.Accept(p.target)}, nil
		}
		for i := 0; i < alphabet.Size(); i++ {
			sym := alphabet.Symbol(i)
			ti, ok := e.target.Alphabet().Index(sym)
			if !ok {
				continue
			}
			next := statePair{
				target: e.target.Transition(p.target, ti),
				hyp:    hyp.Transition(p.hyp, i),
				access: p.access.Append(sym),
			}
			if next.target < 0 || next.hyp < 0 {
				continue
			}
			if key := [2]int{next.target, next.hyp}; !seen[key] {
				seen[key] = true
				queue = append(queue, next)
			}
		}
	}
	return nil, nil
}

// ExactMealy decides equivalence against a known target Mealy machine by
// breadth-first exploration of the product machine, comparing transition
// outputs.
type ExactMealy struct {
	target *automaton.Mealy
}

// NewExactMealy creates an exact equivalence oracle over the given target.
func NewExactMealy(target *automaton.Mealy) *ExactMealy {
	return &ExactMealy{target: target}
}

func (e *ExactMealy) FindCounterexample(ctx context.Context, hypothesis ports.SuffixOutput[string], alphabet *word.Alphabet) (*ports.Counterexample[string], error) {
	hyp, ok := hypothesis.(*automaton.Mealy)
	if !ok {
		return nil, errNotMealy
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := statePair{target: e.target.Initial(), hyp: hyp.Initial(), access: word.Epsilon}
	queue := []statePair{start}
	seen := map[[2]int]bool{{start.target, start.hyp}: true}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		for i := 0; i < alphabet.Size(); i++ {
			sym := alphabet.Symbol(i)
			ti, ok := e.target.Alphabet().Index(sym)
			if !ok {
				continue
			}
			if e.target.TransitionOutput(p.target, ti) != hyp.TransitionOutput(p.hyp, i) {
				input := p.access.Append(sym)
				return &ports.Counterexample[string]{
					Input:  input,
					Output: e.target.SuffixOutput(word.Epsilon, input),
				}, nil
			}
			next := statePair{
				target: e.target.Transition(p.target, ti),
				hyp:    hyp.Transition(p.hyp, i),
				access: p.access.Append(sym),
			}
			if next.target < 0 || next.hyp < 0 {
				continue
			}
			if key := [2]int{next.target, next.hyp}; !seen[key] {
				seen[key] = true
				queue = append(queue, next)
			}
		}
	}
	return nil, nil
}
