// Package oracle implements the membership- and equivalence-oracle ports:
// simulators over in-memory target machines, plus the cache, counter, limit
// and parallel-batch decorators that compose into an oracle chain.
package oracle

import (
	"context"

	"github.com/marten/tabula/internal/domain/automaton"
	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

// answerSequentially implements a batch call in terms of single answers,
// preserving input order. It stops at the first error, leaving the batch
// unusable, which is fine: callers discard all answers on error.
func answerSequentially[D comparable](ctx context.Context, o ports.MembershipOracle[D], batch []*ports.Query[D]) error {
	for _, q := range batch {
		a, err := o.Answer(ctx, q.Prefix, q.Suffix)
		if err != nil {
			return err
		}
		q.Answer = a
	}
	return nil
}

// DFASimulator answers membership queries by running a target DFA.
// Safe for concurrent use: the target is never mutated.
type DFASimulator struct {
	target *automaton.DFA
}

// NewDFASimulator creates a simulator oracle over the given target.
func NewDFASimulator(target *automaton.DFA) *DFASimulator {
	return &DFASimulator{target: target}
}

func (s *DFASimulator) Answer(ctx context.Context, prefix, suffix word.Word) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.target.SuffixOutput(prefix, suffix), nil
}

func (s *DFASimulator) AnswerBatch(ctx context.Context, batch []*ports.Query[bool]) error {
	return answerSequentially[bool](ctx, s, batch)
}

// MealySimulator answers membership queries by running a target Mealy
// machine. Safe for concurrent use.
type MealySimulator struct {
	target *automaton.Mealy
}

// NewMealySimulator creates a simulator oracle over the given target.
func NewMealySimulator(target *automaton.Mealy) *MealySimulator {
	return &MealySimulator{target: target}
}

func (s *MealySimulator) Answer(ctx context.Context, prefix, suffix word.Word) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.target.SuffixOutput(prefix, suffix), nil
}

func (s *MealySimulator) AnswerBatch(ctx context.Context, batch []*ports.Query[string]) error {
	return answerSequentially[string](ctx, s, batch)
}
