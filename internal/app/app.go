// Package app wires the adapters and the learning engine together: it loads
// experiment definitions, assembles the membership-oracle chain, drives the
// learn/refine loop and persists run state after every round.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marten/tabula/internal/adapters/oracle"
	"github.com/marten/tabula/internal/domain/automaton"
	"github.com/marten/tabula/internal/domain/learner"
	"github.com/marten/tabula/internal/domain/table"
	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

// App runs experiments. The store is optional: a nil store disables
// persistence (one-shot runs).
type App struct {
	store ports.RunStore
	log   *zap.Logger
}

// New creates an App. Pass a nil store to skip persistence.
func New(store ports.RunStore, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{store: store, log: log}
}

// Result summarizes a finished (or budget-exhausted) run.
type Result struct {
	RunID   string
	Rounds  int
	Queries uint64
	States  int
	DOT     string
	Done    bool
}

// Run executes an experiment from scratch and returns the final hypothesis
// summary. The raw experiment bytes are persisted with the run so a resume
// sees the original definition.
func (a *App) Run(ctx context.Context, exp *Experiment, raw []byte) (*Result, error) {
	alpha, err := exp.BuildAlphabet()
	if err != nil {
		return nil, err
	}

	switch exp.Kind {
	case KindDFA:
		target := exp.BuildDFA(alpha)
		chain, counter := buildChain[bool](exp, oracle.NewDFASimulator(target))
		l := learner.NewDFA(alpha, chain, learnerOptions[bool, *automaton.DFA](exp, a.log)...)
		eq, err := equivalenceOracle[bool](exp, target, nil, chain)
		if err != nil {
			return nil, err
		}
		if err := l.Start(ctx); err != nil {
			return nil, err
		}
		return drive(ctx, a, exp, raw, l, eq, alpha, counter, describeDFA, 0, uuid.NewString())

	case KindMealy:
		target := exp.BuildMealy(alpha)
		chain, counter := buildChain[string](exp, oracle.NewMealySimulator(target))
		l, err := learner.NewMealy(alpha, chain, learnerOptions[string, *automaton.Mealy](exp, a.log)...)
		if err != nil {
			return nil, err
		}
		eq, err := equivalenceOracle[string](exp, nil, target, chain)
		if err != nil {
			return nil, err
		}
		if err := l.Start(ctx); err != nil {
			return nil, err
		}
		return drive(ctx, a, exp, raw, l, eq, alpha, counter, describeMealy, 0, uuid.NewString())

	default:
		return nil, fmt.Errorf("unknown machine kind %q", exp.Kind)
	}
}

// Resume restarts a persisted run from its snapshot and continues refining
// until equivalence or an error.
func (a *App) Resume(ctx context.Context, rec *ports.RunRecord) (*Result, error) {
	if rec == nil {
		return nil, fmt.Errorf("nil run record")
	}
	if len(rec.Snapshot) == 0 {
		return nil, fmt.Errorf("run %s has no snapshot to resume from", rec.ID)
	}
	exp, err := Parse(rec.Experiment)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", rec.ID, err)
	}
	alpha, err := exp.BuildAlphabet()
	if err != nil {
		return nil, err
	}

	switch rec.Kind {
	case KindDFA:
		var snap table.Snapshot[bool]
		if err := json.Unmarshal(rec.Snapshot, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot of run %s: %w", rec.ID, err)
		}
		target := exp.BuildDFA(alpha)
		chain, counter := buildChain[bool](exp, oracle.NewDFASimulator(target))
		l, err := learner.ResumeDFA(ctx, alpha, chain, &snap, learnerOptions[bool, *automaton.DFA](exp, a.log)...)
		if err != nil {
			return nil, err
		}
		eq, err := equivalenceOracle[bool](exp, target, nil, chain)
		if err != nil {
			return nil, err
		}
		return drive(ctx, a, exp, rec.Experiment, l, eq, alpha, counter, describeDFA, rec.Rounds, rec.ID)

	case KindMealy:
		var snap table.Snapshot[string]
		if err := json.Unmarshal(rec.Snapshot, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot of run %s: %w", rec.ID, err)
		}
		target := exp.BuildMealy(alpha)
		chain, counter := buildChain[string](exp, oracle.NewMealySimulator(target))
		l, err := learner.ResumeMealy(ctx, alpha, chain, &snap, learnerOptions[string, *automaton.Mealy](exp, a.log)...)
		if err != nil {
			return nil, err
		}
		eq, err := equivalenceOracle[string](exp, nil, target, chain)
		if err != nil {
			return nil, err
		}
		return drive(ctx, a, exp, rec.Experiment, l, eq, alpha, counter, describeMealy, rec.Rounds, rec.ID)

	default:
		return nil, fmt.Errorf("run %s has unknown kind %q", rec.ID, rec.Kind)
	}
}

// buildChain assembles the membership-oracle chain around a simulator:
// counter, then optional cache, then optional limit, then optional parallel
// batch splitting. The counter sits innermost so it reports queries the
// target actually answered, not cache hits.
func buildChain[D comparable](exp *Experiment, sim ports.MembershipOracle[D]) (ports.MembershipOracle[D], *oracle.Counter[D]) {
	counter := oracle.NewCounter[D](sim)
	var chain ports.MembershipOracle[D] = counter
	if exp.Oracle.Cache {
		chain = oracle.NewCache[D](chain)
	}
	if exp.Oracle.MaxQueries > 0 {
		chain = oracle.NewLimit[D](chain, exp.Oracle.MaxQueries)
	}
	if exp.Oracle.Workers > 1 {
		chain = oracle.NewParallel[D](chain, exp.Oracle.Workers)
	}
	return chain, counter
}

// equivalenceOracle builds the configured equivalence oracle. Exactly one of
// dfa and mealy is non-nil, matching the experiment kind.
func equivalenceOracle[D comparable](exp *Experiment, dfa *automaton.DFA, mealy *automaton.Mealy,
	chain ports.MembershipOracle[D]) (ports.EquivalenceOracle[D], error) {

	switch exp.Equivalence.Method {
	case "random":
		return oracle.NewRandomWords[D](chain, exp.Equivalence.MaxTests,
			exp.Equivalence.MinLength, exp.Equivalence.MaxLength, exp.Equivalence.Seed), nil
	case "exact":
		var eq any
		if dfa != nil {
			eq = oracle.NewExactDFA(dfa)
		} else {
			eq = oracle.NewExactMealy(mealy)
		}
		typed, ok := eq.(ports.EquivalenceOracle[D])
		if !ok {
			return nil, fmt.Errorf("exact equivalence oracle does not match output domain")
		}
		return typed, nil
	default:
		return nil, fmt.Errorf("unknown equivalence method %q", exp.Equivalence.Method)
	}
}

// learnerOptions translates the experiment's learner section.
func learnerOptions[D comparable, M ports.SuffixOutput[D]](exp *Experiment, log *zap.Logger) []learner.Option[D, M] {
	opts := []learner.Option[D, M]{learner.WithLogger[D, M](log)}
	if exp.Learner.Cex == "rs" {
		opts = append(opts, learner.WithCexHandler[D, M](learner.RivestSchapireCex[D]{}))
	}
	if exp.Learner.Closing == "shortest" {
		opts = append(opts, learner.WithClosingStrategy[D, M](learner.CloseShortest[D]))
	}
	if exp.Learner.ConsistencyCheck != nil {
		opts = append(opts, learner.WithConsistencyCheck[D, M](*exp.Learner.ConsistencyCheck))
	}
	if exp.Learner.Verify {
		opts = append(opts, learner.WithVerifiedInconsistencies[D, M]())
	}
	return opts
}

func describeDFA(d *automaton.DFA) (int, string)     { return d.NumStates(), d.DOT() }
func describeMealy(m *automaton.Mealy) (int, string) { return m.NumStates(), m.DOT() }

// drive runs the refinement loop: propose a hypothesis, persist the round,
// ask for a counterexample, refine, repeat. It returns the last summary even
// when the query budget runs out mid-round, so the persisted snapshot can be
// resumed with a larger budget.
func drive[D comparable, M ports.SuffixOutput[D]](ctx context.Context, a *App, exp *Experiment, raw []byte,
	l *learner.Learner[D, M], eq ports.EquivalenceOracle[D], alpha *word.Alphabet,
	counter *oracle.Counter[D], describe func(M) (int, string), startRound int, runID string) (*Result, error) {

	created := time.Now().Unix()
	res := &Result{RunID: runID, Rounds: startRound}

	for {
		res.Rounds++
		hyp := l.Hypothesis()
		res.States, res.DOT = describe(hyp)
		res.Queries = counter.Count()

		a.log.Info("hypothesis proposed",
			zap.String("run", runID),
			zap.Int("round", res.Rounds),
			zap.Int("states", res.States),
			zap.Uint64("queries", res.Queries))

		if err := persistRun(a, exp, raw, l, res, created); err != nil {
			return res, err
		}

		cex, err := eq.FindCounterexample(ctx, hyp, alpha)
		if err != nil {
			return res, err
		}
		if cex == nil {
			res.Done = true
			a.log.Info("run finished",
				zap.String("run", runID),
				zap.Int("rounds", res.Rounds),
				zap.Int("states", res.States),
				zap.Uint64("queries", counter.Count()))
			res.Queries = counter.Count()
			return res, persistRun(a, exp, raw, l, res, created)
		}

		a.log.Info("counterexample found",
			zap.String("run", runID),
			zap.Stringer("input", cex.Input))

		refined, err := l.Refine(ctx, cex)
		if err != nil {
			return res, err
		}
		if !refined {
			// The equivalence oracle returned a word the hypothesis already
			// answers correctly. Treat it as convergence rather than looping.
			a.log.Warn("stale counterexample, stopping",
				zap.String("run", runID),
				zap.Stringer("input", cex.Input))
			res.Done = true
			res.Queries = counter.Count()
			return res, persistRun(a, exp, raw, l, res, created)
		}
	}
}

func persistRun[D comparable, M ports.SuffixOutput[D]](a *App, exp *Experiment, raw []byte,
	l *learner.Learner[D, M], res *Result, created int64) error {

	if a.store == nil {
		return nil
	}
	snap, err := l.Suspend()
	if err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	rec := &ports.RunRecord{
		ID:         res.RunID,
		Name:       exp.Name,
		Kind:       exp.Kind,
		CreatedAt:  created,
		UpdatedAt:  time.Now().Unix(),
		Experiment: raw,
		Rounds:     res.Rounds,
		Queries:    res.Queries,
		States:     res.States,
		Done:       res.Done,
		Snapshot:   data,

		HypothesisDOT: res.DOT,
	}
	return a.store.SaveRun(rec)
}
