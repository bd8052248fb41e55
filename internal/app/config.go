package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marten/tabula/internal/domain/automaton"
	"github.com/marten/tabula/internal/domain/word"
)

// Machine kinds.
const (
	KindDFA   = "dfa"
	KindMealy = "mealy"
)

// Experiment is a YAML experiment definition: the target machine to learn,
// the learner settings, the oracle budgets and the equivalence method.
type Experiment struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Alphabet []string `yaml:"alphabet"`

	Target      TargetSpec      `yaml:"target"`
	Learner     LearnerSpec     `yaml:"learner"`
	Oracle      OracleSpec      `yaml:"oracle"`
	Equivalence EquivalenceSpec `yaml:"equivalence"`
}

// TargetSpec describes the machine the simulated oracle answers from.
type TargetSpec struct {
	Initial string      `yaml:"initial"`
	States  []StateSpec `yaml:"states"`
}

// StateSpec is one target state. Accept is only meaningful for DFA targets.
type StateSpec struct {
	Name        string                    `yaml:"name"`
	Accept      bool                      `yaml:"accept"`
	Transitions map[string]TransitionSpec `yaml:"transitions"`
}

// TransitionSpec is one outgoing transition. In YAML it is either a bare
// state name (DFA) or a {to, out} mapping (Mealy).
type TransitionSpec struct {
	To  string `yaml:"to"`
	Out string `yaml:"out"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (ts *TransitionSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		ts.To = value.Value
		ts.Out = ""
		return nil
	}
	type raw TransitionSpec
	return value.Decode((*raw)(ts))
}

// LearnerSpec selects the learner strategies.
type LearnerSpec struct {
	Cex              string `yaml:"cex"`     // "classic" or "rs"
	Closing          string `yaml:"closing"` // "first" or "shortest"
	ConsistencyCheck *bool  `yaml:"consistency_check"`
	Verify           bool   `yaml:"verify_inconsistencies"`
}

// OracleSpec bounds and shapes the membership oracle chain.
type OracleSpec struct {
	MaxQueries uint64 `yaml:"max_queries"` // 0 = unlimited
	Workers    int    `yaml:"workers"`     // 0 or 1 = sequential
	Cache      bool   `yaml:"cache"`
}

// EquivalenceSpec selects the equivalence oracle.
type EquivalenceSpec struct {
	Method    string `yaml:"method"` // "exact" or "random"
	MaxTests  int    `yaml:"max_tests"`
	MinLength int    `yaml:"min_length"`
	MaxLength int    `yaml:"max_length"`
	Seed      int64  `yaml:"seed"`
}

// Load reads and validates an experiment file. The raw bytes are returned
// alongside so runs can persist the definition verbatim.
func Load(path string) (*Experiment, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read experiment: %w", err)
	}
	exp, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if exp.Name == "" {
		exp.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return exp, data, nil
}

// Parse decodes an experiment definition, applies defaults and validates it.
func Parse(data []byte) (*Experiment, error) {
	var exp Experiment
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parse experiment: %w", err)
	}
	exp.applyDefaults()
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return &exp, nil
}

func (e *Experiment) applyDefaults() {
	if e.Learner.Cex == "" {
		e.Learner.Cex = "classic"
	}
	if e.Learner.Closing == "" {
		e.Learner.Closing = "first"
	}
	if e.Equivalence.Method == "" {
		e.Equivalence.Method = "exact"
	}
	if e.Equivalence.MaxTests == 0 {
		e.Equivalence.MaxTests = 1000
	}
	if e.Equivalence.MaxLength == 0 {
		e.Equivalence.MaxLength = 2 * len(e.Target.States)
	}
	if e.Equivalence.Seed == 0 {
		e.Equivalence.Seed = 1
	}
}

// Validate checks the experiment for structural defects: unknown kinds and
// strategies, alphabet mismatches, dangling transitions, partial machines.
func (e *Experiment) Validate() error {
	if e.Kind != KindDFA && e.Kind != KindMealy {
		return fmt.Errorf("kind must be %q or %q, got %q", KindDFA, KindMealy, e.Kind)
	}
	if len(e.Alphabet) == 0 {
		return fmt.Errorf("alphabet must be non-empty")
	}
	switch e.Learner.Cex {
	case "classic", "rs":
	default:
		return fmt.Errorf("learner.cex must be \"classic\" or \"rs\", got %q", e.Learner.Cex)
	}
	switch e.Learner.Closing {
	case "first", "shortest":
	default:
		return fmt.Errorf("learner.closing must be \"first\" or \"shortest\", got %q", e.Learner.Closing)
	}
	switch e.Equivalence.Method {
	case "exact", "random":
	default:
		return fmt.Errorf("equivalence.method must be \"exact\" or \"random\", got %q", e.Equivalence.Method)
	}
	if e.Equivalence.MinLength < 0 || e.Equivalence.MaxLength < e.Equivalence.MinLength {
		return fmt.Errorf("equivalence lengths invalid: min %d, max %d",
			e.Equivalence.MinLength, e.Equivalence.MaxLength)
	}
	if e.Oracle.Workers < 0 {
		return fmt.Errorf("oracle.workers must be >= 0, got %d", e.Oracle.Workers)
	}

	if len(e.Target.States) == 0 {
		return fmt.Errorf("target must define at least one state")
	}
	names := make(map[string]bool, len(e.Target.States))
	for _, st := range e.Target.States {
		if st.Name == "" {
			return fmt.Errorf("target state without a name")
		}
		if names[st.Name] {
			return fmt.Errorf("duplicate target state %q", st.Name)
		}
		names[st.Name] = true
	}
	if !names[e.Target.Initial] {
		return fmt.Errorf("target.initial %q is not a defined state", e.Target.Initial)
	}

	// Learned machines are total: every state must cover every symbol.
	for _, st := range e.Target.States {
		for _, sym := range e.Alphabet {
			tr, ok := st.Transitions[sym]
			if !ok {
				return fmt.Errorf("state %q has no transition on %q", st.Name, sym)
			}
			if !names[tr.To] {
				return fmt.Errorf("state %q: transition on %q targets unknown state %q", st.Name, sym, tr.To)
			}
			if e.Kind == KindMealy && tr.Out == "" {
				return fmt.Errorf("state %q: transition on %q has no output", st.Name, sym)
			}
		}
		for sym := range st.Transitions {
			if !contains(e.Alphabet, sym) {
				return fmt.Errorf("state %q: transition on %q, which is not in the alphabet", st.Name, sym)
			}
		}
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// BuildAlphabet constructs the learning alphabet in declaration order.
func (e *Experiment) BuildAlphabet() (*word.Alphabet, error) {
	return word.NewAlphabet(e.Alphabet...)
}

// BuildDFA materializes the target DFA. Call only after Validate.
func (e *Experiment) BuildDFA(alpha *word.Alphabet) *automaton.DFA {
	stateIdx := e.stateIndices()
	d := automaton.NewDFA(alpha, len(e.Target.States), stateIdx[e.Target.Initial])
	for i, st := range e.Target.States {
		d.SetAccept(i, st.Accept)
		for sym, tr := range st.Transitions {
			si, _ := alpha.Index(sym)
			d.SetTransition(i, si, stateIdx[tr.To])
		}
	}
	return d
}

// BuildMealy materializes the target Mealy machine. Call only after Validate.
func (e *Experiment) BuildMealy(alpha *word.Alphabet) *automaton.Mealy {
	stateIdx := e.stateIndices()
	m := automaton.NewMealy(alpha, len(e.Target.States), stateIdx[e.Target.Initial])
	for i, st := range e.Target.States {
		for sym, tr := range st.Transitions {
			si, _ := alpha.Index(sym)
			m.SetTransition(i, si, stateIdx[tr.To], tr.Out)
		}
	}
	return m
}

func (e *Experiment) stateIndices() map[string]int {
	idx := make(map[string]int, len(e.Target.States))
	for i, st := range e.Target.States {
		idx[st.Name] = i
	}
	return idx
}
