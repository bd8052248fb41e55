package ports

import "encoding/json"

// RunStore persists learning runs to durable storage. The backing store
// (bbolt) keys each run by its ID. Concurrent reads are safe; writes are
// serialized by the adapter.
//
// Crash safety: SaveRun must be transactional. A crash mid-write must not
// corrupt a previously committed run.
type RunStore interface {
	// SaveRun persists a run record, overwriting any prior record with the
	// same ID.
	SaveRun(run *RunRecord) error

	// LoadRun retrieves a run record. Returns nil, nil if no such run exists.
	LoadRun(id string) (*RunRecord, error)

	// ListRuns returns all persisted runs, most recently updated first.
	ListRuns() ([]*RunRecord, error)

	// DeleteRun removes a run. Idempotent: deleting a nonexistent run is not
	// an error.
	DeleteRun(id string) error

	Close() error
}

// RunRecord is the persisted state of one learning run: enough to resume a
// suspended learner and to inspect or export its last hypothesis.
//
// Snapshot holds the serialized observation-table snapshot. Its concrete
// shape depends on the output domain of the learner (bool cells for DFA,
// string cells for Mealy), so it is stored as raw JSON and decoded by the
// resuming learner, which knows the domain from Kind.
type RunRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"` // "dfa" or "mealy"
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`

	// Experiment is the raw experiment definition the run was started from,
	// kept verbatim so a resume sees exactly the original configuration.
	Experiment []byte `json:"experiment"`

	Rounds  int    `json:"rounds"`
	Queries uint64 `json:"queries"`
	States  int    `json:"states"`
	Done    bool   `json:"done"`

	Snapshot      json.RawMessage `json:"snapshot,omitempty"`
	HypothesisDOT string          `json:"hypothesis_dot,omitempty"`
}
