package table

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/marten/tabula/internal/domain/word"
)

// Snapshot is a serializable copy of an observation table, sufficient to
// resume a suspended learning run. Rows appear in arena order, so row IDs
// are implied by position.
type Snapshot[D comparable] struct {
	Alphabet []string         `json:"alphabet"`
	Suffixes [][]string       `json:"suffixes"`
	Rows     []RowSnapshot[D] `json:"rows"`

	InitialConsistencyCheck bool `json:"initial_consistency_check,omitempty"`
}

// RowSnapshot is the serialized form of one row. Successors holds arena
// indices per alphabet position and is nil for long-prefix rows.
type RowSnapshot[D comparable] struct {
	Label      []string `json:"label"`
	Short      bool     `json:"short,omitempty"`
	Contents   []D      `json:"contents"`
	Successors []int    `json:"successors,omitempty"`
}

// Snapshot captures the table's full state as an owned deep copy. The
// snapshot shares nothing with the live table and may be serialized or
// restored independently.
func (t *Table[D]) Snapshot() *Snapshot[D] {
	snap := &Snapshot[D]{
		Alphabet:                t.alphabet.Symbols(),
		InitialConsistencyCheck: t.initialConsistencyCheck,
	}
	for _, s := range t.suffixes {
		snap.Suffixes = append(snap.Suffixes, s.Symbols())
	}
	for _, r := range t.rows {
		rs := RowSnapshot[D]{
			Label: r.label.Symbols(),
			Short: r.short,
		}
		rs.Contents = append(rs.Contents, r.Contents()...)
		if r.short {
			rs.Successors = make([]int, len(r.succs))
			for i, id := range r.succs {
				rs.Successors[i] = int(id)
			}
		}
		snap.Rows = append(snap.Rows, rs)
	}
	return snap
}

// Restore rebuilds a table from a snapshot over the given alphabet.
//
// The alphabet must be a prefix-compatible extension of the snapshot's
// stored alphabet: every stored symbol must still be present. If the shared
// prefix matches by set but insertion order drifted, Restore warns and
// continues, since symbols appended later are still consistent. Symbols the
// current alphabet has beyond the stored ones are left uncovered; the
// resuming learner grows the table via AddAlphabetSymbol.
func Restore[D comparable](alphabet *word.Alphabet, snap *Snapshot[D], log *zap.Logger) (*Table[D], error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(snap.Alphabet) > alphabet.Size() {
		return nil, fmt.Errorf("table: resumed alphabet has %d symbols, snapshot requires %d",
			alphabet.Size(), len(snap.Alphabet))
	}
	// perm maps stored successor slot i to the current alphabet index of
	// snap.Alphabet[i]; successors were recorded against the stored order
	// and the rest of the table indexes by the current one.
	perm := make([]int, len(snap.Alphabet))
	orderDrift := false
	for i, sym := range snap.Alphabet {
		idx, ok := alphabet.Index(sym)
		if !ok {
			return nil, fmt.Errorf("table: resumed alphabet is missing stored symbol %q", sym)
		}
		if idx >= len(snap.Alphabet) {
			return nil, fmt.Errorf("table: resumed alphabet interleaves new symbols before stored symbol %q", sym)
		}
		perm[i] = idx
		if idx != i {
			orderDrift = true
		}
	}
	if orderDrift {
		log.Warn("resumed alphabet order differs from snapshot; remapping successors",
			zap.Strings("stored", snap.Alphabet),
			zap.Strings("current", alphabet.Symbols()))
	}

	t := New[D](alphabet)
	t.alphabetSize = len(snap.Alphabet)
	t.initialConsistencyCheck = snap.InitialConsistencyCheck

	for _, s := range snap.Suffixes {
		t.addSuffixWord(word.New(s...))
	}

	for _, rs := range snap.Rows {
		r := &Row[D]{id: RowID(len(t.rows)), label: word.New(rs.Label...)}
		t.rows = append(t.rows, r)
		t.rowByLabel[r.label.Key()] = r
		if rs.Short {
			if len(rs.Successors) != len(snap.Alphabet) {
				return nil, fmt.Errorf("table: snapshot row %d has %d successors, want %d",
					int(r.id), len(rs.Successors), len(snap.Alphabet))
			}
			r.short = true
			r.succs = make([]RowID, len(rs.Successors))
			for i, id := range rs.Successors {
				r.succs[perm[i]] = RowID(id)
			}
			t.shortRows = append(t.shortRows, r)
		} else {
			t.longRows = append(t.longRows, r)
		}
	}

	// Reattach rows to classes in arena order.
	for i, rs := range snap.Rows {
		r := t.rows[i]
		contents := make([]D, len(rs.Contents))
		copy(contents, rs.Contents)
		t.processContents(r, contents)
	}

	for i, rs := range snap.Rows {
		if rs.Short {
			for _, succ := range rs.Successors {
				if succ < 0 || succ >= len(t.rows) {
					return nil, fmt.Errorf("table: snapshot row %d references unknown successor %d", i, succ)
				}
			}
		}
		if len(rs.Contents) != len(t.suffixes) {
			return nil, fmt.Errorf("table: snapshot row %d has %d cells, want %d", i, len(rs.Contents), len(t.suffixes))
		}
	}

	return t, nil
}
