// Package table implements the observation table: the central data structure
// of L*-style learning. The table maps (prefix, suffix) pairs to membership
// query answers, partitions its rows into equivalence classes by content,
// and exposes the closedness and consistency queries plus every mutation the
// completion loop and the counterexample handlers need.
//
// Rows are kept in an arena and addressed by stable integer IDs; successor
// links between rows are arena indices, never pointers owned by another row,
// because the successor graph may contain cycles.
//
// Thread safety: NOT safe for concurrent use. The caller must serialize access.
package table

import (
	"fmt"
	"strings"

	"github.com/marten/tabula/internal/domain/word"
)

// RowID is a stable identifier into the table's row arena. IDs are assigned
// in creation order and never reused.
type RowID int

// Row represents one explored prefix. A short-prefix row is a candidate
// automaton state and carries one successor row per alphabet symbol; a
// long-prefix row is a candidate transition target awaiting closure.
type Row[D comparable] struct {
	id    RowID
	label word.Word
	short bool
	succs []RowID // successor row per alphabet index; short rows only
	class *class[D]
}

// ID returns the row's arena identifier.
func (r *Row[D]) ID() RowID { return r.id }

// Label returns the prefix word this row represents.
func (r *Row[D]) Label() word.Word { return r.label }

// IsShort reports whether this is a short-prefix row.
func (r *Row[D]) IsShort() bool { return r.short }

// Contents returns the row's content vector in suffix order. The returned
// slice is shared with the row's equivalence class and must not be modified.
func (r *Row[D]) Contents() []D {
	if r.class == nil {
		return nil
	}
	return r.class.contents
}

func (r *Row[D]) makeShort(alphabetSize int) {
	if r.short {
		return
	}
	r.short = true
	r.succs = make([]RowID, alphabetSize)
	for i := range r.succs {
		r.succs[i] = -1
	}
}

func (r *Row[D]) ensureInputCapacity(alphabetSize int) {
	for len(r.succs) < alphabetSize {
		r.succs = append(r.succs, -1)
	}
}

// class is a row-equivalence class: the set of rows currently sharing an
// identical content vector. Rows are kept in attachment order so that every
// derived grouping is deterministic.
type class[D comparable] struct {
	contents []D
	key      string
	rows     []*Row[D]
}

func (c *class[D]) attach(r *Row[D]) {
	c.rows = append(c.rows, r)
	r.class = c
}

func (c *class[D]) detach(r *Row[D]) {
	for i, row := range c.rows {
		if row == r {
			c.rows = append(c.rows[:i], c.rows[i+1:]...)
			break
		}
	}
}

// longRows returns the long-prefix members of the class in attachment order.
func (c *class[D]) longRows() []*Row[D] {
	var out []*Row[D]
	for _, r := range c.rows {
		if !r.short {
			out = append(out, r)
		}
	}
	return out
}

// contentKey encodes a content vector as a deterministic map key.
func contentKey[D comparable](contents []D) string {
	var b strings.Builder
	for _, v := range contents {
		fmt.Fprintf(&b, "%v\x1f", v)
	}
	return b.String()
}

// Inconsistency is a witness of a consistency defect: two short-prefix rows
// with equal content whose successors under Symbol have different content.
type Inconsistency[D comparable] struct {
	FirstRow    *Row[D]
	SecondRow   *Row[D]
	Symbol      string
	SymbolIndex int
}
