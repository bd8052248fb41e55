package table

import (
	"context"
	"errors"
	"fmt"

	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

var (
	// ErrAlreadyInitialized is returned when Initialize is called twice.
	ErrAlreadyInitialized = errors.New("observation table already initialized")

	// ErrNotInitialized is returned by mutations that require a prior
	// Initialize call.
	ErrNotInitialized = errors.New("observation table not initialized")
)

// Table is the observation table. It owns the suffix list, the short- and
// long-prefix rows, the cell contents and the row-equivalence bookkeeping.
//
// Every mutator preserves the content-monotonicity invariant: a row's
// content vector is only ever appended to, so equivalence classes only ever
// split, never merge. This is what guarantees termination of the completion
// loop.
type Table[D comparable] struct {
	alphabet *word.Alphabet

	// alphabetSize is the alphabet prefix covered by successor arrays. It
	// lags behind alphabet.Size() until AddAlphabetSymbol catches up.
	alphabetSize int

	rows       []*Row[D] // arena; RowID indexes into this
	shortRows  []*Row[D]
	longRows   []*Row[D]
	rowByLabel map[string]*Row[D]

	classes map[string]*class[D] // content key -> equivalence class

	suffixes  []word.Word
	suffixIdx map[string]int

	initialConsistencyCheck bool
}

// New creates an empty observation table over the given alphabet.
func New[D comparable](alphabet *word.Alphabet) *Table[D] {
	return &Table[D]{
		alphabet:   alphabet,
		rowByLabel: make(map[string]*Row[D]),
		classes:    make(map[string]*class[D]),
		suffixIdx:  make(map[string]int),
	}
}

// Alphabet returns the table's alphabet.
func (t *Table[D]) Alphabet() *word.Alphabet { return t.alphabet }

// IsInitialized reports whether Initialize has completed.
func (t *Table[D]) IsInitialized() bool { return len(t.rows) > 0 }

// InitialConsistencyCheckRequired reports whether two initial short-prefix
// rows turned out to share content, so the first completion pass must run a
// consistency check even if no suffix was added since.
func (t *Table[D]) InitialConsistencyCheckRequired() bool { return t.initialConsistencyCheck }

// Initialize creates short-prefix rows for the given initial prefixes (the
// first of which must be the empty word, and which must be prefix-closed),
// long-prefix rows for every one-symbol extension, queries all cells in one
// batch, and returns the equivalence classes of long-prefix rows that have
// no matching short-prefix row.
func (t *Table[D]) Initialize(ctx context.Context, initialPrefixes, initialSuffixes []word.Word, oracle ports.MembershipOracle[D]) ([][]*Row[D], error) {
	if t.IsInitialized() {
		return nil, ErrAlreadyInitialized
	}
	if len(initialSuffixes) == 0 {
		return nil, fmt.Errorf("table: initial suffixes must be non-empty")
	}
	if len(initialPrefixes) == 0 || !initialPrefixes[0].IsEmpty() {
		return nil, fmt.Errorf("table: first initial prefix must be the empty word")
	}
	if !prefixClosed(initialPrefixes) {
		return nil, fmt.Errorf("table: initial prefixes are not prefix-closed")
	}

	t.alphabetSize = t.alphabet.Size()

	for _, s := range initialSuffixes {
		t.addSuffixWord(s)
	}

	var spRows []*Row[D]
	for _, p := range initialPrefixes {
		spRows = append(spRows, t.createShortRow(p))
	}

	var lpRows []*Row[D]
	for _, sp := range spRows {
		for i := 0; i < t.alphabetSize; i++ {
			lp := sp.label.Append(t.alphabet.Symbol(i))
			succ := t.rowByLabel[lp.Key()]
			if succ == nil {
				succ = t.createLongRow(lp)
				lpRows = append(lpRows, succ)
			}
			sp.succs[i] = succ.id
		}
	}

	answers, err := t.queryRows(ctx, append(append([]*Row[D]{}, spRows...), lpRows...), t.suffixes, oracle)
	if err != nil {
		return nil, err
	}

	n := len(t.suffixes)
	for i, sp := range spRows {
		if !t.processContents(sp, answers[i*n:(i+1)*n]) {
			t.initialConsistencyCheck = true
		}
	}
	off := len(spRows) * n
	for i, lp := range lpRows {
		t.processContents(lp, answers[off+i*n:off+(i+1)*n])
	}

	return t.unclosedClasses(), nil
}

// FindUnclosedRows groups long-prefix rows by content and returns the groups
// that have no short-prefix representative, in row-creation order.
func (t *Table[D]) FindUnclosedRows() [][]*Row[D] { return t.unclosedClasses() }

// Promote converts the given long-prefix rows into short-prefix rows,
// creates their one-symbol extensions, queries the fresh rows in one batch,
// and returns the equivalence classes that remain (or became) unclosed.
func (t *Table[D]) Promote(ctx context.Context, rows []*Row[D], oracle ports.MembershipOracle[D]) ([][]*Row[D], error) {
	if !t.IsInitialized() {
		return nil, ErrNotInitialized
	}

	var fresh []*Row[D]
	for _, r := range rows {
		if r.short {
			continue
		}
		t.makeShort(r)
		for i := 0; i < t.alphabetSize; i++ {
			lp := r.label.Append(t.alphabet.Symbol(i))
			succ := t.rowByLabel[lp.Key()]
			if succ == nil {
				succ = t.createLongRow(lp)
				fresh = append(fresh, succ)
			}
			r.succs[i] = succ.id
		}
	}

	answers, err := t.queryRows(ctx, fresh, t.suffixes, oracle)
	if err != nil {
		return nil, err
	}

	n := len(t.suffixes)
	for i, lp := range fresh {
		t.processContents(lp, answers[i*n:(i+1)*n])
	}

	return t.unclosedClasses(), nil
}

// AddSuffix appends one distinguishing suffix. A suffix that is already
// present is silently ignored.
func (t *Table[D]) AddSuffix(ctx context.Context, suffix word.Word, oracle ports.MembershipOracle[D]) ([][]*Row[D], error) {
	return t.AddSuffixes(ctx, []word.Word{suffix}, oracle)
}

// AddSuffixes appends the given suffixes, queries every existing row against
// each genuinely new suffix in one batch, extends all content vectors
// (append-only), and returns the classes that became unclosed as a result.
func (t *Table[D]) AddSuffixes(ctx context.Context, suffixes []word.Word, oracle ports.MembershipOracle[D]) ([][]*Row[D], error) {
	if !t.IsInitialized() {
		return nil, ErrNotInitialized
	}

	var fresh []word.Word
	seen := make(map[string]struct{})
	for _, s := range suffixes {
		if _, dup := t.suffixIdx[s.Key()]; dup {
			continue
		}
		if _, dup := seen[s.Key()]; dup {
			continue
		}
		seen[s.Key()] = struct{}{}
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	answers, err := t.queryRows(ctx, t.rows, fresh, oracle)
	if err != nil {
		return nil, err
	}

	oldCount := len(t.suffixes)
	for _, s := range fresh {
		t.addSuffixWord(s)
	}

	n := len(fresh)
	for i, r := range t.rows {
		contents := make([]D, 0, oldCount+n)
		contents = append(contents, r.Contents()[:oldCount]...)
		contents = append(contents, answers[i*n:(i+1)*n]...)
		t.processContents(r, contents)
	}

	return t.unclosedClasses(), nil
}

// AddAlphabetSymbol extends the alphabet by the given symbol, creates the
// missing successor long-prefix rows of every short-prefix row, queries them
// in one batch, and returns the classes that became unclosed. Adding a
// symbol that is already covered is a no-op.
func (t *Table[D]) AddAlphabetSymbol(ctx context.Context, symbol string, oracle ports.MembershipOracle[D]) ([][]*Row[D], error) {
	if _, err := t.alphabet.Add(symbol); err != nil {
		return nil, err
	}
	if !t.IsInitialized() {
		return nil, nil
	}
	if t.alphabet.Size() <= t.alphabetSize {
		return nil, nil
	}

	var fresh []*Row[D]
	newSize := t.alphabet.Size()
	for i := t.alphabetSize; i < newSize; i++ {
		sym := t.alphabet.Symbol(i)
		for _, sp := range t.shortRows {
			sp.ensureInputCapacity(newSize)
			lp := sp.label.Append(sym)
			succ := t.rowByLabel[lp.Key()]
			if succ == nil {
				succ = t.createLongRow(lp)
				fresh = append(fresh, succ)
			}
			sp.succs[i] = succ.id
		}
	}
	t.alphabetSize = newSize

	answers, err := t.queryRows(ctx, fresh, t.suffixes, oracle)
	if err != nil {
		return nil, err
	}

	n := len(t.suffixes)
	for i, lp := range fresh {
		t.processContents(lp, answers[i*n:(i+1)*n])
	}

	return t.unclosedClasses(), nil
}

// FindInconsistency scans pairs of short-prefix rows with equal content and
// returns the first pair (in row-creation order, first differing symbol in
// alphabet order) whose successors differ in content, or nil if the table is
// consistent.
func (t *Table[D]) FindInconsistency() *Inconsistency[D] {
	for i, r1 := range t.shortRows {
		for _, r2 := range t.shortRows[i+1:] {
			if r1.class != r2.class {
				continue
			}
			for k := 0; k < t.alphabetSize; k++ {
				if t.rows[r1.succs[k]].class != t.rows[r2.succs[k]].class {
					return &Inconsistency[D]{
						FirstRow:    r1,
						SecondRow:   r2,
						Symbol:      t.alphabet.Symbol(k),
						SymbolIndex: k,
					}
				}
			}
		}
	}
	return nil
}

// IsConsistent reports whether no inconsistency exists.
func (t *Table[D]) IsConsistent() bool { return t.FindInconsistency() == nil }

// NoDistinguishingSuffix is returned by DistinguishingSuffixIndex when the
// successors of a reported inconsistency do not actually differ.
const NoDistinguishingSuffix = -1

// DistinguishingSuffixIndex returns the first suffix index at which the
// successors of the inconsistency witness differ in content, or
// NoDistinguishingSuffix if no such index exists (a bogus witness).
func (t *Table[D]) DistinguishingSuffixIndex(inc *Inconsistency[D]) int {
	succ1 := t.rows[inc.FirstRow.succs[inc.SymbolIndex]]
	succ2 := t.rows[inc.SecondRow.succs[inc.SymbolIndex]]
	c1, c2 := succ1.Contents(), succ2.Contents()
	for i := range t.suffixes {
		if c1[i] != c2[i] {
			return i
		}
	}
	return NoDistinguishingSuffix
}

// Cell returns the answer recorded for the given row and suffix index.
func (t *Table[D]) Cell(r *Row[D], suffixIndex int) D {
	return r.class.contents[suffixIndex]
}

// CorrectCell overwrites one recorded answer, reclassifying the affected
// row, and returns the classes that became unclosed. It is used by learners
// that re-validate suspicious observations against the oracle. This is the
// one deliberate exception to append-only contents: the vector keeps its
// length, only the corrected entry changes.
func (t *Table[D]) CorrectCell(prefix, suffix word.Word, value D) ([][]*Row[D], error) {
	r := t.rowByLabel[prefix.Key()]
	if r == nil {
		return nil, fmt.Errorf("table: no row labeled %v", prefix)
	}
	idx, ok := t.suffixIdx[suffix.Key()]
	if !ok {
		return nil, fmt.Errorf("table: no suffix %v", suffix)
	}

	contents := make([]D, len(r.Contents()))
	copy(contents, r.Contents())
	contents[idx] = value
	t.processContents(r, contents)

	return t.unclosedClasses(), nil
}

// Successor returns the row reached from a short-prefix row by the alphabet
// symbol at the given index.
func (t *Table[D]) Successor(r *Row[D], symbolIndex int) *Row[D] {
	return t.rows[r.succs[symbolIndex]]
}

// TransformAccessSequence maps an arbitrary input word to the label of the
// short-prefix row reached by tracing it through the table. The table must
// be closed.
func (t *Table[D]) TransformAccessSequence(w word.Word) (word.Word, error) {
	current := t.rowByLabel[word.Epsilon.Key()]
	if current == nil {
		return word.Epsilon, ErrNotInitialized
	}
	for i := 0; i < w.Len(); i++ {
		idx, ok := t.alphabet.Index(w.At(i))
		if !ok {
			return word.Epsilon, fmt.Errorf("table: unknown symbol %q", w.At(i))
		}
		succ := t.rows[current.succs[idx]]
		current = nil
		for _, r := range succ.class.rows {
			if r.short {
				current = r
				break
			}
		}
		if current == nil {
			return word.Epsilon, fmt.Errorf("table: unclosed at %v", succ.label)
		}
	}
	return current.label, nil
}

// ShortRepresentative returns the first short-prefix row (in class
// attachment order) sharing r's content vector, or nil if the class has no
// short-prefix row (the table is unclosed at r).
func (t *Table[D]) ShortRepresentative(r *Row[D]) *Row[D] {
	for _, row := range r.class.rows {
		if row.short {
			return row
		}
	}
	return nil
}

// Suffixes returns the suffix list. The returned slice must not be modified.
func (t *Table[D]) Suffixes() []word.Word { return t.suffixes }

// SuffixAt returns the suffix at the given column index.
func (t *Table[D]) SuffixAt(i int) word.Word { return t.suffixes[i] }

// SuffixIndex returns the column index of the given suffix word.
func (t *Table[D]) SuffixIndex(w word.Word) (int, bool) {
	i, ok := t.suffixIdx[w.Key()]
	return i, ok
}

// ShortRows returns the short-prefix rows in creation order. The returned
// slice must not be modified.
func (t *Table[D]) ShortRows() []*Row[D] { return t.shortRows }

// LongRows returns the long-prefix rows in creation order. The returned
// slice must not be modified.
func (t *Table[D]) LongRows() []*Row[D] { return t.longRows }

// NumRows returns the total number of rows.
func (t *Table[D]) NumRows() int { return len(t.rows) }

// NumDistinctRows returns the number of row-equivalence classes.
func (t *Table[D]) NumDistinctRows() int { return len(t.classes) }

// Row returns the row with the given arena identifier.
func (t *Table[D]) Row(id RowID) *Row[D] { return t.rows[id] }

func (t *Table[D]) createShortRow(label word.Word) *Row[D] {
	r := &Row[D]{id: RowID(len(t.rows)), label: label}
	r.makeShort(t.alphabetSize)
	t.rows = append(t.rows, r)
	t.rowByLabel[label.Key()] = r
	t.shortRows = append(t.shortRows, r)
	return r
}

func (t *Table[D]) createLongRow(label word.Word) *Row[D] {
	r := &Row[D]{id: RowID(len(t.rows)), label: label}
	t.rows = append(t.rows, r)
	t.rowByLabel[label.Key()] = r
	t.longRows = append(t.longRows, r)
	return r
}

func (t *Table[D]) makeShort(r *Row[D]) {
	if r.short {
		return
	}
	for i, lr := range t.longRows {
		if lr == r {
			t.longRows = append(t.longRows[:i], t.longRows[i+1:]...)
			break
		}
	}
	r.makeShort(t.alphabetSize)
	t.shortRows = append(t.shortRows, r)
}

func (t *Table[D]) addSuffixWord(s word.Word) {
	if _, dup := t.suffixIdx[s.Key()]; dup {
		return
	}
	t.suffixIdx[s.Key()] = len(t.suffixes)
	t.suffixes = append(t.suffixes, s)
}

// queryRows builds a batch of (row, suffix) membership queries, dispatches
// it as one blocking call, and returns the answers in (row-major, suffix
// order) query order. On error nothing is committed to the table.
func (t *Table[D]) queryRows(ctx context.Context, rows []*Row[D], suffixes []word.Word, oracle ports.MembershipOracle[D]) ([]D, error) {
	if len(rows) == 0 || len(suffixes) == 0 {
		return nil, nil
	}
	batch := make([]*ports.Query[D], 0, len(rows)*len(suffixes))
	for _, r := range rows {
		for _, s := range suffixes {
			batch = append(batch, &ports.Query[D]{Prefix: r.label, Suffix: s})
		}
	}
	if err := oracle.AnswerBatch(ctx, batch); err != nil {
		return nil, err
	}
	answers := make([]D, len(batch))
	for i, q := range batch {
		answers[i] = q.Answer
	}
	return answers, nil
}

// processContents assigns the given content vector to a row, moving it into
// the matching equivalence class (creating one if the vector is new).
// Reports whether a new class was created.
func (t *Table[D]) processContents(r *Row[D], contents []D) bool {
	key := contentKey(contents)
	old := r.class

	c, ok := t.classes[key]
	created := false
	if !ok {
		c = &class[D]{contents: contents, key: key}
		t.classes[key] = c
		created = true
	}
	if c == old {
		return created
	}

	c.attach(r)
	if old != nil {
		old.detach(r)
		if len(old.rows) == 0 {
			delete(t.classes, old.key)
		}
	}
	return created
}

// unclosedClasses groups long-prefix rows by equivalence class and returns
// the classes with no short-prefix representative, in the order the classes
// are first encountered over the long rows.
func (t *Table[D]) unclosedClasses() [][]*Row[D] {
	var out [][]*Row[D]
	reported := make(map[*class[D]]bool)
	for _, lr := range t.longRows {
		c := lr.class
		if c == nil || reported[c] {
			continue
		}
		reported[c] = true
		closed := false
		for _, r := range c.rows {
			if r.short {
				closed = true
				break
			}
		}
		if !closed {
			out = append(out, c.longRows())
		}
	}
	return out
}

func prefixClosed(prefixes []word.Word) bool {
	set := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		set[p.Key()] = struct{}{}
	}
	for _, p := range prefixes {
		if p.IsEmpty() {
			continue
		}
		if _, ok := set[p.Prefix(p.Len()-1).Key()]; !ok {
			return false
		}
	}
	return true
}
