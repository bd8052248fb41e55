package table

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

// funcOracle answers membership queries from a pure function over the full
// input word.
type funcOracle[D comparable] struct {
	f func(w word.Word) D
}

func (o funcOracle[D]) Answer(ctx context.Context, prefix, suffix word.Word) (D, error) {
	return o.f(prefix.Concat(suffix)), nil
}

func (o funcOracle[D]) AnswerBatch(ctx context.Context, batch []*ports.Query[D]) error {
	for _, q := range batch {
		q.Answer = o.f(q.Prefix.Concat(q.Suffix))
	}
	return nil
}

// evenAs accepts words with an even number of "a" symbols.
var evenAs = funcOracle[bool]{f: func(w word.Word) bool {
	n := 0
	for i := 0; i < w.Len(); i++ {
		if w.At(i) == "a" {
			n++
		}
	}
	return n%2 == 0
}}

// endsAB accepts words ending in the two-symbol sequence "a b".
var endsAB = funcOracle[bool]{f: func(w word.Word) bool {
	return w.Len() >= 2 && w.At(w.Len()-2) == "a" && w.At(w.Len()-1) == "b"
}}

func newAlphabet(t *testing.T, syms ...string) *word.Alphabet {
	t.Helper()
	alpha, err := word.NewAlphabet(syms...)
	require.NoError(t, err)
	return alpha
}

func initEvenAs(t *testing.T) (*Table[bool], [][]*Row[bool]) {
	t.Helper()
	tbl := New[bool](newAlphabet(t, "a", "b"))
	unclosed, err := tbl.Initialize(context.Background(),
		[]word.Word{word.Epsilon}, []word.Word{word.Epsilon}, evenAs)
	require.NoError(t, err)
	return tbl, unclosed
}

func labels(rows []*Row[bool]) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Label().String()
	}
	return out
}

func TestInitializeValidatesInputs(t *testing.T) {
	ctx := context.Background()

	tbl := New[bool](newAlphabet(t, "a"))
	_, err := tbl.Initialize(ctx, []word.Word{word.New("a")}, []word.Word{word.Epsilon}, evenAs)
	assert.Error(t, err, "first prefix must be epsilon")

	_, err = tbl.Initialize(ctx, []word.Word{word.Epsilon}, nil, evenAs)
	assert.Error(t, err, "suffixes must be non-empty")

	_, err = tbl.Initialize(ctx, []word.Word{word.Epsilon, word.New("a", "a")}, []word.Word{word.Epsilon}, evenAs)
	assert.Error(t, err, "prefixes must be prefix-closed")

	assert.False(t, tbl.IsInitialized(), "failed initialization must not commit")

	_, err = tbl.Initialize(ctx, []word.Word{word.Epsilon}, []word.Word{word.Epsilon}, evenAs)
	require.NoError(t, err)
	_, err = tbl.Initialize(ctx, []word.Word{word.Epsilon}, []word.Word{word.Epsilon}, evenAs)
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestMutationsRequireInitialize(t *testing.T) {
	tbl := New[bool](newAlphabet(t, "a"))

	_, err := tbl.AddSuffix(context.Background(), word.New("a"), evenAs)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = tbl.Promote(context.Background(), nil, evenAs)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestInitializeBuildsRowsAndReportsUnclosed(t *testing.T) {
	tbl, unclosed := initEvenAs(t)

	assert.Equal(t, 3, tbl.NumRows(), "epsilon plus one successor per symbol")
	assert.Equal(t, []string{"ε"}, labels(tbl.ShortRows()))
	assert.Equal(t, []string{"a", "b"}, labels(tbl.LongRows()))

	// ε and b accept (zero a's), a does not: one unclosed class for "a".
	require.Len(t, unclosed, 1)
	assert.Equal(t, []string{"a"}, labels(unclosed[0]))
	assert.Equal(t, 2, tbl.NumDistinctRows())
}

func TestPromoteClosesTable(t *testing.T) {
	tbl, unclosed := initEvenAs(t)

	unclosed, err := tbl.Promote(context.Background(), []*Row[bool]{unclosed[0][0]}, evenAs)
	require.NoError(t, err)
	assert.Empty(t, unclosed)
	assert.Empty(t, tbl.FindUnclosedRows())

	assert.Equal(t, []string{"ε", "a"}, labels(tbl.ShortRows()))

	// "a a" rejoins the accepting class.
	rowA := tbl.ShortRows()[1]
	aa := tbl.Successor(rowA, 0)
	assert.Equal(t, "a a", aa.Label().String())
	assert.True(t, tbl.Cell(aa, 0))
	assert.Same(t, tbl.ShortRows()[0], tbl.ShortRepresentative(aa))

	// Promoting an already short row is a no-op.
	before := tbl.NumRows()
	_, err = tbl.Promote(context.Background(), []*Row[bool]{rowA}, evenAs)
	require.NoError(t, err)
	assert.Equal(t, before, tbl.NumRows())
}

func TestAddSuffixAppendsContents(t *testing.T) {
	tbl, unclosed := initEvenAs(t)
	_, err := tbl.Promote(context.Background(), []*Row[bool]{unclosed[0][0]}, evenAs)
	require.NoError(t, err)

	epsilon := tbl.ShortRows()[0]
	wasAccepting := tbl.Cell(epsilon, 0)

	_, err = tbl.AddSuffix(context.Background(), word.New("a"), evenAs)
	require.NoError(t, err)

	require.Len(t, tbl.Suffixes(), 2)
	assert.Equal(t, wasAccepting, tbl.Cell(epsilon, 0), "existing cells never change")
	assert.False(t, tbl.Cell(epsilon, 1), "ε·a has an odd number of a's")

	// Re-adding a known suffix (or a duplicated fresh one) changes nothing.
	res, err := tbl.AddSuffixes(context.Background(), []word.Word{word.New("a"), word.New("a")}, evenAs)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Len(t, tbl.Suffixes(), 2)
}

func TestInconsistencyDetectionAndRepair(t *testing.T) {
	ctx := context.Background()
	tbl := New[bool](newAlphabet(t, "a", "b"))

	// ε and "a" share content under the ε suffix, but disagree after "b".
	_, err := tbl.Initialize(ctx, []word.Word{word.Epsilon, word.New("a")}, []word.Word{word.Epsilon}, endsAB)
	require.NoError(t, err)
	assert.True(t, tbl.InitialConsistencyCheckRequired())

	inc := tbl.FindInconsistency()
	require.NotNil(t, inc)
	assert.False(t, tbl.IsConsistent())
	assert.Equal(t, "ε", inc.FirstRow.Label().String())
	assert.Equal(t, "a", inc.SecondRow.Label().String())
	assert.Equal(t, "b", inc.Symbol)

	idx := tbl.DistinguishingSuffixIndex(inc)
	require.NotEqual(t, NoDistinguishingSuffix, idx)

	// Prepending the witness symbol to the distinguishing suffix splits the
	// two rows and resolves the inconsistency.
	newSuffix := tbl.SuffixAt(idx).Prepend(inc.Symbol)
	assert.Equal(t, "b", newSuffix.String())

	_, err = tbl.AddSuffix(ctx, newSuffix, endsAB)
	require.NoError(t, err)
	assert.True(t, tbl.IsConsistent())
	assert.NotSame(t, tbl.ShortRows()[0].class, tbl.ShortRows()[1].class)
}

func TestCorrectCellReclassifiesRow(t *testing.T) {
	tbl, unclosed := initEvenAs(t)
	_, err := tbl.Promote(context.Background(), []*Row[bool]{unclosed[0][0]}, evenAs)
	require.NoError(t, err)

	// Flip the recorded answer for the "b" row: it leaves the accepting
	// class and, with no short row left in its new class, unclosedness
	// reappears.
	rowB := tbl.LongRows()[0]
	require.Equal(t, "b", rowB.Label().String())
	require.True(t, tbl.Cell(rowB, 0))

	unclosed, err = tbl.CorrectCell(word.New("b"), word.Epsilon, false)
	require.NoError(t, err)
	assert.False(t, tbl.Cell(rowB, 0))

	// "b" now shares content with the short row "a", so the table is still
	// closed.
	assert.Empty(t, unclosed)
	assert.Equal(t, "a", tbl.ShortRepresentative(rowB).Label().String())

	_, err = tbl.CorrectCell(word.New("z"), word.Epsilon, true)
	assert.Error(t, err, "unknown prefix")
	_, err = tbl.CorrectCell(word.New("b"), word.New("z"), true)
	assert.Error(t, err, "unknown suffix")
}

func TestTransformAccessSequence(t *testing.T) {
	tbl, unclosed := initEvenAs(t)
	_, err := tbl.Promote(context.Background(), []*Row[bool]{unclosed[0][0]}, evenAs)
	require.NoError(t, err)

	access, err := tbl.TransformAccessSequence(word.New("a", "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, word.Epsilon, access)

	access, err = tbl.TransformAccessSequence(word.New("b", "a"))
	require.NoError(t, err)
	assert.Equal(t, word.New("a"), access)

	_, err = tbl.TransformAccessSequence(word.New("c"))
	assert.Error(t, err)
}

func TestAddAlphabetSymbol(t *testing.T) {
	ctx := context.Background()
	tbl := New[bool](newAlphabet(t, "a"))
	unclosed, err := tbl.Initialize(ctx, []word.Word{word.Epsilon}, []word.Word{word.Epsilon}, evenAs)
	require.NoError(t, err)
	unclosed, err = tbl.Promote(ctx, []*Row[bool]{unclosed[0][0]}, evenAs)
	require.NoError(t, err)
	require.Empty(t, unclosed)

	unclosed, err = tbl.AddAlphabetSymbol(ctx, "b", evenAs)
	require.NoError(t, err)
	assert.Empty(t, unclosed, "b does not change parity")

	require.Equal(t, 2, tbl.Alphabet().Size())
	for _, sp := range tbl.ShortRows() {
		succ := tbl.Successor(sp, 1)
		assert.Equal(t, sp.Label().Append("b").String(), succ.Label().String())
	}

	// Re-adding the same symbol is a no-op.
	before := tbl.NumRows()
	unclosed, err = tbl.AddAlphabetSymbol(ctx, "b", evenAs)
	require.NoError(t, err)
	assert.Nil(t, unclosed)
	assert.Equal(t, before, tbl.NumRows())
}

func TestSnapshotRoundTrip(t *testing.T) {
	tbl, unclosed := initEvenAs(t)
	_, err := tbl.Promote(context.Background(), []*Row[bool]{unclosed[0][0]}, evenAs)
	require.NoError(t, err)

	snap := tbl.Snapshot()

	// Snapshots survive JSON encoding unchanged.
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot[bool]
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Empty(t, cmp.Diff(snap, &decoded))

	restored, err := Restore[bool](newAlphabet(t, "a", "b"), &decoded, nil)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(snap, restored.Snapshot()))
	assert.Equal(t, tbl.NumRows(), restored.NumRows())
	assert.Equal(t, tbl.NumDistinctRows(), restored.NumDistinctRows())
	assert.Empty(t, restored.FindUnclosedRows())
}

func TestRestoreValidatesAlphabet(t *testing.T) {
	tbl, _ := initEvenAs(t)
	snap := tbl.Snapshot()

	_, err := Restore[bool](newAlphabet(t, "a"), snap, nil)
	assert.Error(t, err, "stored symbol b is missing")

	// Order drift within the stored set is tolerated, and successors are
	// remapped to the current symbol indices.
	restored, err := Restore[bool](newAlphabet(t, "b", "a"), snap, nil)
	require.NoError(t, err)
	assert.Equal(t, tbl.NumRows(), restored.NumRows())
	eps := restored.Row(0)
	for _, sym := range []string{"a", "b"} {
		idx, ok := restored.Alphabet().Index(sym)
		require.True(t, ok)
		assert.Equal(t, sym, restored.Successor(eps, idx).Label().String())
	}

	// New symbols inserted before stored ones are not an extension.
	_, err = Restore[bool](newAlphabet(t, "a", "c", "b"), snap, nil)
	assert.Error(t, err)

	// A grown alphabet restores uncovered; the caller grows the table.
	restored, err = Restore[bool](newAlphabet(t, "a", "b", "c"), snap, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Alphabet().Size())
}

func TestRestoreRejectsCorruptSnapshots(t *testing.T) {
	tbl, _ := initEvenAs(t)

	snap := tbl.Snapshot()
	snap.Rows[0].Successors[0] = 99
	_, err := Restore[bool](newAlphabet(t, "a", "b"), snap, nil)
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "successor"))

	snap = tbl.Snapshot()
	snap.Rows[1].Contents = nil
	_, err = Restore[bool](newAlphabet(t, "a", "b"), snap, nil)
	assert.Error(t, err)

	snap = tbl.Snapshot()
	snap.Rows[0].Successors = snap.Rows[0].Successors[:1]
	_, err = Restore[bool](newAlphabet(t, "a", "b"), snap, nil)
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "successors"))
}

func TestQueryErrorCommitsNothing(t *testing.T) {
	tbl, unclosed := initEvenAs(t)
	_, err := tbl.Promote(context.Background(), []*Row[bool]{unclosed[0][0]}, evenAs)
	require.NoError(t, err)

	failing := failingOracle[bool]{}
	suffixesBefore := len(tbl.Suffixes())
	rowsBefore := tbl.NumRows()

	_, err = tbl.AddSuffix(context.Background(), word.New("a", "a"), failing)
	require.Error(t, err)
	assert.Equal(t, suffixesBefore, len(tbl.Suffixes()))
	assert.Equal(t, rowsBefore, tbl.NumRows())
}

type failingOracle[D comparable] struct{}

var errOracleDown = errors.New("oracle down")

func (failingOracle[D]) Answer(ctx context.Context, prefix, suffix word.Word) (D, error) {
	var zero D
	return zero, errOracleDown
}

func (failingOracle[D]) AnswerBatch(ctx context.Context, batch []*ports.Query[D]) error {
	return errOracleDown
}
