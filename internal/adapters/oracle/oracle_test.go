package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/marten/tabula/internal/domain/automaton"
	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

// evenAs accepts words with an even number of "a" symbols over {a, b}.
func evenAs(t *testing.T) *automaton.DFA {
	t.Helper()

	alpha, err := word.NewAlphabet("a", "b")
	require.NoError(t, err)

	d := automaton.NewDFA(alpha, 2, 0)
	d.SetAccept(0, true)
	d.SetTransition(0, 0, 1)
	d.SetTransition(0, 1, 0)
	d.SetTransition(1, 0, 0)
	d.SetTransition(1, 1, 1)
	return d
}

// coffeeMachine outputs "ok" on "coin" and "coffee" after a coin, "err"
// otherwise.
func coffeeMachine(t *testing.T) *automaton.Mealy {
	t.Helper()

	alpha, err := word.NewAlphabet("coin", "button")
	require.NoError(t, err)

	m := automaton.NewMealy(alpha, 2, 0)
	m.SetTransition(0, 0, 1, "ok")
	m.SetTransition(0, 1, 0, "err")
	m.SetTransition(1, 0, 1, "ok")
	m.SetTransition(1, 1, 0, "coffee")
	return m
}

func queriesOf[D comparable](words ...word.Word) []*ports.Query[D] {
	batch := make([]*ports.Query[D], len(words))
	for i, w := range words {
		batch[i] = &ports.Query[D]{Prefix: word.Epsilon, Suffix: w}
	}
	return batch
}

func TestDFASimulator(t *testing.T) {
	sim := NewDFASimulator(evenAs(t))
	ctx := context.Background()

	a, err := sim.Answer(ctx, word.New("a"), word.New("a"))
	require.NoError(t, err)
	assert.True(t, a, "aa has an even number of a's")

	a, err = sim.Answer(ctx, word.Epsilon, word.New("a", "b"))
	require.NoError(t, err)
	assert.False(t, a)

	batch := queriesOf[bool](word.Epsilon, word.New("a"), word.New("a", "a"))
	require.NoError(t, sim.AnswerBatch(ctx, batch))
	assert.Equal(t, []bool{true, false, true}, []bool{batch[0].Answer, batch[1].Answer, batch[2].Answer})
}

func TestMealySimulatorSuffixSemantics(t *testing.T) {
	sim := NewMealySimulator(coffeeMachine(t))

	// Only the suffix portion contributes outputs.
	out, err := sim.Answer(context.Background(), word.New("coin"), word.New("button"))
	require.NoError(t, err)
	assert.Equal(t, "coffee", out)

	out, err = sim.Answer(context.Background(), word.Epsilon, word.New("coin", "button"))
	require.NoError(t, err)
	assert.Equal(t, "ok,coffee", out)
}

func TestSimulatorHonorsContext(t *testing.T) {
	sim := NewDFASimulator(evenAs(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Answer(ctx, word.Epsilon, word.New("a"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCounter(t *testing.T) {
	c := NewCounter[bool](NewDFASimulator(evenAs(t)))
	ctx := context.Background()

	_, err := c.Answer(ctx, word.Epsilon, word.New("a"))
	require.NoError(t, err)
	require.NoError(t, c.AnswerBatch(ctx, queriesOf[bool](word.Epsilon, word.New("b"))))

	assert.Equal(t, uint64(3), c.Count())
}

func TestLimitRejectsOverBudget(t *testing.T) {
	l := NewLimit[bool](NewDFASimulator(evenAs(t)), 3)
	ctx := context.Background()

	_, err := l.Answer(ctx, word.Epsilon, word.New("a"))
	require.NoError(t, err)

	// The remaining budget of 2 cannot cover a batch of 3; nothing is
	// charged for the rejected batch.
	err = l.AnswerBatch(ctx, queriesOf[bool](word.Epsilon, word.New("a"), word.New("b")))
	assert.ErrorIs(t, err, ports.ErrQueryLimit)
	assert.Equal(t, uint64(1), l.Used())

	require.NoError(t, l.AnswerBatch(ctx, queriesOf[bool](word.Epsilon, word.New("a"))))
	assert.Equal(t, uint64(3), l.Used())

	_, err = l.Answer(ctx, word.Epsilon, word.Epsilon)
	assert.ErrorIs(t, err, ports.ErrQueryLimit)
}

func TestCacheAbsorbsRepeatedQueries(t *testing.T) {
	counter := NewCounter[bool](NewDFASimulator(evenAs(t)))
	cache := NewCache[bool](counter)
	ctx := context.Background()

	a, err := cache.Answer(ctx, word.New("a"), word.New("a"))
	require.NoError(t, err)
	assert.True(t, a)

	a, err = cache.Answer(ctx, word.New("a"), word.New("a"))
	require.NoError(t, err)
	assert.True(t, a)
	assert.Equal(t, uint64(1), counter.Count())

	// The split matters: ("a","a") and (ε,"aa") are distinct cache entries.
	_, err = cache.Answer(ctx, word.Epsilon, word.New("a", "a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), counter.Count())

	batch := queriesOf[bool](word.New("a", "a"), word.New("b"))
	require.NoError(t, cache.AnswerBatch(ctx, batch))
	assert.True(t, batch[0].Answer)
	assert.False(t, batch[1].Answer)
	// One hit from the earlier single query, one miss.
	assert.Equal(t, uint64(3), counter.Count())
	assert.Equal(t, 3, cache.Size())
}

func TestParallelPreservesBatchOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewParallel[bool](NewDFASimulator(evenAs(t)), 4)
	p.minBatch = 1

	var batch []*ports.Query[bool]
	for i := 0; i < 37; i++ {
		w := word.Epsilon
		for j := 0; j < i; j++ {
			w = w.Append("a")
		}
		batch = append(batch, &ports.Query[bool]{Prefix: word.Epsilon, Suffix: w})
	}
	require.NoError(t, p.AnswerBatch(context.Background(), batch))

	for i, q := range batch {
		assert.Equal(t, i%2 == 0, q.Answer, "word of %d a's", i)
	}
}

func TestParallelPropagatesErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	limited := NewLimit[bool](NewDFASimulator(evenAs(t)), 4)
	p := NewParallel[bool](limited, 4)
	p.minBatch = 1

	err := p.AnswerBatch(context.Background(), queriesOf[bool](
		word.Epsilon, word.New("a"), word.New("b"),
		word.New("a", "a"), word.New("a", "b"), word.New("b", "b"),
	))
	assert.ErrorIs(t, err, ports.ErrQueryLimit)
}

func TestRandomWordsFindsDivergence(t *testing.T) {
	target := evenAs(t)
	sim := NewDFASimulator(target)

	// A hypothesis that accepts everything disagrees on any word with an
	// odd number of a's.
	alpha := target.Alphabet()
	wrong := automaton.NewDFA(alpha, 1, 0)
	wrong.SetAccept(0, true)
	wrong.SetTransition(0, 0, 0)
	wrong.SetTransition(0, 1, 0)

	eq := NewRandomWords[bool](sim, 200, 1, 6, 42)
	cex, err := eq.FindCounterexample(context.Background(), wrong, alpha)
	require.NoError(t, err)
	require.NotNil(t, cex)
	assert.False(t, cex.Output)
	assert.False(t, target.Accepts(cex.Input))
}

func TestRandomWordsAgreesOnEquivalent(t *testing.T) {
	target := evenAs(t)
	eq := NewRandomWords[bool](NewDFASimulator(target), 100, 0, 5, 7)

	cex, err := eq.FindCounterexample(context.Background(), target, target.Alphabet())
	require.NoError(t, err)
	assert.Nil(t, cex)
}

func TestExactDFA(t *testing.T) {
	target := evenAs(t)
	eq := NewExactDFA(target)

	cex, err := eq.FindCounterexample(context.Background(), target, target.Alphabet())
	require.NoError(t, err)
	assert.Nil(t, cex, "target is equivalent to itself")

	// A single-state hypothesis merges the two parity classes.
	wrong := automaton.NewDFA(target.Alphabet(), 1, 0)
	wrong.SetAccept(0, true)
	wrong.SetTransition(0, 0, 0)
	wrong.SetTransition(0, 1, 0)

	cex, err = eq.FindCounterexample(context.Background(), wrong, target.Alphabet())
	require.NoError(t, err)
	require.NotNil(t, cex)
	assert.Equal(t, word.New("a"), cex.Input)
	assert.False(t, cex.Output)
}

func TestExactMealy(t *testing.T) {
	target := coffeeMachine(t)
	eq := NewExactMealy(target)

	cex, err := eq.FindCounterexample(context.Background(), target, target.Alphabet())
	require.NoError(t, err)
	assert.Nil(t, cex)

	// Forgetting the coin state makes "button" always an error.
	wrong := automaton.NewMealy(target.Alphabet(), 1, 0)
	wrong.SetTransition(0, 0, 0, "ok")
	wrong.SetTransition(0, 1, 0, "err")

	cex, err = eq.FindCounterexample(context.Background(), wrong, target.Alphabet())
	require.NoError(t, err)
	require.NotNil(t, cex)
	assert.Equal(t, word.New("coin", "button"), cex.Input)
	assert.Equal(t, "ok,coffee", cex.Output)
}

func TestExactRejectsForeignHypothesis(t *testing.T) {
	eq := NewExactDFA(evenAs(t))
	_, err := eq.FindCounterexample(context.Background(), foreignHypothesis{}, evenAs(t).Alphabet())
	assert.Error(t, err)
}

type foreignHypothesis struct{}

func (foreignHypothesis) SuffixOutput(prefix, suffix word.Word) bool { return false }
