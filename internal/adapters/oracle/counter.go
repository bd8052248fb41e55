package oracle

import (
	"context"
	"sync/atomic"

	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

// Counter counts the queries that pass through to a delegate oracle.
// Safe for concurrent use when the delegate is.
type Counter[D comparable] struct {
	delegate ports.MembershipOracle[D]
	n        atomic.Uint64
}

// NewCounter wraps delegate with a query counter.
func NewCounter[D comparable](delegate ports.MembershipOracle[D]) *Counter[D] {
	return &Counter[D]{delegate: delegate}
}

// Count reports the number of queries forwarded so far.
func (c *Counter[D]) Count() uint64 {
	return c.n.Load()
}

func (c *Counter[D]) Answer(ctx context.Context, prefix, suffix word.Word) (D, error) {
	c.n.Add(1)
	return c.delegate.Answer(ctx, prefix, suffix)
}

func (c *Counter[D]) AnswerBatch(ctx context.Context, batch []*ports.Query[D]) error {
	c.n.Add(uint64(len(batch)))
	return c.delegate.AnswerBatch(ctx, batch)
}
