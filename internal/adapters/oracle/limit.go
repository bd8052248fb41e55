package oracle

import (
	"context"
	"sync"

	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

// Limit enforces a hard query budget on a delegate oracle. Once the budget
// is exhausted every call fails with ports.ErrQueryLimit. A batch that does
// not fit the remaining budget is rejected as a whole, so a limited run
// never commits a partially answered batch.
//
// Safe for concurrent use when the delegate is.
type Limit[D comparable] struct {
	delegate ports.MembershipOracle[D]

	mu    sync.Mutex
	used  uint64
	limit uint64
}

// NewLimit wraps delegate with a budget of max queries.
func NewLimit[D comparable](delegate ports.MembershipOracle[D], max uint64) *Limit[D] {
	return &Limit[D]{delegate: delegate, limit: max}
}

// Used reports how many queries have been charged against the budget.
func (l *Limit[D]) Used() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used
}

func (l *Limit[D]) reserve(n uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.limit-l.used < n {
		return ports.ErrQueryLimit
	}
	l.used += n
	return nil
}

func (l *Limit[D]) Answer(ctx context.Context, prefix, suffix word.Word) (D, error) {
	if err := l.reserve(1); err != nil {
		var zero D
		return zero, err
	}
	return l.delegate.Answer(ctx, prefix, suffix)
}

func (l *Limit[D]) AnswerBatch(ctx context.Context, batch []*ports.Query[D]) error {
	if err := l.reserve(uint64(len(batch))); err != nil {
		return err
	}
	return l.delegate.AnswerBatch(ctx, batch)
}
