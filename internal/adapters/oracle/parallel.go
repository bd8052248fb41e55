package oracle

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

// DefaultMinBatchSize is the smallest chunk worth handing to a worker.
// Batches below workers*DefaultMinBatchSize are answered on fewer workers.
const DefaultMinBatchSize = 8

// Parallel splits a batch into contiguous chunks and answers them on up to
// a fixed number of concurrent workers. The delegate must be safe for
// concurrent use. Query order within the batch slice is preserved because
// each worker writes only into its own chunk.
type Parallel[D comparable] struct {
	delegate ports.MembershipOracle[D]
	workers  int
	minBatch int
}

// NewParallel wraps delegate with a static worker pool of the given size.
// workers < 1 is treated as 1.
func NewParallel[D comparable](delegate ports.MembershipOracle[D], workers int) *Parallel[D] {
	if workers < 1 {
		workers = 1
	}
	return &Parallel[D]{delegate: delegate, workers: workers, minBatch: DefaultMinBatchSize}
}

func (p *Parallel[D]) Answer(ctx context.Context, prefix, suffix word.Word) (D, error) {
	return p.delegate.Answer(ctx, prefix, suffix)
}

func (p *Parallel[D]) AnswerBatch(ctx context.Context, batch []*ports.Query[D]) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	workers := p.workers
	if max := (n + p.minBatch - 1) / p.minBatch; workers > max {
		workers = max
	}
	if workers <= 1 {
		return p.delegate.AnswerBatch(ctx, batch)
	}

	g, ctx := errgroup.WithContext(ctx)
	chunk := n / workers
	rem := n % workers
	start := 0
	for i := 0; i < workers; i++ {
		size := chunk
		if i < rem {
			size++
		}
		part := batch[start : start+size]
		start += size
		g.Go(func() error {
			return p.delegate.AnswerBatch(ctx, part)
		})
	}
	return g.Wait()
}
