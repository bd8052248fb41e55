package oracle

import (
	"context"
	"sync"

	"github.com/marten/tabula/internal/domain/word"
	"github.com/marten/tabula/internal/ports"
)

// cacheKeySep separates prefix and suffix keys. word.Key never emits it.
const cacheKeySep = "\x1e"

// Cache memoizes answers of a delegate oracle keyed on the split query, so
// re-asking the same prefix/suffix pair (table rebuilds, verified
// inconsistencies, resumed runs) costs nothing. Safe for concurrent use
// when the delegate is.
type Cache[D comparable] struct {
	delegate ports.MembershipOracle[D]

	mu sync.Mutex
	m  map[string]D
}

// NewCache wraps delegate with a memoizing cache.
func NewCache[D comparable](delegate ports.MembershipOracle[D]) *Cache[D] {
	return &Cache[D]{delegate: delegate, m: make(map[string]D)}
}

// Size reports the number of cached answers.
func (c *Cache[D]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func cacheKey(prefix, suffix word.Word) string {
	return prefix.Key() + cacheKeySep + suffix.Key()
}

func (c *Cache[D]) Answer(ctx context.Context, prefix, suffix word.Word) (D, error) {
	key := cacheKey(prefix, suffix)
	c.mu.Lock()
	a, ok := c.m[key]
	c.mu.Unlock()
	if ok {
		return a, nil
	}
	a, err := c.delegate.Answer(ctx, prefix, suffix)
	if err != nil {
		var zero D
		return zero, err
	}
	c.mu.Lock()
	c.m[key] = a
	c.mu.Unlock()
	return a, nil
}

func (c *Cache[D]) AnswerBatch(ctx context.Context, batch []*ports.Query[D]) error {
	var misses []*ports.Query[D]
	c.mu.Lock()
	for _, q := range batch {
		if a, ok := c.m[cacheKey(q.Prefix, q.Suffix)]; ok {
			q.Answer = a
		} else {
			misses = append(misses, q)
		}
	}
	c.mu.Unlock()

	if len(misses) == 0 {
		return nil
	}
	if err := c.delegate.AnswerBatch(ctx, misses); err != nil {
		return err
	}
	c.mu.Lock()
	for _, q := range misses {
		c.m[cacheKey(q.Prefix, q.Suffix)] = q.Answer
	}
	c.mu.Unlock()
	return nil
}
