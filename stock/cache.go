package stock

import (
	"context"
	"sync"
	"time"
)

// Source produces the two raw upstream feeds.
type Source interface {
	Feeds(ctx context.Context) (SuffixFeed, OperatorFeed, error)
}

// Cache memoizes the merged index, rebuilding it when the snapshot goes
// stale. Concurrent readers during a rebuild share the single fetch.
type Cache struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	built   *Index
	builtAt time.Time
	pending chan struct{}
}

func NewCache(src Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{src: src, ttl: ttl, now: time.Now}
}

// WithClock overrides the cache clock. Test hook.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the current index, rebuilding it when stale. On fetch failure
// with a previous snapshot available, the stale snapshot is served; without
// one, the error surfaces.
func (c *Cache) Get(ctx context.Context) (*Index, error) {
	c.mu.Lock()
	if c.built != nil && c.now().Sub(c.builtAt) < c.ttl {
		ix := c.built
		c.mu.Unlock()
		return ix, nil
	}
	for c.pending != nil {
		wait := c.pending
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
		if c.built != nil && c.now().Sub(c.builtAt) < c.ttl {
			ix := c.built
			c.mu.Unlock()
			return ix, nil
		}
	}
	done := make(chan struct{})
	c.pending = done
	c.mu.Unlock()

	suffix, operator, err := c.src.Feeds(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	close(done)
	if err != nil {
		if c.built != nil {
			return c.built, nil
		}
		return nil, err
	}
	c.built = Build(suffix, operator)
	c.builtAt = c.now()
	return c.built, nil
}

// Invalidate forces the next Get to rebuild.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.built = nil
}
