package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is the in-process counterpart of Repository for stores without a
// SQL backend. Expired keys are dropped on Purge or when looked up.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:  ttl,
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
}

func (c *MemoryCache) Seen(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.seen[key]
	if !ok {
		return false, nil
	}
	if c.now().Sub(at) > c.ttl {
		delete(c.seen, key)
		return false, nil
	}
	return true, nil
}

func (c *MemoryCache) Remember(ctx context.Context, key string) error {
	c.mu.Lock()
	c.seen[key] = c.now()
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Purge(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	now := c.now()
	for k, at := range c.seen {
		if now.Sub(at) > c.ttl {
			delete(c.seen, k)
			n++
		}
	}
	return n, nil
}
