package decision

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/planguard/pkg/cache"
)

const keySep = "\x00"

// MemoryCache is a bounded in-process Cache.
// A per-subject index makes InvalidateSubject independent of cache size.
type MemoryCache struct {
	mu    sync.Mutex
	lru   *cache.LRU[string, Decision]
	index map[string]map[string]struct{}
}

// NewMemoryCache creates a cache holding at most capacity decisions.
func NewMemoryCache(capacity int) *MemoryCache {
	c := &MemoryCache{
		lru:   cache.NewLRU[string, Decision](capacity),
		index: make(map[string]map[string]struct{}),
	}
	// Every lru call happens under c.mu, so the callback may touch the index directly.
	c.lru.SetEvictCallback(func(key string, _ Decision) {
		c.unindex(key)
	})
	return c
}

// SetClock replaces the time source used for expiry.
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.lru.SetClock(now)
}

func (c *MemoryCache) Get(_ context.Context, subject, key string) (Decision, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.lru.Get(compositeKey(subject, key))
	return d, ok, nil
}

func (c *MemoryCache) Put(_ context.Context, subject, key string, d Decision, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ck := compositeKey(subject, key)
	c.lru.PutWithTTL(ck, d, ttl)
	keys, ok := c.index[subject]
	if !ok {
		keys = make(map[string]struct{})
		c.index[subject] = keys
	}
	keys[ck] = struct{}{}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, subject string, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		c.lru.Remove(compositeKey(subject, k))
	}
	return nil
}

func (c *MemoryCache) InvalidateSubject(_ context.Context, subject string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.index[subject]
	pending := make([]string, 0, len(keys))
	for k := range keys {
		pending = append(pending, k)
	}
	for _, k := range pending {
		c.lru.Remove(k)
	}
	delete(c.index, subject)
	return nil
}

// Len returns the number of cached decisions.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Must be called with c.mu held.
func (c *MemoryCache) unindex(ck string) {
	subject, _, ok := strings.Cut(ck, keySep)
	if !ok {
		return
	}
	keys := c.index[subject]
	delete(keys, ck)
	if len(keys) == 0 {
		delete(c.index, subject)
	}
}

func compositeKey(subject, key string) string {
	return subject + keySep + key
}
