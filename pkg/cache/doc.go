// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry expiry.
//
// The cache holds at most a fixed number of entries. Adding past capacity
// evicts the least recently used entry; expired entries are dropped when they
// are next touched and are never returned.
//
//	c := cache.NewLRU[string, Decision](10_000)
//	c.PutWithTTL("user:42|feature:pro:API_ACCESS", d, 5*time.Minute)
//
//	if d, ok := c.Get("user:42|feature:pro:API_ACCESS"); ok {
//		// fresh hit
//	}
//
// An eviction callback observes every entry leaving the cache, which lets
// owners keep secondary indexes in sync:
//
//	c.SetEvictCallback(func(key string, _ Decision) {
//		delete(index, key)
//	})
//
// The callback runs with the cache lock held and must not call back into the cache.
package cache
