package util

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

// Cache is a bounded least-recently-used cache keyed by uint64. Indexes use it to
// remember where the skip list of a shard lives. A miss is never an error: the
// caller re-resolves the entry from the persisted structure and puts it back.
//
// Thread-safety: all methods are safe for concurrent use.
type Cache[V any] struct {
	lru      *lru.Cache // nil if caching is disabled
	capacity int

	hits, misses, evictions atomic.Uint64
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Capacity  int    `json:"capacity"`
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// NewCache creates a cache holding at most capacity entries. A capacity <= 0
// disables caching; every Get misses.
func NewCache[V any](capacity int) *Cache[V] {
	c := &Cache[V]{capacity: max(capacity, 0)}
	if capacity > 0 {
		// lru.New only fails for a non-positive size
		c.lru, _ = lru.New(capacity)
	}
	return c
}

// Get returns the cached value for key and marks it as recently used.
func (c *Cache[V]) Get(key uint64) (V, bool) {
	var zero V
	if c.lru == nil {
		c.misses.Add(1)
		return zero, false
	}
	v, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return v.(V), true
}

// Put inserts or replaces the value for key, evicting the least recently used
// entry when the cache is full.
func (c *Cache[V]) Put(key uint64, value V) {
	if c.lru == nil {
		return
	}
	if c.lru.Add(key, value) {
		c.evictions.Add(1)
	}
}

// Remove drops key from the cache.
func (c *Cache[V]) Remove(key uint64) {
	if c.lru != nil {
		c.lru.Remove(key)
	}
}

// Purge drops all entries.
func (c *Cache[V]) Purge() {
	if c.lru != nil {
		c.lru.Purge()
	}
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() CacheStats {
	return CacheStats{
		Capacity:  c.capacity,
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
