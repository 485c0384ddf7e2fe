package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache[string](2)
	c.Put(1, "one")
	c.Put(2, "two")

	// touch 1 so 2 becomes the eviction candidate
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	c.Put(3, "three")
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get(2)
	assert.False(t, ok)
	_, ok = c.Get(1)
	assert.True(t, ok)
	_, ok = c.Get(3)
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(3), stats.Hits)
}

func TestCacheReplaceRemovePurge(t *testing.T) {
	c := NewCache[int](4)
	c.Put(1, 10)
	c.Put(1, 11)
	v, _ := c.Get(1)
	assert.Equal(t, 11, v)
	assert.Equal(t, 1, c.Len())

	c.Put(2, 20)
	c.Remove(1)
	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestCacheDisabled(t *testing.T) {
	c := NewCache[int](0)
	c.Put(1, 1)
	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache[uint64](64)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint64(0); i < 1000; i++ {
				key := (i * uint64(w+1)) % 128
				if v, ok := c.Get(key); ok && v != key {
					t.Errorf("cache returned %d for key %d", v, key)
				}
				c.Put(key, key)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}
