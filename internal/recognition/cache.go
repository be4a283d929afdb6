package recognition

import (
	"sync"
	"time"
)

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// resultCache is a bounded TTL cache keyed by image reference. Eviction
// is insertion-order (the capacity is a soft cap, not LRU) and expiry
// is lazy: stale entries fall out when read.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]cacheEntry
	order   []string
}

func newResultCache(ttl time.Duration, max int) *resultCache {
	return &resultCache{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]cacheEntry),
	}
}

func (c *resultCache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		c.remove(key)
		return Result{}, false
	}
	return entry.result, true
}

func (c *resultCache) Put(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = cacheEntry{result: result, storedAt: time.Now()}
		return
	}
	if c.max > 0 && len(c.entries) >= c.max {
		c.remove(c.order[0])
	}
	c.entries[key] = cacheEntry{result: result, storedAt: time.Now()}
	c.order = append(c.order, key)
}

func (c *resultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove expects c.mu held.
func (c *resultCache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
