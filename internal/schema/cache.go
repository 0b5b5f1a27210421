package schema

import (
	"sync"
	"time"
)

// cache is a time-boxed read cache for fetched definitions. Schemas are
// immutable, so staleness only matters for negative lookups, which are not
// cached.
type cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	def     *Definition
	expires time.Time
}

func newCache(ttl time.Duration) *cache {
	return &cache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *cache) get(uid string, now time.Time) (*Definition, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[uid]
	c.mu.RUnlock()
	if !ok || now.After(entry.expires) {
		return nil, false
	}
	return entry.def, true
}

func (c *cache) put(uid string, def *Definition, now time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[uid] = cacheEntry{def: def, expires: now.Add(c.ttl)}
	c.mu.Unlock()
}
