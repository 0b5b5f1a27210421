package attestation

import (
	"sync"
	"time"

	id "veritas/pkg/domain"
)

// readCache is a time-boxed read cache over confirmed attestations.
// Safe for concurrent reads; inserts and evictions take the write lock.
// A zero TTL disables caching entirely.
type readCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[id.AttestationID]cacheEntry
}

type cacheEntry struct {
	record   *Attestation
	cachedAt time.Time
}

func newReadCache(ttl time.Duration) *readCache {
	return &readCache{
		ttl:     ttl,
		entries: make(map[id.AttestationID]cacheEntry),
	}
}

func (c *readCache) get(attID id.AttestationID, now time.Time) (*Attestation, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[attID]
	c.mu.RUnlock()
	if !ok || now.Sub(entry.cachedAt) > c.ttl {
		return nil, false
	}
	return entry.record, true
}

func (c *readCache) put(record *Attestation, now time.Time) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[record.ID] = cacheEntry{record: record, cachedAt: now}
	c.mu.Unlock()
}

func (c *readCache) evict(attID id.AttestationID) {
	c.mu.Lock()
	delete(c.entries, attID)
	c.mu.Unlock()
}
