package api

import (
	"encoding/json"
	"sync"
	"time"
)

// Cache is a keyed store of prior successful read responses with TTL expiry
// and explicit invalidation. It is advisory, never a source of truth: an
// expired entry is treated as absent rather than evicted on a timer.
//
// The cache does not decide which responses are cacheable; the Client does.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration

	now func() time.Time // test hook
}

type cacheEntry struct {
	payload  json.RawMessage
	storedAt time.Time
	ttl      time.Duration
}

// DefaultCacheTTL is how long an entry stays valid unless invalidated first.
const DefaultCacheTTL = 5 * time.Minute

// NewCache creates an empty cache. A non-positive ttl falls back to
// DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached payload for key, if present and still valid.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.now().Sub(e.storedAt) >= e.ttl {
		// Lazy expiry: drop the stale entry on the way out.
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.storedAt.Equal(e.storedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.payload, true
}

// Put stores payload under key, overwriting any prior entry.
func (c *Cache) Put(key string, payload json.RawMessage) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		payload:  payload,
		storedAt: c.now(),
		ttl:      c.ttl,
	}
	c.mu.Unlock()
}

// InvalidateAll removes every entry. Called after each successful mutating
// request: cross-entity effects are not statically enumerable, so the cache
// is cleared globally rather than entry-by-entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, including any not yet lazily
// expired.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
