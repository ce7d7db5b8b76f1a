package lei

import (
	"sync"
	"time"
)

// DefaultCacheTTL is the default lifetime of a cached lookup.
const DefaultCacheTTL = 24 * time.Hour

type cacheEntry struct {
	records   []Record
	expiresAt time.Time
}

// Cache is an in-memory TTL cache of lookups keyed by the normalized query.
// Empty results are cached too, so repeated misses do not reach the registry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a cache. A non-positive ttl disables caching.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached records for key. Expired entries are dropped on access.
func (cache *Cache) Get(key string) ([]Record, bool) {
	if cache.ttl <= 0 {
		return nil, false
	}

	cache.mu.RLock()
	entry, exists := cache.entries[key]
	cache.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if cache.now().After(entry.expiresAt) {
		cache.mu.Lock()
		if current, still := cache.entries[key]; still && cache.now().After(current.expiresAt) {
			delete(cache.entries, key)
		}
		cache.mu.Unlock()
		return nil, false
	}
	return entry.records, true
}

// Set stores records for key.
func (cache *Cache) Set(key string, records []Record) {
	if cache.ttl <= 0 {
		return
	}
	cache.mu.Lock()
	cache.entries[key] = cacheEntry{records: records, expiresAt: cache.now().Add(cache.ttl)}
	cache.mu.Unlock()
}

// Len returns the number of entries, expired ones included.
func (cache *Cache) Len() int {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	return len(cache.entries)
}
