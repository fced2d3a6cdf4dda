package embeddings

import (
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// CacheConfig holds configuration for the embedding cache.
type CacheConfig struct {
	// TTL is how long an entry stays fresh. Default: 24h
	TTL time.Duration `koanf:"ttl"`

	// MaxEntries bounds the cache size. When exceeded, the oldest entries
	// by creation time are evicted first. Default: 1000
	MaxEntries int `koanf:"max_entries"`
}

// ApplyDefaults sets default values for unset fields.
func (c *CacheConfig) ApplyDefaults() {
	if c.TTL == 0 {
		c.TTL = 24 * time.Hour
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 1000
	}
}

type cacheEntry struct {
	vector    []float32
	createdAt time.Time
}

// Cache is a TTL-bounded embedding cache keyed by a fast hash of the input
// text. Eviction is lazy: expired entries are dropped on access, and when
// the entry count exceeds the bound the oldest entries are evicted first.
type Cache struct {
	config CacheConfig

	mu      sync.Mutex
	entries map[uint64]cacheEntry

	now func() time.Time
}

// NewCache creates an empty cache.
func NewCache(config CacheConfig) *Cache {
	config.ApplyDefaults()
	return &Cache{
		config:  config,
		entries: make(map[uint64]cacheEntry),
		now:     time.Now,
	}
}

// cacheKey hashes text into a cache key.
func cacheKey(text string) uint64 {
	return xxhash.Sum64String(text)
}

// Get returns the cached vector for text, or nil on miss or TTL expiry.
// The returned slice is a copy; callers may mutate it freely.
func (c *Cache) Get(text string) []float32 {
	key := cacheKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if c.now().Sub(entry.createdAt) > c.config.TTL {
		delete(c.entries, key)
		return nil
	}
	return slices.Clone(entry.vector)
}

// Put stores a vector for text, evicting oldest entries if the bound is
// exceeded.
func (c *Cache) Put(text string, vector []float32) {
	key := cacheKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{vector: slices.Clone(vector), createdAt: c.now()}
	c.evictLocked()
}

// evictLocked drops expired entries, then the oldest entries until the
// count is within bounds. Callers must hold the mutex.
func (c *Cache) evictLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.createdAt) > c.config.TTL {
			delete(c.entries, key)
		}
	}

	for len(c.entries) > c.config.MaxEntries {
		var oldestKey uint64
		var oldestAt time.Time
		first := true
		for key, entry := range c.entries {
			if first || entry.createdAt.Before(oldestAt) {
				oldestKey = key
				oldestAt = entry.createdAt
				first = false
			}
		}
		delete(c.entries, oldestKey)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
