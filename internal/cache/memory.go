package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache implements in-memory TTL caching for trust scores
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a new memory cache. Expired entries are swept
// at cleanupInterval; stale graph versions age out the same way.
func NewMemoryCache(defaultTTL time.Duration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a cached score
func (c *MemoryCache) Get(key string) (float64, bool) {
	if val, found := c.cache.Get(key); found {
		return val.(float64), true
	}
	return 0, false
}

// Set stores a score under the default TTL
func (c *MemoryCache) Set(key string, value float64) {
	c.cache.SetDefault(key, value)
}

// Flush removes all cached scores
func (c *MemoryCache) Flush() {
	c.cache.Flush()
}
