package cache

import (
	"sync"
	"time"

	"github.com/stellarpay/starbridge/pkg/domain"
)

type cacheEntry struct {
	rate      *domain.AggregatedRate
	expiresAt time.Time
}

// MemoryCache is the in-process rate cache. Expired entries read as
// misses and are swept periodically.
type MemoryCache struct {
	entries map[string]*cacheEntry
	mu      sync.RWMutex
}

// NewMemoryCache creates an in-memory rate cache with a background sweep.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{entries: make(map[string]*cacheEntry)}
	go c.cleanup()
	return c
}

// Get returns the cached rate, or (nil, nil) on a miss or expiry.
func (c *MemoryCache) Get(key string) (*domain.AggregatedRate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	return entry.rate, nil
}

// Set stores a rate with a TTL.
func (c *MemoryCache) Set(key string, rate *domain.AggregatedRate, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{rate: rate, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes a key.
func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *MemoryCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		c.mu.Lock()
		for key, entry := range c.entries {
			if now.After(entry.expiresAt) {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}
