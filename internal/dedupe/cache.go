// ABOUTME: TTL cache of recently recorded webhook message keys
// ABOUTME: Lets redelivered provider events skip the store round-trip inside a short window

package dedupe

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache tracks message keys that were recorded recently. It is safe for
// concurrent use. Correctness never depends on it: the store's idempotent
// insert remains the source of truth, the cache only saves work.
type Cache struct {
	items *gocache.Cache
}

// New creates a cache whose entries expire after ttl.
// Expired entries are purged every ttl/2 (at least once a second).
func New(ttl time.Duration) *Cache {
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	return &Cache{items: gocache.New(ttl, cleanup)}
}

// CheckAndMark atomically checks if a key has been seen and marks it if not.
// Returns true if the key was already seen (duplicate), false if it's new and now marked.
func (c *Cache) CheckAndMark(key string) bool {
	if c == nil || key == "" {
		return false
	}
	// Add fails when an unexpired entry exists.
	return c.items.Add(key, struct{}{}, gocache.DefaultExpiration) != nil
}

// Forget removes a key so the next CheckAndMark treats it as new. It is used
// when processing failed after CheckAndMark claimed the key.
func (c *Cache) Forget(key string) {
	if c == nil {
		return
	}
	c.items.Delete(key)
}

// Close drops all entries.
func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.items.Flush()
}
