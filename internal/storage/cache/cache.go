// Package cache implements the Storage Engine's bounded, TTL-bound
// read-through cache (spec §4.1): a fixed-capacity LRU mapping
// "entity:id" to its last-read value, where writes mutate the existing
// entry in place rather than invalidating it.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	value   any
	expires time.Time
}

// Config controls cache sizing and default expiry (spec §6.5 cache.*).
type Config struct {
	Enabled bool
	MaxSize int
	TTL     time.Duration
}

// Cache is a bounded LRU with per-entry TTL.
type Cache struct {
	mu      sync.Mutex
	lru     *lru.Cache[string, *entry]
	ttl     time.Duration
	enabled bool
}

// New builds a Cache. When cfg.Enabled is false, Get always misses and Set
// is a no-op, so callers don't need a separate disabled code path.
func New(cfg Config) (*Cache, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	l, err := lru.New[string, *entry](cfg.MaxSize)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l, ttl: cfg.TTL, enabled: cfg.Enabled}, nil
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	if !c.enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		c.lru.Remove(key)
		return nil, false
	}
	return e.value, true
}

// Set writes or refreshes key's value, resetting its TTL. Per spec §4.1,
// a write mutates the entry so subsequent readers see the just-written
// value immediately instead of a stale one until invalidation.
func (c *Cache) Set(key string, value any) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, &entry{value: value, expires: time.Now().Add(c.ttl)})
}

// Invalidate removes key from the cache.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// InvalidateAll clears the cache, e.g. on a config or schema change.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Enabled reports whether the cache is active.
func (c *Cache) Enabled() bool { return c.enabled }
