// Package cache provides thread-safe caching utilities with time-based expiration.
package cache

import (
	"sync"
	"time"
)

// TTLCache is a thread-safe cache whose entries expire individually.
// The SQL backends keep schema introspection results in it and drop a
// table's entry whenever DDL touches that table.
type TTLCache[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]ttlEntry[V]
	ttl  time.Duration
	now  func() time.Time
}

type ttlEntry[V any] struct {
	value  V
	stored time.Time
}

// New creates a new TTLCache with the given TTL duration.
// A TTL of zero or less disables caching: Get always misses.
func New[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		data: make(map[K]ttlEntry[V]),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get retrieves a value from the cache.
// Returns the value and ok=true if the key exists and has not expired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	e, ok := c.data[key]
	if !ok || c.expiredLocked(e) {
		return zero, false
	}
	return e.value, true
}

// Set stores a value in the cache and starts its TTL timer.
func (c *TTLCache[K, V]) Set(key K, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = ttlEntry[V]{value: value, stored: c.now()}
}

// Delete drops a single key.
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Invalidate clears all cached data.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]ttlEntry[V])
}

// Len returns the number of items currently in the cache.
// This does not check expiration - it returns the count even if expired.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// expiredLocked MUST be called with at least a read lock held.
func (c *TTLCache[K, V]) expiredLocked(e ttlEntry[V]) bool {
	return c.now().Sub(e.stored) >= c.ttl
}
