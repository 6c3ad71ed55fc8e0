package core

import (
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value    V
	inserted time.Time
}

// TTLCache is an in-memory cache whose entries expire ttl after insertion.
// Expiry is checked on read.
type TTLCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry[V]
	now     func() time.Time
}

// NewTTLCache creates an empty cache
func NewTTLCache[V any](ttl time.Duration) *TTLCache[V] {
	return &TTLCache[V]{
		ttl:     ttl,
		entries: make(map[string]cacheEntry[V]),
		now:     time.Now,
	}
}

func (c *TTLCache[V]) valid(e cacheEntry[V]) bool {
	return c.ttl <= 0 || c.now().Sub(e.inserted) < c.ttl
}

// Get returns the cached value if present and not expired
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !c.valid(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.entries[key] = cacheEntry[V]{value: value, inserted: c.now()}
	c.mu.Unlock()
}

// GetOrCompute returns the cached value or computes, stores and returns it.
// Errors from compute are returned and nothing is cached.
func (c *TTLCache[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// another reader may have filled it while we waited for the lock
	if e, ok := c.entries[key]; ok && c.valid(e) {
		return e.value, nil
	}

	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}
	c.entries[key] = cacheEntry[V]{value: v, inserted: c.now()}
	return v, nil
}

// Invalidate drops one key
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry[V])
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
