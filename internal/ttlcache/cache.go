package ttlcache

import (
	"context"
	"sync"
	"time"
)

// Cache is a bounded-lifetime map. Entries expire maxAge after insertion and
// are removed lazily on access plus eagerly by Sweep. A maxSize > 0 adds a
// hard cap with oldest-insertion eviction. All methods are safe for
// concurrent use and never panic on missing keys.
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	maxAge  time.Duration
	maxSize int
	entries map[K]entry[V]
	order   []K // insertion order; may contain keys already deleted
}

type entry[V any] struct {
	val        V
	insertedAt time.Time
}

// New returns an age-bounded cache.
func New[K comparable, V any](maxAge time.Duration) *Cache[K, V] {
	return NewBounded[K, V](maxAge, 0)
}

// NewBounded returns a cache bounded by age and, when maxSize > 0, by size.
func NewBounded[K comparable, V any](maxAge time.Duration, maxSize int) *Cache[K, V] {
	return &Cache[K, V]{
		maxAge:  maxAge,
		maxSize: maxSize,
		entries: make(map[K]entry[V]),
	}
}

func (c *Cache[K, V]) Set(k K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[k]; !exists {
		c.order = append(c.order, k)
	}
	c.entries[k] = entry[V]{val: v, insertedAt: time.Now()}
	c.evictOverCapLocked()
}

// Get returns the live value for k. Expired entries are deleted and reported
// as absent.
func (c *Cache[K, V]) Get(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(k)
}

// Ensure returns the live value for k, creating it with mk when absent.
func (c *Cache[K, V]) Ensure(k K, mk func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.getLocked(k); ok {
		return v
	}
	v := mk()
	if _, exists := c.entries[k]; !exists {
		c.order = append(c.order, k)
	}
	c.entries[k] = entry[V]{val: v, insertedAt: time.Now()}
	c.evictOverCapLocked()
	return v
}

// Take is a single-use Get: the entry is removed when found.
func (c *Cache[K, V]) Take(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.getLocked(k)
	if ok {
		delete(c.entries, k)
	}
	return v, ok
}

func (c *Cache[K, V]) Delete(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes every expired entry and returns how many were dropped.
func (c *Cache[K, V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-c.maxAge)
	removed := 0
	for k, e := range c.entries {
		if e.insertedAt.Before(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	c.compactOrderLocked()
	return removed
}

// StartSweeper sweeps on the given interval until ctx is done.
func (c *Cache[K, V]) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.Sweep()
			}
		}
	}()
}

func (c *Cache[K, V]) getLocked(k K) (V, bool) {
	var zero V
	e, ok := c.entries[k]
	if !ok {
		return zero, false
	}
	if c.maxAge > 0 && time.Since(e.insertedAt) > c.maxAge {
		delete(c.entries, k)
		return zero, false
	}
	return e.val, true
}

func (c *Cache[K, V]) evictOverCapLocked() {
	if c.maxSize <= 0 {
		return
	}
	for len(c.entries) > c.maxSize && len(c.order) > 0 {
		k := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, k)
	}
}

// compactOrderLocked drops order slots whose keys no longer exist so the
// slice cannot grow without bound across sweeps.
func (c *Cache[K, V]) compactOrderLocked() {
	live := c.order[:0]
	for _, k := range c.order {
		if _, ok := c.entries[k]; ok {
			live = append(live, k)
		}
	}
	c.order = live
}
