// Package cache provides a generic in-process TTL cache used for upstream lookups.
//
// A TTL cache supports:
//   - get-or-fetch with coalescing of concurrent lookups for the same key
//   - negative entries with their own TTL for "not found" results
//   - stale-on-error fallback when a refresh fails, held for the negative TTL
//   - a bounded size, evicting the entry with the oldest timestamp
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the value for key from the upstream.
type FetchFunc[V any] func(ctx context.Context, key string) (V, error)

// NegativeFunc builds the placeholder stored when a fetch fails.
// Returning false means the failure is not cached and the error is surfaced.
type NegativeFunc[V any] func(key string, err error) (V, bool)

// Options configures a TTL cache.
type Options[V any] struct {
	TTL          time.Duration
	NegativeTTL  time.Duration
	MaxEntries   int // 0 = unbounded
	StaleOnError bool
	Negative     NegativeFunc[V]
	Now          func() time.Time
}

type entry[V any] struct {
	value    V
	storedAt time.Time
	negative bool
	// heldUntil keeps a stale value served after a failed refresh.
	heldUntil time.Time
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Fetches   int64
	Coalesced int64
	Stale     int64
	Evictions int64
}

// TTL is a concurrency-safe TTL cache.
type TTL[V any] struct {
	opts  Options[V]
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry[V]

	hits      atomic.Int64
	misses    atomic.Int64
	fetches   atomic.Int64
	coalesced atomic.Int64
	stale     atomic.Int64
	evictions atomic.Int64
}

// New creates a TTL cache.
func New[V any](opts Options[V]) *TTL[V] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = opts.TTL
	}
	return &TTL[V]{
		opts:    opts,
		entries: make(map[string]entry[V]),
	}
}

func (c *TTL[V]) fresh(e entry[V], now time.Time) bool {
	if now.Before(e.heldUntil) {
		return true
	}
	ttl := c.opts.TTL
	if e.negative {
		ttl = c.opts.NegativeTTL
	}
	return now.Sub(e.storedAt) < ttl
}

// Get returns a fresh value for key. Negative entries are returned as well;
// the second result is false only when nothing fresh is cached.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.fresh(e, c.opts.Now()) {
		return e.value, true
	}
	var zero V
	return zero, false
}

// Peek returns the cached value regardless of freshness.
func (c *TTL[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.value, ok
}

// IsNegative reports whether a fresh negative entry exists for key.
func (c *TTL[V]) IsNegative(key string) bool {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	return ok && e.negative && c.fresh(e, c.opts.Now())
}

// Set stores a positive value.
func (c *TTL[V]) Set(key string, value V) {
	c.store(key, entry[V]{value: value, storedAt: c.opts.Now()})
}

// SetNegative stores a placeholder governed by the negative TTL.
func (c *TTL[V]) SetNegative(key string, value V) {
	c.store(key, entry[V]{value: value, storedAt: c.opts.Now(), negative: true})
}

func (c *TTL[V]) store(key string, e entry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	if c.opts.MaxEntries > 0 && len(c.entries) > c.opts.MaxEntries {
		c.evictOldestLocked()
	}
}

// evictOldestLocked removes the single entry with the oldest timestamp.
func (c *TTL[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.storedAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.storedAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		c.evictions.Add(1)
	}
}

// Invalidate removes key from the cache.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge removes every entry whose TTL has lapsed.
func (c *TTL[V]) Purge() int {
	now := c.opts.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if !c.fresh(e, now) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of cached entries, fresh or not.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetOrFetch returns the fresh cached value or loads it with fetch.
// Concurrent callers for the same key share a single upstream call.
func (c *TTL[V]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[V]) (V, error) {
	if v, ok := c.Get(key); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)

	res, err, shared := c.group.Do(key, func() (any, error) {
		// A fresh value may have landed between the miss and acquiring the flight.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		c.fetches.Add(1)
		// The leader's cancellation must not fail the followers sharing this call.
		v, err := fetch(context.WithoutCancel(ctx), key)
		if err == nil {
			c.Set(key, v)
			return v, nil
		}
		if c.opts.StaleOnError {
			c.mu.RLock()
			old, ok := c.entries[key]
			c.mu.RUnlock()
			if ok && !old.negative {
				c.stale.Add(1)
				c.hold(key, old)
				return old.value, nil
			}
		}
		if c.opts.Negative != nil {
			if placeholder, ok := c.opts.Negative(key, err); ok {
				c.SetNegative(key, placeholder)
				return placeholder, nil
			}
		}
		return nil, err
	})
	if shared {
		c.coalesced.Add(1)
	}
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// hold keeps a stale entry servable for the negative TTL so that a failing
// upstream is not called on every lookup.
func (c *TTL[V]) hold(key string, stale entry[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.entries[key]
	if !ok || !cur.storedAt.Equal(stale.storedAt) {
		return
	}
	cur.heldUntil = c.opts.Now().Add(c.opts.NegativeTTL)
	c.entries[key] = cur
}

// Stats returns a snapshot of the cache counters.
func (c *TTL[V]) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Fetches:   c.fetches.Load(),
		Coalesced: c.coalesced.Load(),
		Stale:     c.stale.Load(),
		Evictions: c.evictions.Load(),
	}
}
