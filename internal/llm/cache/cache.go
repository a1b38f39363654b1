// Package cache memoizes successful gateway responses.
//
// ResponseCache is an in-process store bounded by TTL and entry count. It
// evicts the entry with the oldest timestamp: overwriting a key refreshes its
// timestamp, but reading it does not. A background sweep removes expired entries that are
// never read again. An optional SharedStore (Redis) sits behind the local
// cache so several processes can reuse each other's answers; its failures
// degrade to local-only caching.
package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/ahrav/go-aigateway/internal/llm/configuration"
)

// maxSweepInterval bounds how long an expired, unread entry can linger.
const maxSweepInterval = time.Hour

// entry is one cached value and the time it was stored.
type entry[V any] struct {
	Value    V
	StoredAt time.Time
}

// ResponseCache is a TTL and size-bounded cache keyed by canonical request
// hashes. The zero value is not usable; create one with New.
type ResponseCache[V any] struct {
	mu sync.Mutex
	// lru holds one slot beyond maxSize so Add never evicts on its own.
	// Entries promoted from the shared tier keep an older StoredAt, so list
	// order is not timestamp order; evictOldestLocked scans for the minimum.
	lru *simplelru.LRU[string, entry[V]]

	enabled bool
	ttl     time.Duration
	maxSize int

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64

	// sweepMu protects Start/Stop.
	sweepMu   sync.Mutex
	sweepStop chan struct{}
	sweepDone sync.WaitGroup

	logger *slog.Logger
}

// New creates a cache from cfg. A disabled cache accepts every call and
// stores nothing.
func New[V any](cfg configuration.CacheConfig) (*ResponseCache[V], error) {
	c := &ResponseCache[V]{
		enabled: cfg.Enabled,
		ttl:     cfg.TTL,
		maxSize: cfg.MaxSize,
		logger:  slog.Default().With("component", "response_cache"),
	}
	if !cfg.Enabled {
		return c, nil
	}

	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %v", cfg.TTL)
	}
	if cfg.MaxSize <= 0 {
		return nil, fmt.Errorf("cache max size must be positive, got %d", cfg.MaxSize)
	}

	store, err := simplelru.NewLRU[string, entry[V]](cfg.MaxSize+1, nil)
	if err != nil {
		return nil, fmt.Errorf("create lru store: %w", err)
	}
	c.lru = store
	return c, nil
}

// Enabled reports whether the cache stores anything.
func (c *ResponseCache[V]) Enabled() bool { return c.enabled }

// TTL returns the entry lifetime.
func (c *ResponseCache[V]) TTL() time.Duration { return c.ttl }

// Get returns the value stored under key if it is younger than the TTL.
// Expired entries are deleted on lookup.
func (c *ResponseCache[V]) Get(key string) (V, bool) {
	var zero V
	if !c.enabled {
		return zero, false
	}

	c.mu.Lock()
	e, ok := c.lru.Peek(key)
	if ok && c.expired(e, time.Now()) {
		c.lru.Remove(key)
		c.expirations.Add(1)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		c.misses.Add(1)
		return zero, false
	}
	c.hits.Add(1)
	return e.Value, true
}

// Set stores value under key with the current time, replacing any previous
// entry. When the cache is over capacity the oldest entry is evicted.
func (c *ResponseCache[V]) Set(key string, value V) {
	c.setAt(key, value, time.Now())
}

// setAt stores value with an explicit timestamp so entries promoted from the
// shared tier keep their original age.
func (c *ResponseCache[V]) setAt(key string, value V, storedAt time.Time) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	c.lru.Add(key, entry[V]{Value: value, StoredAt: storedAt})
	evicted := 0
	for c.lru.Len() > c.maxSize {
		c.evictOldestLocked()
		evicted++
	}
	c.mu.Unlock()

	if evicted > 0 {
		c.evictions.Add(int64(evicted))
	}
}

// evictOldestLocked removes the entry with the smallest StoredAt, breaking
// ties by insertion order. Caller must hold c.mu.
func (c *ResponseCache[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if !found || e.StoredAt.Before(oldestAt) {
			oldestKey, oldestAt, found = key, e.StoredAt, true
		}
	}
	if found {
		c.lru.Remove(oldestKey)
	}
}

// Delete removes key if present.
func (c *ResponseCache[V]) Delete(key string) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	c.lru.Remove(key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired or not.
func (c *ResponseCache[V]) Len() int {
	if !c.enabled {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge removes every entry.
func (c *ResponseCache[V]) Purge() {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
}

// Sweep deletes every expired entry and returns how many were removed.
func (c *ResponseCache[V]) Sweep() int {
	if !c.enabled {
		return 0
	}

	now := time.Now()
	removed := 0

	c.mu.Lock()
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok || !c.expired(e, now) {
			continue
		}
		c.lru.Remove(key)
		removed++
	}
	c.mu.Unlock()

	if removed > 0 {
		c.expirations.Add(int64(removed))
		c.logger.Debug("swept expired cache entries", "removed", removed)
	}
	return removed
}

// Start launches the background sweep. It runs every min(TTL, 1h) until Stop.
// Calling Start on a running or disabled cache is a no-op.
func (c *ResponseCache[V]) Start() {
	if !c.enabled {
		return
	}

	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.sweepStop != nil {
		return
	}

	interval := min(c.ttl, maxSweepInterval)
	stop := make(chan struct{})
	c.sweepStop = stop

	c.sweepDone.Add(1)
	go func() {
		defer c.sweepDone.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.Sweep()
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the background sweep and waits for it to exit.
func (c *ResponseCache[V]) Stop() {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	if c.sweepStop == nil {
		return
	}
	close(c.sweepStop)
	c.sweepDone.Wait()
	c.sweepStop = nil
}

func (c *ResponseCache[V]) expired(e entry[V], now time.Time) bool {
	return now.Sub(e.StoredAt) > c.ttl
}
