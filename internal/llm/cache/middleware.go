package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// sharedEntry is the JSON document stored in the shared tier.
type sharedEntry struct {
	Response *transport.Response `json:"response"`
	StoredAt time.Time           `json:"stored_at"`
}

// poolStatser is implemented by stores backed by a connection pool.
type poolStatser interface {
	PoolStats() *redis.PoolStats
}

// Layer serves cacheable requests from the local cache, then the shared
// tier, then the rest of the chain. Only successful responses are stored,
// once, after the inner layers (including retries) have finished.
type Layer struct {
	local  *ResponseCache[*transport.Response]
	shared SharedStore

	sharedHits   atomic.Int64
	sharedErrors atomic.Int64

	logger *slog.Logger
}

// NewLayer creates a cache layer. shared may be nil.
func NewLayer(local *ResponseCache[*transport.Response], shared SharedStore) *Layer {
	return &Layer{
		local:  local,
		shared: shared,
		logger: slog.Default().With("component", "cache"),
	}
}

// Middleware returns the transport.Middleware that intercepts requests.
func (l *Layer) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if !l.local.Enabled() || !req.Cacheable() {
				return next.Handle(ctx, req)
			}

			key, err := transport.CacheKey(req)
			if err != nil {
				l.logger.Warn("cache key build failed, bypassing cache",
					"request_id", req.ID,
					"error", err)
				return next.Handle(ctx, req)
			}

			if resp, ok := l.lookup(ctx, key); ok {
				l.logger.Debug("cache hit",
					"request_id", req.ID,
					"model", req.Model,
					"operation", req.Operation)
				return resp, nil
			}

			resp, err := next.Handle(ctx, req)
			if err != nil {
				return nil, err
			}

			l.store(ctx, key, resp)
			return resp, nil
		})
	}
}

// lookup consults the local cache, then the shared tier. Shared hits are
// promoted into the local cache with their original timestamp.
func (l *Layer) lookup(ctx context.Context, key string) (*transport.Response, bool) {
	if resp, ok := l.local.Get(key); ok {
		return markCached(resp), true
	}
	if l.shared == nil {
		return nil, false
	}

	data, ok, err := l.shared.Get(ctx, key)
	if err != nil {
		l.sharedErrors.Add(1)
		l.logger.Warn("shared cache read failed, continuing without it", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var e sharedEntry
	if err := json.Unmarshal(data, &e); err != nil || e.Response == nil {
		l.sharedErrors.Add(1)
		l.logger.Warn("discarding corrupt shared cache entry", "error", err)
		return nil, false
	}
	if time.Since(e.StoredAt) > l.local.TTL() {
		return nil, false
	}

	l.sharedHits.Add(1)
	l.local.setAt(key, e.Response.Clone(), e.StoredAt)
	return markCached(e.Response), true
}

// store writes resp to both tiers.
func (l *Layer) store(ctx context.Context, key string, resp *transport.Response) {
	now := time.Now()
	l.local.setAt(key, resp.Clone(), now)

	if l.shared == nil {
		return
	}

	data, err := json.Marshal(sharedEntry{Response: resp, StoredAt: now})
	if err != nil {
		l.sharedErrors.Add(1)
		l.logger.Warn("failed to encode shared cache entry", "error", err)
		return
	}
	if err := l.shared.Set(ctx, key, data, l.local.TTL()); err != nil {
		l.sharedErrors.Add(1)
		l.logger.Warn("shared cache write failed, continuing without it", "error", err)
	}
}

// Stats returns local and shared-tier metrics.
func (l *Layer) Stats() Stats {
	stats := l.local.Stats()
	stats.SharedHits = l.sharedHits.Load()
	stats.SharedErrors = l.sharedErrors.Load()

	if ps, ok := l.shared.(poolStatser); ok {
		pool := ps.PoolStats()
		stats.PoolHits = pool.Hits
		stats.PoolMisses = pool.Misses
		stats.PoolTimeouts = pool.Timeouts
		stats.PoolTotalConns = pool.TotalConns
	}
	return stats
}

// markCached returns a per-caller copy flagged as served from cache.
func markCached(resp *transport.Response) *transport.Response {
	c := resp.Clone()
	c.Cached = true
	return c
}
