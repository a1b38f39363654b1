// Package ratelimit throttles outbound gateway traffic.
//
// Two independent limiters live here. TokenBucket charges each unit of work
// its estimated token cost and delays callers until the bucket can pay for
// them; it is a best-effort throttle, never an admission gate. The request
// limiter caps upstream attempts per second with golang.org/x/time/rate and
// runs once per retry attempt.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ahrav/go-aigateway/internal/llm/configuration"
)

// TokenBucket throttles aggregate token consumption to a configured rate,
// allowing bursts up to its capacity. One bucket is shared by every call
// through a service instance.
type TokenBucket struct {
	mu sync.Mutex

	// tokens may go negative after an oversized consume; later callers
	// then wait for the deficit to refill.
	tokens     float64
	lastRefill time.Time

	capacity          float64
	tokensPerInterval float64
	interval          time.Duration

	logger *slog.Logger
}

// NewTokenBucket creates a full bucket from cfg.
func NewTokenBucket(cfg configuration.RateLimitConfig) (*TokenBucket, error) {
	if cfg.TokensPerInterval <= 0 {
		return nil, fmt.Errorf("tokens per interval must be positive, got %v", cfg.TokensPerInterval)
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", cfg.Interval)
	}
	if cfg.MaxBurst < 0 {
		return nil, fmt.Errorf("max burst cannot be negative, got %v", cfg.MaxBurst)
	}

	capacity := cfg.Burst()
	return &TokenBucket{
		tokens:            capacity,
		lastRefill:        time.Now(),
		capacity:          capacity,
		tokensPerInterval: cfg.TokensPerInterval,
		interval:          cfg.Interval,
		logger:            slog.Default().With("component", "token_bucket"),
	}, nil
}

// Consume deducts amount from the bucket, first waiting long enough for the
// refill to cover any shortfall. After the wait the deduction is
// unconditional, so a single oversized request can drive the bucket negative
// and delay the callers behind it.
//
// Consume only fails when ctx ends during the wait; nothing is deducted then.
func (b *TokenBucket) Consume(ctx context.Context, amount float64) error {
	if amount <= 0 {
		return nil
	}

	b.mu.Lock()
	b.refillLocked(time.Now())
	if b.tokens >= amount {
		b.tokens -= amount
		b.mu.Unlock()
		return nil
	}
	wait := b.waitForLocked(amount)
	b.mu.Unlock()

	b.logger.Debug("waiting for token refill",
		"amount", amount,
		"wait", wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	// Other callers may have drained the bucket while this one slept; the
	// second refill observes their effect before the deduction.
	b.mu.Lock()
	b.refillLocked(time.Now())
	b.tokens -= amount
	b.mu.Unlock()

	return nil
}

// Available returns the current token balance after refill. It may be
// negative.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(time.Now())
	return b.tokens
}

// Capacity returns the burst capacity.
func (b *TokenBucket) Capacity() float64 {
	return b.capacity
}

// refillLocked adds tokens linearly for the time elapsed since the last
// refill, capped at capacity. Caller must hold b.mu.
func (b *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.capacity, b.tokens+float64(elapsed)/float64(b.interval)*b.tokensPerInterval)
	b.lastRefill = now
}

// waitForLocked returns how long the refill needs to cover amount, rounded
// up to the millisecond. Caller must hold b.mu.
func (b *TokenBucket) waitForLocked(amount float64) time.Duration {
	deficit := amount - b.tokens
	ms := math.Ceil(deficit / b.tokensPerInterval * float64(b.interval) / float64(time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}
