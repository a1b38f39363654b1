package ratelimit_test

import (
	"context"
	"testing"
	"testing/quick"
	"testing/synctest"
	"time"

	"github.com/ahrav/go-aigateway/internal/llm/configuration"
	"github.com/ahrav/go-aigateway/internal/llm/ratelimit"
)

// TestTokenBucket_PropertyNeverExceedsRate checks that, for any sequence of
// consumes from a full bucket, the tokens handed out plus the final balance
// never exceed the initial capacity plus what the elapsed time refilled, and
// the balance never exceeds capacity.
func TestTokenBucket_PropertyNeverExceedsRate(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		const (
			capacity = 100.0
			rate     = 100.0 // tokens per second
		)

		property := func(amounts []uint8) bool {
			b, err := ratelimit.NewTokenBucket(configuration.RateLimitConfig{
				TokensPerInterval: rate,
				Interval:          time.Second,
			})
			if err != nil {
				return false
			}

			start := time.Now()
			var total float64
			for _, a := range amounts {
				if err := b.Consume(context.Background(), float64(a)); err != nil {
					return false
				}
				total += float64(a)
				if b.Available() > capacity+tolerance {
					return false
				}
			}

			refilled := time.Since(start).Seconds() * rate
			return total+b.Available() <= capacity+refilled+1e-6
		}

		if err := quick.Check(property, &quick.Config{MaxCount: 50}); err != nil {
			t.Error(err)
		}
	})
}

// TestTokenBucket_PropertyRefillReachesCapacity checks that an idle bucket
// always returns to exactly its capacity, whatever it was drained to.
func TestTokenBucket_PropertyRefillReachesCapacity(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		property := func(drain uint16) bool {
			b, err := ratelimit.NewTokenBucket(perSecond(50))
			if err != nil {
				return false
			}
			if err := b.Consume(context.Background(), float64(drain%500)); err != nil {
				return false
			}

			// Long enough to repay the largest possible deficit.
			time.Sleep(20 * time.Second)
			return b.Available() == b.Capacity()
		}

		if err := quick.Check(property, &quick.Config{MaxCount: 25}); err != nil {
			t.Error(err)
		}
	})
}
