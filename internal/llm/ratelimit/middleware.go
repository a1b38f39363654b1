package ratelimit

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-aigateway/internal/llm/configuration"
	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// NewTokenBudgetMiddleware charges every request its EstimatedTokens against
// bucket before passing it on. It sits outside the retry layer, so retries of
// one call are charged once.
func NewTokenBudgetMiddleware(bucket *TokenBucket) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := bucket.Consume(ctx, float64(req.EstimatedTokens)); err != nil {
				return nil, err
			}
			return next.Handle(ctx, req)
		})
	}
}

// RequestLimiter caps upstream attempts per second. It wraps a single
// rate.Limiter shared by every call through a service instance.
type RequestLimiter struct {
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRequestLimiter returns nil when cfg.RequestsPerSecond is zero, which
// disables request-rate limiting. The burst defaults to the ceiling of the
// rate, and at least one.
func NewRequestLimiter(cfg configuration.RateLimitConfig) *RequestLimiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}

	burst := cfg.RequestBurst
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(cfg.RequestsPerSecond)))
	}

	return &RequestLimiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		logger:  slog.Default().With("component", "request_limiter"),
	}
}

// Wait blocks until one request may proceed or ctx ends.
func (l *RequestLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if !l.limiter.Allow() {
		l.logger.Debug("request rate limit reached, waiting")
		return l.limiter.Wait(ctx)
	}
	return nil
}

// Middleware gates each upstream attempt on the limiter. A nil limiter
// yields a nil middleware, which transport.Chain skips.
func (l *RequestLimiter) Middleware() transport.Middleware {
	if l == nil {
		return nil
	}
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := l.Wait(ctx); err != nil {
				return nil, err
			}
			return next.Handle(ctx, req)
		})
	}
}
