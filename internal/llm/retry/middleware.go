// Package retry re-attempts transient upstream failures with exponential
// backoff.
//
// Non-streaming calls retry on HTTP 429, 5xx and connection-level failures.
// Streaming calls retry only on 429: the stream is restarted from scratch and
// any partial text from the failed attempt is discarded. Errors pass through
// unclassified; mapping to the domain taxonomy happens once, outside this
// layer.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-aigateway/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-aigateway/internal/llm/errors"
	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

var (
	errMaxRetriesInvalid   = errors.New("max retries must be >= 0")
	errInitialDelayInvalid = errors.New("initial delay must be greater than 0 when retries are enabled")
	errMaxDelayInvalid     = errors.New("max delay must be >= initial delay")
)

// Retrier wraps an upstream handler with the retry policy. It is safe for
// concurrent use.
type Retrier struct {
	config configuration.RetryConfig
	logger *slog.Logger
	stats  retryStats
}

// New validates cfg and creates a Retrier.
func New(cfg configuration.RetryConfig) (*Retrier, error) {
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w, got %d", errMaxRetriesInvalid, cfg.MaxRetries)
	}
	if cfg.MaxRetries > 0 && cfg.InitialDelay <= 0 {
		return nil, fmt.Errorf("%w, got %v", errInitialDelayInvalid, cfg.InitialDelay)
	}
	if cfg.MaxDelay > 0 && cfg.MaxDelay < cfg.InitialDelay {
		return nil, fmt.Errorf("%w, MaxDelay: %v, InitialDelay: %v", errMaxDelayInvalid, cfg.MaxDelay, cfg.InitialDelay)
	}

	return &Retrier{
		config: cfg,
		logger: slog.Default().With("component", "retry"),
	}, nil
}

// Middleware returns the retry middleware.
func (r *Retrier) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			for attempt := 0; ; attempt++ {
				r.stats.totalAttempts.Add(1)

				resp, err := next.Handle(ctx, req)
				if err == nil {
					if attempt > 0 {
						r.stats.successfulRetries.Add(1)
					} else {
						r.stats.successfulFirstAttempts.Add(1)
					}
					return resp, nil
				}

				if !r.shouldRetry(req, err) || attempt >= r.config.MaxRetries || ctx.Err() != nil {
					r.stats.failedRequests.Add(1)
					annotateAttempts(err, attempt+1)
					return nil, err
				}

				delay := Backoff(r.config, attempt)
				r.stats.recordBackoff(delay)
				r.logger.Debug("retrying upstream call",
					"request_id", req.ID,
					"operation", req.Operation,
					"attempt", attempt+1,
					"max_retries", r.config.MaxRetries,
					"delay", delay,
					"error", err)

				if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
					r.stats.failedRequests.Add(1)
					return nil, fmt.Errorf("retry backoff interrupted after %d attempts: %w", attempt+1, sleepErr)
				}
			}
		})
	}
}

// shouldRetry applies the per-operation policy. A stream restart repeats
// every delta already delivered, so only throttling justifies one.
func (r *Retrier) shouldRetry(req *transport.Request, err error) bool {
	if req.Streaming() {
		return llmerrors.IsRateLimit(err)
	}
	return llmerrors.IsRetryable(err)
}

// annotateAttempts records how many attempts produced err.
func annotateAttempts(err error, attempts int) {
	var upErr *llmerrors.UpstreamError
	if errors.As(err, &upErr) {
		upErr.Attempts = attempts
	}
}

// sleepContext waits for d or until ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
