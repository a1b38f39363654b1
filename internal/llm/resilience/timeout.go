package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	llmerrors "github.com/ahrav/go-aigateway/internal/llm/errors"
	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// NewTimeoutMiddleware races the rest of the chain against timeout. When the
// timer wins, the inner context is canceled, aborting token waits, backoff
// sleeps and the in-flight upstream call, and the caller receives a
// *llmerrors.NetworkError with Timeout set. A non-positive timeout disables
// the guard.
func NewTimeoutMiddleware(timeout time.Duration) transport.Middleware {
	if timeout <= 0 {
		return nil
	}

	type result struct {
		resp *transport.Response
		err  error
	}

	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(parent context.Context, req *transport.Request) (*transport.Response, error) {
			ctx, cancel := context.WithTimeout(parent, timeout)
			defer cancel()

			done := make(chan result, 1)
			go func() {
				resp, err := next.Handle(ctx, req)
				done <- result{resp: resp, err: err}
			}()

			select {
			case r := <-done:
				if r.err != nil && timedOut(parent, ctx) {
					return nil, timeoutError(timeout, r.err)
				}
				return r.resp, r.err
			case <-ctx.Done():
				if err := parent.Err(); err != nil {
					return nil, err
				}
				return nil, timeoutError(timeout, ctx.Err())
			}
		})
	}
}

// timedOut reports whether ctx expired on its own deadline rather than
// through the parent.
func timedOut(parent, ctx context.Context) bool {
	return parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func timeoutError(timeout time.Duration, cause error) error {
	return &llmerrors.NetworkError{
		Message: fmt.Sprintf("no response within %v", timeout),
		Timeout: true,
		Cause:   cause,
	}
}
