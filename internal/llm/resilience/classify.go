package resilience

import (
	"context"
	"errors"

	llmerrors "github.com/ahrav/go-aigateway/internal/llm/errors"
	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// NewClassificationMiddleware maps raw failures from the inner layers to the
// domain taxonomy. It sits outside the retry layer so each call is classified
// exactly once, after retries are exhausted or a non-retryable status is seen.
func NewClassificationMiddleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			resp, err := next.Handle(ctx, req)
			if err == nil {
				return resp, nil
			}

			classified := llmerrors.Classify(err)

			var modelErr *llmerrors.ModelError
			if errors.As(classified, &modelErr) && modelErr.Model == "" {
				modelErr.Model = req.Model
			}
			return nil, classified
		})
	}
}
