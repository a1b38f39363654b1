package queue

import (
	"context"

	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// NewMiddleware runs the rest of the chain as one queued operation. Every
// layer inside it, including token waits and retry backoff, occupies the
// slot.
func NewMiddleware(q *RequestQueue) transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			var resp *transport.Response
			err := q.Enqueue(ctx, func(ctx context.Context) error {
				r, err := next.Handle(ctx, req)
				if err != nil {
					return err
				}
				resp = r
				return nil
			})
			if err != nil {
				return nil, err
			}
			return resp, nil
		})
	}
}
