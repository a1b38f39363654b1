// Package transport defines the request pipeline of the AI gateway: the
// normalized request/response types, the Handler abstraction, and Middleware
// composition. Admission control, caching, retries and the upstream call are
// each a layer in one Chain.
package transport

import (
	"context"
	"fmt"
	"time"
)

// Upstream is the remote chat-completion API as seen by the pipeline.
// Complete performs a single non-streaming call; Stream performs a single
// streaming call, invoking onDelta for every increment, and returns the
// accumulated response. Neither retries.
type Upstream interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	Stream(ctx context.Context, req *Request, onDelta func(string)) (*Response, error)
}

// Validator checks upstream content before it leaves the core handler.
type Validator interface {
	ValidateResponse(req *Request, resp *Response) error
}

// Handler processes gateway requests through a composable middleware pipeline.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms a Handler into an enhanced Handler.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler.
// The first middleware is outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] == nil {
			continue
		}
		h = middlewares[i](h)
	}
	return h
}

// NewUpstreamHandler creates the core handler that performs one upstream call.
// validator may be nil.
func NewUpstreamHandler(upstream Upstream, validator Validator) Handler {
	return &upstreamHandler{upstream: upstream, validator: validator}
}

// upstreamHandler is the innermost handler of every chain.
type upstreamHandler struct {
	upstream  Upstream
	validator Validator
}

// Handle dispatches to Complete or Stream and validates the result.
func (h *upstreamHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	var (
		resp *Response
		err  error
	)
	if req.Streaming() {
		resp, err = h.upstream.Stream(ctx, req, req.OnDelta)
	} else {
		resp, err = h.upstream.Complete(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("upstream returned no response for model %s", req.Model)
	}

	resp.Latency = time.Since(start)

	if h.validator != nil {
		if err := h.validator.ValidateResponse(req, resp); err != nil {
			return nil, err
		}
	}

	return resp, nil
}
