package llm

import (
	"context"

	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// GenerateChat sends messages and returns the completion. Identical calls
// within the cache TTL are answered from the cache with Cached set.
func (s *Service) GenerateChat(ctx context.Context, messages []transport.Message, opts Options) (*transport.Response, error) {
	req, err := s.newRequest(transport.OpChat, messages, opts.SystemMessage, opts)
	if err != nil {
		return nil, err
	}
	return s.handler.Handle(ctx, req)
}
