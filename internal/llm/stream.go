package llm

import (
	"context"
	"sync"

	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// StreamCallbacks receive the progress of a StreamChat call. Any field may
// be nil.
type StreamCallbacks struct {
	// OnMessage receives each text increment as it arrives.
	OnMessage func(delta string)
	// OnComplete receives the full text of the successful attempt.
	OnComplete func(text string)
	// OnError receives the failure after retries are exhausted.
	OnError func(err error)
}

// StreamChat streams a completion through the gateway pipeline without
// touching the cache. A rate-limited stream is restarted from scratch after
// backoff. Exactly one of OnComplete and OnError is called, and OnMessage is
// never called after it. The returned error is the one passed to OnError.
func (s *Service) StreamChat(ctx context.Context, messages []transport.Message, callbacks StreamCallbacks, opts Options) error {
	sink := &streamSink{callbacks: callbacks}

	req, err := s.newRequest(transport.OpStream, messages, opts.SystemMessage, opts)
	if err != nil {
		sink.fail(err)
		return err
	}
	req.OnDelta = sink.message

	resp, err := s.handler.Handle(ctx, req)
	if err != nil {
		sink.fail(err)
		return err
	}
	sink.complete(resp.Content)
	return nil
}

// streamSink serializes callbacks and enforces the terminal rule. Deltas
// from an attempt abandoned by the timeout guard may arrive late and are
// dropped.
type streamSink struct {
	mu        sync.Mutex
	done      bool
	callbacks StreamCallbacks
}

func (s *streamSink) message(delta string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done || s.callbacks.OnMessage == nil {
		return
	}
	s.callbacks.OnMessage(delta)
}

func (s *streamSink) complete(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	if s.callbacks.OnComplete != nil {
		s.callbacks.OnComplete(text)
	}
}

func (s *streamSink) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(err)
	}
}
