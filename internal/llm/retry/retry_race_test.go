package retry_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// flakyOnce fails the first attempt of every request ID with a 503.
type flakyOnce struct {
	mu   sync.Mutex
	seen map[string]int
}

func (h *flakyOnce) Handle(_ context.Context, req *transport.Request) (*transport.Response, error) {
	h.mu.Lock()
	h.seen[req.ID]++
	n := h.seen[req.ID]
	h.mu.Unlock()

	if n == 1 {
		return nil, status(http.StatusServiceUnavailable)
	}
	return &transport.Response{Content: req.ID}, nil
}

func TestRetry_ConcurrentRequestsKeepIndependentAttempts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		const requests = 64
		r := newRetrier(t, 2, 10*time.Millisecond)
		inner := &flakyOnce{seen: make(map[string]int)}
		h := r.Middleware()(inner)

		var wg sync.WaitGroup
		for i := range requests {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id := fmt.Sprintf("req-%d", i)
				resp, err := h.Handle(context.Background(), &transport.Request{ID: id, Operation: transport.OpChat})
				if assert.NoError(t, err) {
					assert.Equal(t, id, resp.Content)
				}
			}()
		}
		wg.Wait()

		for id, n := range inner.seen {
			require.Equal(t, 2, n, "attempts for %s", id)
		}

		stats := r.Stats()
		assert.Equal(t, int64(2*requests), stats.TotalAttempts)
		assert.Equal(t, int64(requests), stats.SuccessfulRetries)
		assert.Zero(t, stats.FailedRequests)
		assert.InDelta(t, 2.0, stats.AverageAttempts, 1e-9)
		assert.Equal(t, 10*time.Millisecond, stats.MaxBackoff)
	})
}
