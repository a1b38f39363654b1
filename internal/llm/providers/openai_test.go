package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-aigateway/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-aigateway/internal/llm/errors"
	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

const completionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o-mini",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello!"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(configuration.UpstreamConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Headers: map[string]string{"X-Tenant": "acme"},
	})
	require.NoError(t, err)
	return c
}

func chatRequest() *transport.Request {
	return &transport.Request{
		ID:        "req-123",
		Operation: transport.OpChat,
		Model:     "gpt-4o-mini",
		Messages: []transport.Message{
			{Role: transport.RoleSystem, Content: "Be brief."},
			{Role: transport.RoleUser, Content: "Hello"},
		},
		Parameters: transport.Parameters{
			Temperature: transport.Float(0.2),
			MaxTokens:   transport.Int(64),
		},
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient(configuration.UpstreamConfig{BaseURL: "http://localhost"})
	assert.ErrorIs(t, err, configuration.ErrMissingAPIKey)
}

func TestComplete(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "req-123", r.Header.Get(RequestIDHeader))
		assert.Equal(t, "acme", r.Header.Get("X-Tenant"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	})

	resp, err := c.Complete(context.Background(), chatRequest())
	require.NoError(t, err)

	assert.Equal(t, "Hello!", resp.Content)
	assert.Equal(t, "chatcmpl-1", resp.ID)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, transport.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, resp.Usage)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.InDelta(t, 0.2, body["temperature"], 1e-9)
	assert.InDelta(t, 64, body["max_tokens"], 1e-9)
	assert.NotContains(t, body, "top_p", "unset parameters are omitted")
	assert.NotContains(t, body, "response_format")

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "Hello", messages[1].(map[string]any)["content"])
}

func TestComplete_JSONFormatAndParts(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	})

	req := chatRequest()
	req.Format = transport.FormatJSON
	req.Messages = []transport.Message{{
		Role:    transport.RoleUser,
		Content: "Describe this image",
		Parts:   []transport.ContentPart{{Type: transport.PartImageURL, ImageURL: "https://example.com/cat.png"}},
	}}

	_, err := c.Complete(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])

	messages := body["messages"].([]any)
	parts, ok := messages[0].(map[string]any)["content"].([]any)
	require.True(t, ok, "parts are sent as a content array")
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
}

func TestStream(t *testing.T) {
	chunk := func(content, finish string) string {
		finishJSON := "null"
		if finish != "" {
			finishJSON = fmt.Sprintf("%q", finish)
		}
		return fmt.Sprintf(`data: {"id":"chatcmpl-2","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q},"finish_reason":%s}]}`+"\n\n",
			content, finishJSON)
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, s := range []string{chunk("Hel", ""), chunk("", ""), chunk("lo", ""), chunk(" world", "stop")} {
			_, _ = io.WriteString(w, s)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	req := chatRequest()
	req.Operation = transport.OpStream

	var deltas []string
	resp, err := c.Stream(context.Background(), req, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo", " world"}, deltas)
	assert.Equal(t, "Hello world", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "chatcmpl-2", resp.ID)
}

func TestHTTPFailuresMapToUpstreamError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     map[string]string
		retryable  bool
		retryAfter time.Duration
		wantType   llmerrors.ErrorType
	}{
		{name: "rate limited", status: 429, header: map[string]string{"Retry-After": "2"}, retryable: true, retryAfter: 2 * time.Second, wantType: llmerrors.ErrorTypeRateLimit},
		{name: "unauthorized", status: 401, wantType: llmerrors.ErrorTypeAuth},
		{name: "bad request", status: 400, wantType: llmerrors.ErrorTypeModel},
		{name: "server error", status: 502, retryable: true, wantType: llmerrors.ErrorTypeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"scripted failure","type":"test","code":"scripted"}}`)
			})

			_, err := c.Complete(context.Background(), chatRequest())

			var upErr *llmerrors.UpstreamError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, tt.status, upErr.StatusCode)
			assert.Equal(t, tt.retryAfter, upErr.RetryAfter)
			assert.Equal(t, tt.retryable, llmerrors.IsRetryable(err))
			assert.Equal(t, tt.wantType, llmerrors.TypeOf(llmerrors.Classify(err)))
			assert.Equal(t, int32(1), hits.Load(), "the client never retries on its own")
		})
	}
}

func TestStream_HTTPFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
	})

	req := chatRequest()
	req.Operation = transport.OpStream

	called := false
	_, err := c.Stream(context.Background(), req, func(string) { called = true })
	assert.True(t, llmerrors.IsRateLimit(err))
	assert.False(t, called)
}

func TestConnectionFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := NewClient(configuration.UpstreamConfig{BaseURL: addr, APIKey: "k"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), chatRequest())

	var upErr *llmerrors.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Zero(t, upErr.StatusCode)
	assert.True(t, llmerrors.IsRetryable(err))
}

func TestCanceledContextPassesThrough(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, completionBody)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, chatRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		header http.Header
		want   time.Duration
	}{
		{"absent", http.Header{}, 0},
		{"seconds", http.Header{"Retry-After": {"3"}}, 3 * time.Second},
		{"fractional seconds", http.Header{"Retry-After": {"1.5"}}, 1500 * time.Millisecond},
		{"milliseconds win", http.Header{"Retry-After-Ms": {"250"}, "Retry-After": {"3"}}, 250 * time.Millisecond},
		{"http date", http.Header{"Retry-After": {now.Add(10 * time.Second).Format(http.TimeFormat)}}, 10 * time.Second},
		{"date in past", http.Header{"Retry-After": {now.Add(-time.Minute).Format(http.TimeFormat)}}, 0},
		{"garbage", http.Header{"Retry-After": {"soon"}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.header, now))
		})
	}
}

func TestConvertMessages_Roles(t *testing.T) {
	msgs := convertMessages([]transport.Message{
		{Role: transport.RoleSystem, Content: "s"},
		{Role: transport.RoleUser, Content: "u"},
		{Role: transport.RoleAssistant, Content: "a"},
		{Role: transport.RoleTool, Content: "t", ToolCallID: "call_1"},
	})
	require.Len(t, msgs, 4)

	raw, err := json.Marshal(msgs)
	require.NoError(t, err)
	for _, want := range []string{`"role":"system"`, `"role":"user"`, `"role":"assistant"`, `"role":"tool"`, `"tool_call_id":"call_1"`} {
		assert.True(t, strings.Contains(string(raw), want), want)
	}
}
