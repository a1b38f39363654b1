// Package resilience holds the gateway's protective middleware: the timeout
// guard, failure classification, structured-output validation, and the
// request logging that wraps every call.
package resilience

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-aigateway/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-aigateway/internal/llm/errors"
	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// ContentTruncationLimit is the maximum number of characters of response
// content included in logs before truncating.
const ContentTruncationLimit = 200

// Metrics collects observability data from gateway calls. It supports
// counters, histograms and gauges with tag-based dimensionality.
type Metrics interface {
	// IncrementCounter increases a counter metric by value.
	IncrementCounter(name string, tags map[string]string, value float64)
	// RecordHistogram records one observation, such as a latency or token count.
	RecordHistogram(name string, tags map[string]string, value float64)
	// SetGauge sets a gauge metric to value.
	SetGauge(name string, tags map[string]string, value float64)
}

// NoOpMetrics discards all data.
type NoOpMetrics struct{}

// NewNoOpMetrics returns a new no-op metrics collector.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (n *NoOpMetrics) IncrementCounter(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) RecordHistogram(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) SetGauge(_ string, _ map[string]string, _ float64) {}

// LoggingMiddleware records the start and outcome of every gateway call and
// assigns each request its ID. Prompt and response text is reduced to
// lengths when RedactPrompts is set.
type LoggingMiddleware struct {
	logger        *slog.Logger
	metrics       Metrics
	redactPrompts bool
}

// NewLoggingMiddleware creates the logging layer. A nil logger or metrics
// falls back to slog.Default and NoOpMetrics.
func NewLoggingMiddleware(config configuration.ObservabilityConfig, logger *slog.Logger, metrics Metrics) *LoggingMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}

	return &LoggingMiddleware{
		logger:        logger.With("component", "gateway"),
		metrics:       metrics,
		redactPrompts: config.RedactPrompts,
	}
}

// Middleware returns the transport.Middleware.
func (m *LoggingMiddleware) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if req.ID == "" {
				req.ID = uuid.NewString()
			}

			baseTags := map[string]string{
				"model":     req.Model,
				"operation": string(req.Operation),
			}

			m.logRequest(req)
			m.metrics.IncrementCounter("gateway.requests.total", baseTags, 1)

			start := time.Now()
			resp, err := next.Handle(ctx, req)
			duration := time.Since(start)

			m.metrics.RecordHistogram("gateway.request.duration_ms", baseTags, float64(duration.Milliseconds()))

			if err != nil {
				m.handleError(req, err, duration, baseTags)
			} else if resp != nil {
				m.handleSuccess(req, resp, duration, baseTags)
			}

			return resp, err
		})
	}
}

// logRequest logs the request shape, redacting message text if configured.
func (m *LoggingMiddleware) logRequest(req *transport.Request) {
	fields := []any{
		"request_id", req.ID,
		"model", req.Model,
		"operation", req.Operation,
		"messages", len(req.Messages),
		"estimated_tokens", req.EstimatedTokens,
	}
	if req.Parameters.Temperature != nil {
		fields = append(fields, "temperature", *req.Parameters.Temperature)
	}
	if req.Parameters.MaxTokens != nil {
		fields = append(fields, "max_tokens", *req.Parameters.MaxTokens)
	}

	if m.redactPrompts {
		chars := 0
		for _, msg := range req.Messages {
			chars += len(msg.Text())
		}
		fields = append(fields, "prompt_length", chars)
	} else if n := len(req.Messages); n > 0 {
		fields = append(fields, "last_message", req.Messages[n-1].Text())
	}

	m.logger.Info("gateway request started", fields...)
}

func (m *LoggingMiddleware) handleError(req *transport.Request, err error, duration time.Duration, baseTags map[string]string) {
	errorType := llmerrors.TypeOf(err)

	errorTags := maps.Clone(baseTags)
	errorTags["error_type"] = string(errorType)
	m.metrics.IncrementCounter("gateway.requests.errors", errorTags, 1)

	m.logger.Error("gateway request failed",
		"request_id", req.ID,
		"model", req.Model,
		"operation", req.Operation,
		"duration_ms", duration.Milliseconds(),
		"error_type", errorType,
		"error", err.Error())
}

func (m *LoggingMiddleware) handleSuccess(req *transport.Request, resp *transport.Response, duration time.Duration, baseTags map[string]string) {
	m.metrics.IncrementCounter("gateway.requests.success", baseTags, 1)
	if resp.Cached {
		m.metrics.IncrementCounter("gateway.cache.hits", baseTags, 1)
	} else {
		m.metrics.RecordHistogram("gateway.tokens.prompt", baseTags, float64(resp.Usage.PromptTokens))
		m.metrics.RecordHistogram("gateway.tokens.completion", baseTags, float64(resp.Usage.CompletionTokens))
	}

	fields := []any{
		"request_id", req.ID,
		"model", req.Model,
		"operation", req.Operation,
		"duration_ms", duration.Milliseconds(),
		"cached", resp.Cached,
		"finish_reason", resp.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	}

	if m.redactPrompts {
		fields = append(fields, "response_length", len(resp.Content))
	} else {
		content := resp.Content
		if len(content) > ContentTruncationLimit {
			content = content[:ContentTruncationLimit] + "..."
		}
		fields = append(fields, "response_preview", content)
	}

	m.logger.Info("gateway request completed", fields...)
}
