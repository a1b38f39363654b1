// Package errors defines the failure taxonomy surfaced by the AI gateway.
//
// Transport code reports raw upstream failures as UpstreamError; the gateway
// classifies them exactly once, after retries are exhausted, into the domain
// types below so callers can react by kind (misconfiguration vs. throttling
// vs. a malformed answer) instead of parsing messages.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType names a failure category for logging and metrics dimensions.
type ErrorType string

const (
	// ErrorTypeAuth indicates rejected credentials (non-retryable).
	ErrorTypeAuth ErrorType = "authentication"

	// ErrorTypeRateLimit indicates upstream throttling (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeNetwork indicates an unavailable upstream or a local timeout (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeModel indicates a request the model rejected as malformed (non-retryable).
	ErrorTypeModel ErrorType = "model"

	// ErrorTypeValidation indicates structured output that failed to parse (non-retryable).
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeQueueTimeout indicates a queued item that did not settle in time.
	ErrorTypeQueueTimeout ErrorType = "queue_timeout"

	// ErrorTypeQueueFull indicates the request queue refused admission.
	ErrorTypeQueueFull ErrorType = "queue_full"

	// ErrorTypeQueueClosed indicates work submitted to, or pending in, a closed queue.
	ErrorTypeQueueClosed ErrorType = "queue_closed"

	// ErrorTypeCanceled indicates the caller abandoned the request.
	ErrorTypeCanceled ErrorType = "canceled"

	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = "unknown"
)

// ErrQueueFull is returned by the request queue when the pending list is at
// capacity. Admission failures are never retried.
var ErrQueueFull = errors.New("request queue is full")

// ErrQueueClosed is returned for work submitted to, or still pending in, a
// request queue that has been closed.
var ErrQueueClosed = errors.New("request queue is closed")

// UpstreamError is the raw, unclassified failure reported by the transport.
// StatusCode is zero when the request never produced an HTTP response.
type UpstreamError struct {
	StatusCode int           `json:"status_code"`
	Message    string        `json:"message"`
	Code       string        `json:"code,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	// Attempts is set by the retry layer on the error it finally surfaces.
	Attempts int   `json:"attempts,omitempty"`
	Cause    error `json:"-"`
}

// Error returns the upstream message with its status.
func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream request failed: %s", e.Message)
	}
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// AuthenticationError reports an HTTP 401 from the upstream API.
type AuthenticationError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Cause      error  `json:"-"`
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

func (e *AuthenticationError) Unwrap() error { return e.Cause }

// RateLimitError reports upstream throttling that outlasted the retry budget.
type RateLimitError struct {
	StatusCode int           `json:"status_code"`
	Message    string        `json:"message"`
	Attempts   int           `json:"attempts"`
	RetryAfter time.Duration `json:"retry_after"`
	Cause      error         `json:"-"`
}

func (e *RateLimitError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("rate limited after %d attempts: %s", e.Attempts, e.Message)
	}
	return fmt.Sprintf("rate limited: %s", e.Message)
}

func (e *RateLimitError) Unwrap() error { return e.Cause }

// NetworkError reports an unreachable or failing upstream, a 5xx, or a local
// timeout. Timeout is set when the gateway gave up waiting.
type NetworkError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Timeout    bool   `json:"timeout"`
	Cause      error  `json:"-"`
}

func (e *NetworkError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("request timed out: %s", e.Message)
	case e.StatusCode > 0:
		return fmt.Sprintf("upstream unavailable (status %d): %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("network error: %s", e.Message)
	}
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// ModelError reports an HTTP 400: the upstream rejected the request shape.
type ModelError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Model      string `json:"model,omitempty"`
	Cause      error  `json:"-"`
}

func (e *ModelError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("model %s rejected request: %s", e.Model, e.Message)
	}
	return fmt.Sprintf("model rejected request: %s", e.Message)
}

func (e *ModelError) Unwrap() error { return e.Cause }

// ValidationError reports structured output that could not be parsed.
// Content holds the offending text for diagnosis.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
	Cause   error  `json:"-"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// QueueTimeoutError reports a queued item that did not settle within the
// queue timeout, measured from enqueue.
type QueueTimeoutError struct {
	Timeout time.Duration `json:"timeout"`
	Started bool          `json:"started"`
}

func (e *QueueTimeoutError) Error() string {
	if e.Started {
		return fmt.Sprintf("queued request timed out after %v while running", e.Timeout)
	}
	return fmt.Sprintf("queued request timed out after %v waiting for a slot", e.Timeout)
}
