package errors

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// ServerErrorStatusThreshold is the first HTTP status treated as an upstream failure.
const ServerErrorStatusThreshold = 500

// IsRetryable reports whether a raw transport failure is worth another attempt.
// Rate limits, 5xx responses and connection-level failures qualify; local
// admission failures, cancellations and every other status do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed) || errors.Is(err, context.Canceled) {
		return false
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return false
	}

	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		if upErr.StatusCode == 0 {
			return isNetworkError(upErr.Cause)
		}
		return upErr.StatusCode == http.StatusTooManyRequests ||
			upErr.StatusCode >= ServerErrorStatusThreshold
	}

	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return !netErr.Timeout
	}

	return isNetworkError(err)
}

// IsRateLimit reports whether err is upstream throttling, raw or classified.
func IsRateLimit(err error) bool {
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return upErr.StatusCode == http.StatusTooManyRequests
	}
	var rlErr *RateLimitError
	return errors.As(err, &rlErr)
}

// Classify maps a failure to the domain taxonomy. Errors that are already
// classified, queue admission errors and context errors pass through; raw
// UpstreamErrors are mapped by status: 401 auth, 429 rate limit, 5xx network,
// 400 model, anything else network with the raw message.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	if isClassified(err) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{Message: err.Error(), Timeout: true, Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		return &NetworkError{Message: err.Error(), Cause: err}
	}

	switch {
	case upErr.StatusCode == http.StatusUnauthorized:
		return &AuthenticationError{StatusCode: upErr.StatusCode, Message: upErr.Message, Cause: err}
	case upErr.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			StatusCode: upErr.StatusCode,
			Message:    upErr.Message,
			Attempts:   upErr.Attempts,
			RetryAfter: upErr.RetryAfter,
			Cause:      err,
		}
	case upErr.StatusCode >= ServerErrorStatusThreshold:
		return &NetworkError{StatusCode: upErr.StatusCode, Message: upErr.Message, Cause: err}
	case upErr.StatusCode == http.StatusBadRequest:
		return &ModelError{StatusCode: upErr.StatusCode, Message: upErr.Message, Cause: err}
	default:
		return &NetworkError{StatusCode: upErr.StatusCode, Message: upErr.Error(), Cause: err}
	}
}

// TypeOf returns the category of err for logging.
func TypeOf(err error) ErrorType {
	var (
		authErr  *AuthenticationError
		rlErr    *RateLimitError
		netErr   *NetworkError
		modelErr *ModelError
		valErr   *ValidationError
		qtErr    *QueueTimeoutError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return ErrorTypeAuth
	case errors.As(err, &rlErr):
		return ErrorTypeRateLimit
	case errors.As(err, &valErr):
		return ErrorTypeValidation
	case errors.As(err, &modelErr):
		return ErrorTypeModel
	case errors.As(err, &qtErr):
		return ErrorTypeQueueTimeout
	case errors.Is(err, ErrQueueFull):
		return ErrorTypeQueueFull
	case errors.Is(err, ErrQueueClosed):
		return ErrorTypeQueueClosed
	case errors.As(err, &netErr):
		return ErrorTypeNetwork
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	default:
		return ErrorTypeUnknown
	}
}

func isClassified(err error) bool {
	var (
		authErr  *AuthenticationError
		rlErr    *RateLimitError
		netErr   *NetworkError
		modelErr *ModelError
		valErr   *ValidationError
		qtErr    *QueueTimeoutError
	)
	return errors.As(err, &authErr) ||
		errors.As(err, &rlErr) ||
		errors.As(err, &netErr) ||
		errors.As(err, &modelErr) ||
		errors.As(err, &valErr) ||
		errors.As(err, &qtErr) ||
		errors.Is(err, ErrQueueFull) ||
		errors.Is(err, ErrQueueClosed)
}

// isNetworkError detects connection-level failures using type assertions
// first and a short list of message patterns as a fallback.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	lowered := strings.ToLower(err.Error())
	for _, indicator := range networkErrorIndicators {
		if strings.Contains(lowered, indicator) {
			return true
		}
	}
	return false
}

var networkErrorIndicators = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"unexpected eof",
}
