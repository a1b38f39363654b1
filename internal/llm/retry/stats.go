package retry

import (
	"sync/atomic"
	"time"
)

// retryStats provides thread-safe retry metrics using atomic operations.
type retryStats struct {
	totalAttempts           atomic.Int64 // Every upstream attempt, first tries included
	successfulRetries       atomic.Int64 // Requests that succeeded after retry
	successfulFirstAttempts atomic.Int64 // Requests that succeeded on first attempt
	failedRequests          atomic.Int64 // Requests that surfaced an error
	maxBackoff              atomic.Int64 // Maximum backoff duration in nanoseconds
}

// Stats holds aggregated metrics for retry middleware activity.
type Stats struct {
	// TotalAttempts is the total number of upstream attempts, including retries.
	TotalAttempts int64 `json:"total_attempts"`
	// SuccessfulRetries is the count of requests that succeeded only after one or more retries.
	SuccessfulRetries int64 `json:"successful_retries"`
	// FailedRequests is the count of requests that surfaced an error, retried or not.
	FailedRequests int64 `json:"failed_requests"`
	// AverageAttempts is the average number of attempts per request.
	AverageAttempts float64 `json:"average_attempts"`
	// MaxBackoff is the longest backoff duration applied.
	MaxBackoff time.Duration `json:"max_backoff"`
}

// recordBackoff tracks the largest delay seen.
func (s *retryStats) recordBackoff(backoff time.Duration) {
	nanos := backoff.Nanoseconds()
	for {
		current := s.maxBackoff.Load()
		if nanos <= current || s.maxBackoff.CompareAndSwap(current, nanos) {
			return
		}
	}
}

// Stats returns a snapshot of the retry statistics for this Retrier.
func (r *Retrier) Stats() Stats {
	total := r.stats.totalAttempts.Load()
	retried := r.stats.successfulRetries.Load()
	failed := r.stats.failedRequests.Load()
	first := r.stats.successfulFirstAttempts.Load()

	average := 1.0
	if requests := first + retried + failed; requests > 0 {
		average = float64(total) / float64(requests)
	}

	return Stats{
		TotalAttempts:     total,
		SuccessfulRetries: retried,
		FailedRequests:    failed,
		AverageAttempts:   average,
		MaxBackoff:        time.Duration(r.stats.maxBackoff.Load()),
	}
}
