package retry

import (
	"math"
	"time"

	"github.com/ahrav/go-aigateway/internal/llm/configuration"
)

// Backoff returns the delay before retry number attempt (0-based):
// InitialDelay * 2^attempt, capped at MaxDelay when MaxDelay is positive.
func Backoff(cfg configuration.RetryConfig, attempt int) time.Duration {
	delay := cfg.InitialDelay
	if delay <= 0 {
		return 0
	}

	for range attempt {
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
		if cfg.MaxDelay > 0 && delay >= cfg.MaxDelay {
			break
		}
	}

	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}
