package configuration

import (
	"time"
)

// Upstream defaults.
const (
	DefaultBaseURL            = "https://api.openai.com/v1/"
	DefaultAPIKeyEnv          = "OPENAI_API_KEY"
	DefaultHTTPTimeoutSeconds = 60
	DefaultModel              = "gpt-4o-mini"
	DefaultComplexModel       = "gpt-4o"
)

// Rate limiting defaults.
const (
	DefaultTokensPerInterval = 40000
	DefaultInterval          = time.Minute
)

// Queue defaults.
const (
	DefaultMaxConcurrent = 5
	DefaultMaxQueueSize  = 100
	DefaultQueueTimeout  = 2 * time.Minute
)

// Cache defaults.
const (
	DefaultCacheTTL     = time.Hour
	DefaultCacheMaxSize = 1000
	DefaultRedisPrefix  = "aigw:"
)

// Retry and timeout defaults.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultTimeout      = 90 * time.Second
)

// DefaultConfig returns a configuration suitable for a single application
// process talking to the OpenAI API. The API key is read from
// DefaultAPIKeyEnv by Load; callers constructing a Config directly must set it.
func DefaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:     DefaultBaseURL,
			APIKeyEnv:   DefaultAPIKeyEnv,
			HTTPTimeout: DefaultHTTPTimeoutSeconds * time.Second,
		},
		Models: ModelConfig{
			Default: DefaultModel,
			Simple:  DefaultModel,
			Medium:  DefaultModel,
			Complex: DefaultComplexModel,
		},
		RateLimit: RateLimitConfig{
			TokensPerInterval: DefaultTokensPerInterval,
			Interval:          DefaultInterval,
		},
		Queue: QueueConfig{
			MaxConcurrent: DefaultMaxConcurrent,
			MaxQueueSize:  DefaultMaxQueueSize,
			QueueTimeout:  DefaultQueueTimeout,
		},
		Cache: CacheConfig{
			Enabled:     true,
			TTL:         DefaultCacheTTL,
			MaxSize:     DefaultCacheMaxSize,
			RedisPrefix: DefaultRedisPrefix,
		},
		Retry: RetryConfig{
			MaxRetries:   DefaultMaxRetries,
			InitialDelay: DefaultInitialDelay,
			MaxDelay:     DefaultMaxDelay,
		},
		Timeout: DefaultTimeout,
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			LogFormat:     "json",
			RedactPrompts: true,
		},
	}
}
