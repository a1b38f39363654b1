// Package configuration holds the AI gateway settings: upstream endpoint and
// credentials, model tiers, and the tuning knobs for the token bucket,
// request queue, response cache, retry policy and timeouts.
package configuration

import (
	"net/http"
	"time"
)

// Config holds the complete configuration for one gateway service instance.
// Every instance owns its own throttle, queue and cache; two services built
// from the same Config share nothing.
type Config struct {
	// Upstream API endpoint and credentials.
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream" validate:"required"`

	// Model selection by complexity tier.
	Models ModelConfig `json:"models" yaml:"models" validate:"required"`

	// Token-bucket and request-rate limiting.
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit" validate:"required"`

	// Concurrency and admission limits.
	Queue QueueConfig `json:"queue" yaml:"queue" validate:"required"`

	// Response cache.
	Cache CacheConfig `json:"cache" yaml:"cache"`

	// Retry policy for upstream calls.
	Retry RetryConfig `json:"retry" yaml:"retry"`

	// Timeout bounds one queued unit of work, including token waits and retries.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`

	// Observability settings.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// UpstreamConfig describes the chat-completion API the gateway talks to.
type UpstreamConfig struct {
	BaseURL      string            `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
	APIKey       string            `json:"-" yaml:"api_key"` // Sensitive, not serialized
	APIKeyEnv    string            `json:"api_key_env" yaml:"api_key_env"`
	Organization string            `json:"organization,omitempty" yaml:"organization"`
	Headers      map[string]string `json:"headers,omitempty" yaml:"headers"`
	HTTPTimeout  time.Duration     `json:"http_timeout" yaml:"http_timeout" validate:"gte=0"`
	HTTPClient   *http.Client      `json:"-" yaml:"-" validate:"-"`
}

// ModelConfig maps complexity tiers to model names. Empty tiers fall back
// to Default.
type ModelConfig struct {
	Default string `json:"default" yaml:"default" validate:"required"`
	Simple  string `json:"simple,omitempty" yaml:"simple"`
	Medium  string `json:"medium,omitempty" yaml:"medium"`
	Complex string `json:"complex,omitempty" yaml:"complex"`
}

// RateLimitConfig controls outbound throughput.
//
// The token bucket admits TokensPerInterval estimated tokens every Interval
// with bursts up to MaxBurst (0 means TokensPerInterval). RequestsPerSecond
// additionally caps upstream attempts; 0 disables that limiter.
type RateLimitConfig struct {
	TokensPerInterval float64       `json:"tokens_per_interval" yaml:"tokens_per_interval" validate:"gt=0"`
	Interval          time.Duration `json:"interval" yaml:"interval" validate:"gt=0"`
	MaxBurst          float64       `json:"max_burst,omitempty" yaml:"max_burst" validate:"gte=0"`
	RequestsPerSecond float64       `json:"requests_per_second,omitempty" yaml:"requests_per_second" validate:"gte=0"`
	RequestBurst      int           `json:"request_burst,omitempty" yaml:"request_burst" validate:"gte=0"`
}

// QueueConfig bounds in-flight and waiting work. QueueTimeout is measured
// from enqueue, not from start.
type QueueConfig struct {
	MaxConcurrent int           `json:"max_concurrent" yaml:"max_concurrent" validate:"gt=0"`
	MaxQueueSize  int           `json:"max_queue_size" yaml:"max_queue_size" validate:"gt=0"`
	QueueTimeout  time.Duration `json:"queue_timeout" yaml:"queue_timeout" validate:"gt=0"`
}

// CacheConfig controls response memoization. The Redis fields enable an
// optional shared tier behind the in-process cache.
type CacheConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	TTL           time.Duration `json:"ttl" yaml:"ttl" validate:"required_if=Enabled true,gte=0"`
	MaxSize       int           `json:"max_size" yaml:"max_size" validate:"required_if=Enabled true,gte=0"`
	RedisAddr     string        `json:"redis_addr,omitempty" yaml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string        `json:"-" yaml:"redis_password"` // Sensitive field excluded from JSON.
	RedisDB       int           `json:"redis_db,omitempty" yaml:"redis_db" validate:"gte=0"`
	RedisPrefix   string        `json:"redis_prefix,omitempty" yaml:"redis_prefix"`
}

// RetryConfig controls exponential backoff: attempt n (0-based) waits
// InitialDelay * 2^n, capped at MaxDelay when MaxDelay > 0.
type RetryConfig struct {
	MaxRetries   int           `json:"max_retries" yaml:"max_retries" validate:"gte=0"`
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay" validate:"gte=0"`
	MaxDelay     time.Duration `json:"max_delay,omitempty" yaml:"max_delay" validate:"gte=0"`
}

// ObservabilityConfig controls logging.
type ObservabilityConfig struct {
	LogLevel      string `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFormat     string `json:"log_format" yaml:"log_format" validate:"omitempty,oneof=json text"`
	RedactPrompts bool   `json:"redact_prompts" yaml:"redact_prompts"`
}

// Burst returns the effective bucket capacity.
func (c RateLimitConfig) Burst() float64 {
	if c.MaxBurst > 0 {
		return c.MaxBurst
	}
	return c.TokensPerInterval
}
