package configuration_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-aigateway/internal/llm/configuration"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func validConfig() *configuration.Config {
	cfg := configuration.DefaultConfig()
	cfg.Upstream.APIKey = "sk-test"
	return cfg
}

func TestDefaultConfig_IsValidOnceKeyed(t *testing.T) {
	cfg := configuration.DefaultConfig()
	assert.ErrorIs(t, cfg.Validate(), configuration.ErrMissingAPIKey)

	cfg.Upstream.APIKey = "sk-test"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, float64(configuration.DefaultTokensPerInterval), cfg.RateLimit.Burst())
}

func TestRateLimitConfig_Burst(t *testing.T) {
	rl := configuration.RateLimitConfig{TokensPerInterval: 100, Interval: time.Second}
	assert.Equal(t, 100.0, rl.Burst())

	rl.MaxBurst = 250
	assert.Equal(t, 250.0, rl.Burst())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *configuration.Config)
		wantErr bool
	}{
		{"defaults", func(*configuration.Config) {}, false},
		{"zero tokens per interval", func(c *configuration.Config) { c.RateLimit.TokensPerInterval = 0 }, true},
		{"zero interval", func(c *configuration.Config) { c.RateLimit.Interval = 0 }, true},
		{"negative burst", func(c *configuration.Config) { c.RateLimit.MaxBurst = -1 }, true},
		{"zero concurrency", func(c *configuration.Config) { c.Queue.MaxConcurrent = 0 }, true},
		{"zero queue size", func(c *configuration.Config) { c.Queue.MaxQueueSize = 0 }, true},
		{"zero queue timeout", func(c *configuration.Config) { c.Queue.QueueTimeout = 0 }, true},
		{"zero timeout", func(c *configuration.Config) { c.Timeout = 0 }, true},
		{"missing default model", func(c *configuration.Config) { c.Models.Default = "" }, true},
		{"enabled cache without ttl", func(c *configuration.Config) { c.Cache.TTL = 0 }, true},
		{"disabled cache without ttl", func(c *configuration.Config) {
			c.Cache.Enabled = false
			c.Cache.TTL = 0
			c.Cache.MaxSize = 0
		}, false},
		{"bad redis addr", func(c *configuration.Config) { c.Cache.RedisAddr = "not a host" }, true},
		{"good redis addr", func(c *configuration.Config) { c.Cache.RedisAddr = "localhost:6379" }, false},
		{"bad log level", func(c *configuration.Config) { c.Observability.LogLevel = "chatty" }, true},
		{"retries without delay", func(c *configuration.Config) { c.Retry.InitialDelay = 0 }, true},
		{"no retries no delay", func(c *configuration.Config) {
			c.Retry.MaxRetries = 0
			c.Retry.InitialDelay = 0
			c.Retry.MaxDelay = 0
		}, false},
		{"max delay below initial", func(c *configuration.Config) { c.Retry.MaxDelay = time.Millisecond }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Run("gateway key wins over api_key_env", func(t *testing.T) {
		cfg := configuration.DefaultConfig()
		configuration.ApplyEnv(cfg, envFrom(map[string]string{
			configuration.EnvAPIKey:        "sk-gateway",
			configuration.DefaultAPIKeyEnv: "sk-openai",
			configuration.EnvBaseURL:       "http://localhost:8080/v1/",
			configuration.EnvDefaultModel:  "local-model",
			configuration.EnvRedisAddr:     "cache:6379",
			configuration.EnvRedisPassword: "hunter2",
		}))

		assert.Equal(t, "sk-gateway", cfg.Upstream.APIKey)
		assert.Equal(t, "http://localhost:8080/v1/", cfg.Upstream.BaseURL)
		assert.Equal(t, "local-model", cfg.Models.Default)
		assert.Equal(t, "cache:6379", cfg.Cache.RedisAddr)
		assert.Equal(t, "hunter2", cfg.Cache.RedisPassword)
	})

	t.Run("falls back to api_key_env", func(t *testing.T) {
		cfg := configuration.DefaultConfig()
		configuration.ApplyEnv(cfg, envFrom(map[string]string{configuration.DefaultAPIKeyEnv: "sk-openai"}))
		assert.Equal(t, "sk-openai", cfg.Upstream.APIKey)
	})

	t.Run("explicit key is kept", func(t *testing.T) {
		cfg := configuration.DefaultConfig()
		cfg.Upstream.APIKey = "sk-file"
		configuration.ApplyEnv(cfg, envFrom(map[string]string{configuration.EnvAPIKey: "sk-env"}))
		assert.Equal(t, "sk-file", cfg.Upstream.APIKey)
	})
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	content := `
upstream:
  base_url: http://localhost:9999/v1/
  api_key: sk-yaml
models:
  default: small-model
  complex: big-model
rate_limit:
  tokens_per_interval: 500
  interval: 10s
  max_burst: 800
queue:
  max_concurrent: 2
  max_queue_size: 10
  queue_timeout: 45s
cache:
  enabled: true
  ttl: 5m
  max_size: 50
retry:
  max_retries: 2
  initial_delay: 250ms
timeout: 20s
observability:
  log_level: debug
  log_format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := configuration.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-yaml", cfg.Upstream.APIKey)
	assert.Equal(t, "small-model", cfg.Models.Default)
	assert.Equal(t, "big-model", cfg.Models.Complex)
	assert.Equal(t, 500.0, cfg.RateLimit.TokensPerInterval)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Interval)
	assert.Equal(t, 800.0, cfg.RateLimit.Burst())
	assert.Equal(t, 2, cfg.Queue.MaxConcurrent)
	assert.Equal(t, 45*time.Second, cfg.Queue.QueueTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, configuration.DefaultMaxDelay, cfg.Retry.MaxDelay, "unset fields keep defaults")
	assert.Equal(t, 20*time.Second, cfg.Timeout)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
}

func TestLoad_Errors(t *testing.T) {
	_, err := configuration.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue: [unterminated"), 0o600))
	_, err = configuration.Load(path)
	assert.Error(t, err)
}
