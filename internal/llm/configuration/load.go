package configuration

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvAPIKey        = "AIGATEWAY_API_KEY"
	EnvBaseURL       = "AIGATEWAY_BASE_URL"
	EnvDefaultModel  = "AIGATEWAY_DEFAULT_MODEL"
	EnvRedisAddr     = "AIGATEWAY_REDIS_ADDR"
	EnvRedisPassword = "AIGATEWAY_REDIS_PASSWORD"
)

// ErrMissingAPIKey indicates neither the config, its api_key_env variable nor
// EnvAPIKey supplied credentials.
var ErrMissingAPIKey = errors.New("upstream API key is required")

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a YAML configuration file layered over DefaultConfig, applies
// environment overrides and validates the result. An empty path loads the
// defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	ApplyEnv(cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment values onto cfg. lookup is os.LookupEnv in
// production and a map-backed function in tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v, ok := lookup(EnvDefaultModel); ok && v != "" {
		cfg.Models.Default = v
	}
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v, ok := lookup(EnvRedisPassword); ok && v != "" {
		cfg.Cache.RedisPassword = v
	}

	// Key precedence: explicit config value, then AIGATEWAY_API_KEY, then the
	// variable named by api_key_env.
	if cfg.Upstream.APIKey != "" {
		return
	}
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		cfg.Upstream.APIKey = v
		return
	}
	if name := strings.TrimSpace(cfg.Upstream.APIKeyEnv); name != "" {
		if v, ok := lookup(name); ok {
			cfg.Upstream.APIKey = v
		}
	}
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Upstream.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Retry.MaxRetries > 0 && c.Retry.InitialDelay <= 0 {
		return fmt.Errorf("invalid configuration: retry initial_delay must be positive when max_retries is %d", c.Retry.MaxRetries)
	}
	if c.Retry.MaxDelay > 0 && c.Retry.MaxDelay < c.Retry.InitialDelay {
		return fmt.Errorf("invalid configuration: retry max_delay %v is below initial_delay %v", c.Retry.MaxDelay, c.Retry.InitialDelay)
	}
	return nil
}
