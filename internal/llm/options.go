package llm

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-aigateway/internal/llm/cache"
	"github.com/ahrav/go-aigateway/internal/llm/resilience"
	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// Purpose names a tuning preset.
type Purpose string

// Tuning presets. The zero value applies no preset.
const (
	PurposeCreative Purpose = "creative"
	PurposeFactual  Purpose = "factual"
	PurposeCode     Purpose = "code"
	PurposeMedical  Purpose = "medical"
)

// Complexity selects a model tier from configuration.
type Complexity string

// Complexity tiers. The zero value uses the default model.
const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// ErrInvalidOptions is returned for an unknown purpose or complexity.
var ErrInvalidOptions = errors.New("invalid request options")

// Options tunes a single gateway call. Every field is optional.
type Options struct {
	// SystemMessage is sent ahead of the caller's messages.
	SystemMessage string
	// Model overrides both complexity tiers and the configured default.
	Model string
	// Purpose picks a parameter preset.
	Purpose Purpose
	// Parameters override the preset field by field.
	Parameters transport.Parameters
	// Complexity picks a model tier when Model is empty.
	Complexity Complexity
	// RequestID is propagated upstream; one is generated when empty.
	RequestID string
}

var presets = map[Purpose]transport.Parameters{
	PurposeCreative: {Temperature: transport.Float(0.9), TopP: transport.Float(0.95)},
	PurposeFactual:  {Temperature: transport.Float(0.2), TopP: transport.Float(0.9)},
	PurposeCode:     {Temperature: transport.Float(0.1), TopP: transport.Float(0.95)},
	PurposeMedical: {
		Temperature:      transport.Float(0.1),
		TopP:             transport.Float(0.9),
		FrequencyPenalty: transport.Float(0),
		PresencePenalty:  transport.Float(0),
	},
}

// resolveParameters merges the purpose preset with the caller's overrides.
func resolveParameters(opts Options) (transport.Parameters, error) {
	if opts.Purpose == "" {
		return opts.Parameters, nil
	}
	preset, ok := presets[opts.Purpose]
	if !ok {
		return transport.Parameters{}, fmt.Errorf("%w: unknown purpose %q", ErrInvalidOptions, opts.Purpose)
	}
	return preset.Merge(opts.Parameters), nil
}

// resolveModel picks the explicit model, then the complexity tier, then the
// configured default. An unset tier falls back to the default.
func (s *Service) resolveModel(opts Options) (string, error) {
	if opts.Model != "" {
		return opts.Model, nil
	}

	models := s.config.Models
	var tier string
	switch opts.Complexity {
	case "":
	case ComplexitySimple:
		tier = models.Simple
	case ComplexityMedium:
		tier = models.Medium
	case ComplexityComplex:
		tier = models.Complex
	default:
		return "", fmt.Errorf("%w: unknown complexity %q", ErrInvalidOptions, opts.Complexity)
	}
	if tier != "" {
		return tier, nil
	}
	return models.Default, nil
}

// Option configures a Service.
type Option func(*Service)

// WithUpstream replaces the OpenAI client, typically with a fake in tests.
func WithUpstream(upstream transport.Upstream) Option {
	return func(s *Service) {
		s.upstream = upstream
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics sink fed by request logging.
func WithMetrics(metrics resilience.Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithEstimator replaces the token estimator charged against the bucket.
func WithEstimator(estimator Estimator) Option {
	return func(s *Service) {
		s.estimator = estimator
	}
}

// WithSharedStore sets the second cache tier instead of connecting to the
// configured Redis address.
func WithSharedStore(store cache.SharedStore) Option {
	return func(s *Service) {
		s.shared = store
	}
}
