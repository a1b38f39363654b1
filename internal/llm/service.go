// Package llm is the AI gateway: a client for an OpenAI-compatible
// chat-completion API that adds admission control, caching and recovery.
//
// Architecture:
//   - One middleware chain per Service: logging, cache, queue, timeout,
//     classification, token budget, retry, request rate, upstream call
//   - Success-only caching with an optional shared Redis tier
//   - Every limiter, queue and cache is owned by its Service
//   - Streaming shares the pipeline but bypasses the cache
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-aigateway/internal/llm/cache"
	"github.com/ahrav/go-aigateway/internal/llm/configuration"
	"github.com/ahrav/go-aigateway/internal/llm/providers"
	"github.com/ahrav/go-aigateway/internal/llm/queue"
	"github.com/ahrav/go-aigateway/internal/llm/ratelimit"
	"github.com/ahrav/go-aigateway/internal/llm/resilience"
	"github.com/ahrav/go-aigateway/internal/llm/retry"
	"github.com/ahrav/go-aigateway/internal/llm/transport"
)

// Service runs chat, structured and streaming calls through the gateway
// pipeline. It is safe for concurrent use. Close releases its resources.
type Service struct {
	config *configuration.Config

	upstream  transport.Upstream
	estimator Estimator
	shared    cache.SharedStore
	metrics   resilience.Metrics
	logger    *slog.Logger

	bucket  *ratelimit.TokenBucket
	queue   *queue.RequestQueue
	cache   *cache.ResponseCache[*transport.Response]
	layer   *cache.Layer
	retrier *retry.Retrier
	handler transport.Handler

	redis     *redis.Client
	closeOnce sync.Once
}

// Stats is a snapshot of the service's components.
type Stats struct {
	Cache           cache.Stats
	Queue           queue.Stats
	Retry           retry.Stats
	AvailableTokens float64
}

// NewService builds a gateway from cfg. Without WithUpstream, an OpenAI
// client is created from cfg.Upstream. When cfg.Cache.RedisAddr is set and no
// shared store was supplied, a Redis tier is connected; an unreachable Redis
// is logged and the service runs with the local cache only.
func NewService(cfg *configuration.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}

	s := &Service{
		config:    cfg,
		estimator: EstimateTokens,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.estimator == nil {
		s.estimator = EstimateTokens
	}

	if s.upstream == nil {
		client, err := providers.NewClient(cfg.Upstream)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize upstream client: %w", err)
		}
		s.upstream = client
	}

	var err error
	if s.bucket, err = ratelimit.NewTokenBucket(cfg.RateLimit); err != nil {
		return nil, fmt.Errorf("failed to initialize token bucket: %w", err)
	}
	if s.queue, err = queue.New(cfg.Queue); err != nil {
		return nil, fmt.Errorf("failed to initialize request queue: %w", err)
	}
	if s.cache, err = cache.New[*transport.Response](cfg.Cache); err != nil {
		return nil, fmt.Errorf("failed to initialize response cache: %w", err)
	}
	if s.retrier, err = retry.New(cfg.Retry); err != nil {
		return nil, fmt.Errorf("failed to initialize retry middleware: %w", err)
	}

	if s.shared == nil && cfg.Cache.Enabled && cfg.Cache.RedisAddr != "" {
		s.connectRedis()
	}
	s.layer = cache.NewLayer(s.cache, s.shared)

	logging := resilience.NewLoggingMiddleware(cfg.Observability, s.logger, s.metrics)
	core := transport.NewUpstreamHandler(s.upstream, resilience.JSONValidator{})

	s.handler = transport.Chain(core,
		logging.Middleware(),
		s.layer.Middleware(),
		queue.NewMiddleware(s.queue),
		resilience.NewTimeoutMiddleware(cfg.Timeout),
		resilience.NewClassificationMiddleware(),
		ratelimit.NewTokenBudgetMiddleware(s.bucket),
		s.retrier.Middleware(),
		ratelimit.NewRequestLimiter(cfg.RateLimit).Middleware(),
	)

	s.cache.Start()
	return s, nil
}

func (s *Service) connectRedis() {
	client, err := cache.NewRedisClient(context.Background(), s.config.Cache)
	if err != nil {
		s.logger.Warn("shared cache unavailable, using local cache only",
			"addr", s.config.Cache.RedisAddr,
			"error", err)
		return
	}

	prefix := s.config.Cache.RedisPrefix
	if prefix == "" {
		prefix = configuration.DefaultRedisPrefix
	}
	s.redis = client
	s.shared = cache.NewRedisStore(client, prefix)
}

// Stats returns a snapshot of cache, queue, retry and bucket state.
func (s *Service) Stats() Stats {
	return Stats{
		Cache:           s.layer.Stats(),
		Queue:           s.queue.Stats(),
		Retry:           s.retrier.Stats(),
		AvailableTokens: s.bucket.Available(),
	}
}

// Close stops the cache sweep, rejects queued work and closes the Redis
// connection the service opened. Running calls finish normally.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cache.Stop()
		s.queue.Close()
		if s.redis != nil {
			err = s.redis.Close()
		}
	})
	return err
}

// newRequest resolves options into a normalized request. systemText, when
// non-empty, is sent as the leading system message.
func (s *Service) newRequest(op transport.OperationType, messages []transport.Message, systemText string, opts Options) (*transport.Request, error) {
	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	model, err := s.resolveModel(opts)
	if err != nil {
		return nil, err
	}
	params, err := resolveParameters(opts)
	if err != nil {
		return nil, err
	}

	all := make([]transport.Message, 0, len(messages)+1)
	if systemText != "" {
		all = append(all, transport.Message{Role: transport.RoleSystem, Content: systemText})
	}
	all = append(all, messages...)

	return &transport.Request{
		ID:              opts.RequestID,
		Operation:       op,
		Model:           model,
		Messages:        all,
		Parameters:      params,
		EstimatedTokens: s.estimator(all),
	}, nil
}
