package embedding

import (
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/hyperjump/lookalike/internal/config"
)

// MockURL selects MockClient instead of calling a service.
const MockURL = "mock"

// NewClient builds the client described by cfg: the HTTP (or mock) client, then the
// circuit breaker if enabled, then the Redis cache if an address is set, then the
// in-process cache if cache_size > 0.
func NewClient(cfg *config.EmbeddingConfig, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	var client Client
	if strings.EqualFold(cfg.URL, MockURL) {
		logger.Info("using mock embedding client", zap.Int("dimensions", cfg.Dimensions))
		client = NewMockClient(cfg.Dimensions)
	} else {
		h := NewHTTPClient(cfg.URL, cfg.Timeout, logger)
		logger.Info("using embedding service", zap.String("endpoint", h.Endpoint()))
		client = h
	}
	if cfg.Breaker.Enabled {
		client = NewBreakerClient(client, "embedding", cfg.Breaker.MaxFailures, cfg.Breaker.OpenTimeout, logger)
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		logger.Info("using redis embedding cache", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
		client = NewRedisCachedClient(client, rdb, cfg.Redis.TTL, logger)
	}
	if cfg.CacheSize > 0 {
		client = NewCachedClient(client, cfg.CacheSize)
	}
	return client
}
