package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	redisKeyPattern = "lookalike:embedding:%s"
	redisOpTimeout  = 2 * time.Second
	// DefaultRedisTTL is how long a shared cache entry lives when no TTL is configured.
	DefaultRedisTTL = 24 * time.Hour
)

// RedisCachedClient shares embeddings between replicas through Redis. The cache
// is best effort: Redis failures are logged and the wrapped client is called.
type RedisCachedClient struct {
	next   Client
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCachedClient wraps next with a Redis cache on rdb. Close also closes rdb.
func NewRedisCachedClient(next Client, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCachedClient {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCachedClient{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func redisKey(image []byte) string {
	return fmt.Sprintf(redisKeyPattern, ImageKey(image))
}

// Embed returns the cached vector for image or calls the wrapped client and stores the result.
func (c *RedisCachedClient) Embed(ctx context.Context, image []byte, filename string) ([]float32, error) {
	if len(image) == 0 {
		return c.next.Embed(ctx, image, filename)
	}
	key := redisKey(image)
	if v, ok := c.get(ctx, key); ok {
		return v, nil
	}
	v, err := c.next.Embed(ctx, image, filename)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, v)
	return v, nil
}

func (c *RedisCachedClient) get(ctx context.Context, key string) ([]float32, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	data, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("embedding cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	var v []float32
	if err := json.Unmarshal([]byte(data), &v); err != nil || len(v) == 0 {
		c.logger.Warn("embedding cache entry unreadable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return v, true
}

func (c *RedisCachedClient) set(ctx context.Context, key string, v []float32) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := c.rdb.Set(ctx, key, string(data), c.ttl).Err(); err != nil {
		c.logger.Warn("embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Unwrap returns the wrapped client.
func (c *RedisCachedClient) Unwrap() Client {
	return c.next
}

// Close closes the Redis connection and the wrapped client.
func (c *RedisCachedClient) Close() error {
	rerr := c.rdb.Close()
	if err := c.next.Close(); err != nil {
		return err
	}
	return rerr
}
