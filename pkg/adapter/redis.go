package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stride-health/stride/pkg/model"
)

// RedisConfig holds configuration for the Redis connection
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Counter increments windowed counters, used by rate limiting
type Counter interface {
	// Increment adds one to the key and returns the new count. The TTL is
	// applied when the key is first created.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisClient wraps go-redis with counter and cache operations
type RedisClient struct {
	rdb *redis.Client
}

// NewRedis creates a Redis client with connection validation
func NewRedis(cfg RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, goerr.Wrap(err, "redis ping failed", goerr.V("addr", cfg.Addr))
	}

	return &RedisClient{rdb: rdb}, nil
}

// Ping checks if Redis is reachable
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Increment implements Counter with INCR plus first-write EXPIRE, so the
// window resets when the key's TTL lapses.
func (c *RedisClient) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, goerr.Wrap(err, "incr failed", goerr.V("key", key))
	}
	if count == 1 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return count, goerr.Wrap(err, "expire failed", goerr.V("key", key))
		}
	}
	return count, nil
}

// Get reads a cached JSON value into out, reporting whether the key existed
func (c *RedisClient) Get(ctx context.Context, key string, out any) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "get failed", goerr.V("key", key))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, goerr.Wrap(err, "cached value is not valid JSON", goerr.V("key", key))
	}
	return true, nil
}

// Set stores a value as JSON with the given TTL
func (c *RedisClient) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal cache value", goerr.V("key", key))
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return goerr.Wrap(err, "set failed", goerr.V("key", key))
	}
	return nil
}

// InvalidateUser deletes all derived analytics entries for one user.
// Ingestion calls this after reconciliation so dashboards recompute from
// the updated store.
func (c *RedisClient) InvalidateUser(ctx context.Context, user model.UserID) error {
	pattern := "an:" + string(user) + ":*"

	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return goerr.Wrap(err, "scan failed", goerr.V("pattern", pattern))
	}

	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return goerr.Wrap(err, "del failed", goerr.V("keys", len(keys)))
	}
	return nil
}
