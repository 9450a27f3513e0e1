package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores JSON-encoded values in Redis so that several
// instances can share one cache. Expiry is delegated to Redis TTLs.
type RedisCache[T any] struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache under the given key prefix.
func NewRedisCache[T any](client *redis.Client, prefix string, ttl time.Duration) *RedisCache[T] {
	return &RedisCache[T]{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *RedisCache[T]) key(key string) string {
	return c.prefix + ":" + key
}

func (c *RedisCache[T]) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

// Get retrieves a value. Any Redis failure is treated as a miss so the
// caller falls back to the database.
func (c *RedisCache[T]) Get(key string) (T, bool) {
	var zero T
	ctx, cancel := c.ctx()
	defer cancel()

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Debug("redis get failed", "key", key, "error", err)
		}
		return zero, false
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		slog.Debug("redis cache entry corrupt", "key", key, "error", err)
		return zero, false
	}
	return value, true
}

// Set stores a value with the configured TTL.
func (c *RedisCache[T]) Set(key string, data T) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Debug("redis marshal failed", "key", key, "error", err)
		return
	}

	ctx, cancel := c.ctx()
	defer cancel()
	if err := c.client.Set(ctx, c.key(key), body, c.ttl).Err(); err != nil {
		slog.Debug("redis set failed", "key", key, "error", err)
	}
}

// Delete removes a key from the cache
func (c *RedisCache[T]) Delete(key string) {
	ctx, cancel := c.ctx()
	defer cancel()
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		slog.Debug("redis delete failed", "key", key, "error", err)
	}
}

// Size returns the number of cached entries under this prefix.
func (c *RedisCache[T]) Size() int {
	ctx, cancel := c.ctx()
	defer cancel()

	keys, err := c.client.Keys(ctx, c.prefix+":*").Result()
	if err != nil {
		return 0
	}
	return len(keys)
}

// CleanExpired is a no-op, Redis expires keys on its own.
func (c *RedisCache[T]) CleanExpired() int {
	return 0
}
