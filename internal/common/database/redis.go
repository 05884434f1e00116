// internal/common/database/redis.go
package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"cleantalk-antispam/internal/common/config"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPoolSize    = 10
	defaultDialTimeout = 5 * time.Second
)

// RedisClient is the key/value surface the session store needs.
type RedisClient struct {
	cmd    redis.Cmdable
	closer func() error
}

// NewRedis opens a pooled client. The connection is lazy; call Ping to check it.
func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	dialTimeout := config.GetDuration(cfg.DialTimeout)
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     poolSize,
		MinIdleConns: poolSize / 2,
	})
	return &RedisClient{cmd: rdb, closer: rdb.Close}, nil
}

// NewRedisFromClient wraps an existing client, e.g. a redismock client.
func NewRedisFromClient(client redis.Cmdable) *RedisClient {
	return &RedisClient{cmd: client}
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.cmd.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// Get returns the value stored at key. found is false when the key is missing.
func (c *RedisClient) Get(ctx context.Context, key string) (value string, found bool, err error) {
	value, err = c.cmd.Get(ctx, key).Result()
	switch {
	case stderrors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key. A zero ttl keeps the key until deleted.
func (c *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.cmd.Set(ctx, key, value, ttl).Err()
}

func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	return c.cmd.Del(ctx, keys...).Err()
}
