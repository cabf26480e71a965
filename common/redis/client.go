// Package redis owns the process's Redis connection. It backs the shared
// dataset-info cache and the per-client rate limiter.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/healthchain/marketplace/common/config"
	"github.com/healthchain/marketplace/common/logger"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = errors.New("key not found")

const (
	dialCheckTimeout = 5 * time.Second
	healthTimeout    = 2 * time.Second
)

// Client is the marketplace's view of Redis
type Client struct {
	rdb *redis.Client
	log *logger.Logger
}

// New dials Redis from cfg and pings it once
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	addr := cfg.RedisAddr()
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, dialCheckTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	log.Info("redis connected", "addr", addr, "db", cfg.Redis.DB)
	return &Client{rdb: rdb, log: log.WithComponent("redis")}, nil
}

// GetUnderlying exposes the go-redis client for Lua scripts
func (c *Client) GetUnderlying() *redis.Client {
	return c.rdb
}

// SetWithExpiry stores value under key for ttl
func (c *Client) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Get returns the value under key, or ErrNotFound
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	case err != nil:
		c.log.Warn("redis get failed", "key", key, "error", err)
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Delete removes keys; missing keys are ignored
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Health pings the server with a short deadline
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Close closes the connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}
