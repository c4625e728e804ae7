// Package redis backs the platform's volatile state with go-redis/v9: the
// exchange-rate snapshot cache, the per-outcome reconcile locks, the pub/sub
// signal bus, and the API rate limiter. Everything durable lives in Postgres;
// losing this instance loses speed, not correctness.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client wraps the go-redis driver. The sub-components of this package
// (RateCache, LockManager, SignalBus, RateLimiter) all share one Client.
type Client struct {
	rdb *redis.Client
}

// New dials Redis and verifies connectivity with a ping before handing the
// wrapper back.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping reports whether the connection is alive. The health endpoint calls
// this per request.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the raw driver for the sibling files in this package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
