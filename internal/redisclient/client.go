// Package redisclient wraps the go-redis client used for the shared vehicle
// lock and readiness checks.
package redisclient

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"parkease-api-go/internal/config"
)

// Client is a configured go-redis client.
type Client struct {
	client *redis.Client
	addr   string
}

// NewClient parses cfg.RedisURL and applies the pool settings. It does not
// dial; call Ping to verify connectivity.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is empty")
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = cfg.RedisPoolSize
	opt.MinIdleConns = cfg.RedisMinIdleConn
	opt.MaxRetries = cfg.RedisMaxRetries
	opt.DialTimeout = cfg.RedisDialTimeout
	if cfg.PodName != "" {
		opt.ClientName = "parkease-" + cfg.PodName
	}

	return &Client{
		client: redis.NewClient(opt),
		addr:   opt.Addr,
	}, nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", c.addr, err)
	}
	return nil
}

// Addr is the host:port the client dials.
func (c *Client) Addr() string {
	return c.addr
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// GetRedis returns the underlying redis.Client for direct access
func (c *Client) GetRedis() *redis.Client {
	return c.client
}
