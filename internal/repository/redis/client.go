package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps a Redis connection for live kingdom state operations.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis using a URL like redis://host:port/db.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// NewClientFromPool wraps an existing connection. Used by tests that
// manage the connection themselves.
func NewClientFromPool(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Underlying exposes the raw client for pubsub subscriptions.
func (c *Client) Underlying() *redis.Client { return c.rdb }

// Close closes the connection.
func (c *Client) Close() error { return c.rdb.Close() }
