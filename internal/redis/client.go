package redis

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Client is the shared Redis connection pool. Notices and the comment stream
// both go through it.
type Client struct {
	*redis.Client
}

// Connect opens a client for redisURL and fails fast when Redis does not answer.
// URL format: redis://[:password@]host:port[/db]
func Connect(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	c := &Client{Client: redis.NewClient(opts)}
	if err := c.Check(ctx); err != nil {
		c.Close()
		return nil, err
	}
	log.Printf("[Redis] Connected OK: addr=%s db=%d", opts.Addr, opts.DB)
	return c, nil
}

// Check pings Redis. It is used at startup and by the health endpoint.
func (c *Client) Check(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
