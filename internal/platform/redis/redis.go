package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client embeds the go-redis client so the seed vault depends on a
// package-local type rather than the driver directly.
type Client struct {
	*redis.Client
}

// Open dials the seed-vault redis instance and pings it, so a misconfigured
// vault fails at boot rather than at the first seed commit.
func Open(ctx context.Context, addr, password string, db int) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis addr")
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{Client: c}, nil
}
