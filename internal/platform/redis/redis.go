// Package redis is a lazily-connected client hub. Redis backs the
// cross-instance caches in internal/adapters/redis/*: the 60-second
// "provider known-bad" cache, the recipient suppression list and the
// idempotency-key fast path ahead of the unique-constraint check in
// postgres.
package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/bodaboda-insure/core/internal/platform/log"
)

// Connection is a hub which deals with redis connections.
type Connection struct {
	ConnectionString string
	Logger           log.Logger

	mu     sync.Mutex
	client *redis.Client
}

// GetClient returns the shared client, connecting on first use.
func (c *Connection) GetClient(ctx context.Context) (*redis.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	opts, err := redis.ParseURL(c.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	if c.Logger != nil {
		c.Logger.Info("connected to redis")
	}

	c.client = client

	return c.client, nil
}
