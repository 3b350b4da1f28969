// Package mongo is a lazily-connected client hub. This service uses
// Mongo only for the callback-audit trail (raw mobile-money callback
// payloads) — audit, never the system of record.
package mongo

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bodaboda-insure/core/internal/platform/log"
)

// Connection is a hub which deals with mongo connections.
type Connection struct {
	ConnectionString string
	Database         string
	MaxPoolSize      uint64
	Logger           log.Logger

	mu     sync.Mutex
	client *mongo.Client
}

// GetDB returns the database handle, connecting on first use.
func (c *Connection) GetDB(ctx context.Context) (*mongo.Database, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		opts := options.Client().ApplyURI(c.ConnectionString)
		if c.MaxPoolSize > 0 {
			opts = opts.SetMaxPoolSize(c.MaxPoolSize)
		}

		client, err := mongo.Connect(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}

		if err := client.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("ping mongo: %w", err)
		}

		if c.Logger != nil {
			c.Logger.Info("connected to mongo")
		}

		c.client = client
	}

	return c.client.Database(c.Database), nil
}
