// Package providerhealth implements the 60-second "known-bad" cache:
// when a provider channel fails, every instance in the cluster should
// skip it for a short cool-down window rather than re-discovering the
// outage independently.
package providerhealth

import (
	"context"
	"time"

	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/redis"
)

// Cache tracks which provider channels are currently known-bad.
type Cache struct {
	connection *redis.Connection
	ttl        time.Duration
}

// NewCache returns a cache with the given cool-down TTL.
func NewCache(conn *redis.Connection, ttl time.Duration) *Cache {
	return &Cache{connection: conn, ttl: ttl}
}

func key(channel string) string {
	return "provider_health:" + channel
}

// MarkBad records that channel failed, for ttl.
func (c *Cache) MarkBad(ctx context.Context, channel string) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "redis.provider_health.mark_bad")
	defer span.End()

	client, err := c.connection.GetClient(ctx)
	if err != nil {
		otel.HandleSpanError(&span, "failed to get redis client", err)
		return apperr.InternalError{Message: "providerhealth: redis connection", Err: err}
	}

	if err := client.Set(ctx, key(channel), "1", c.ttl).Err(); err != nil {
		otel.HandleSpanError(&span, "failed to mark provider bad", err)
		return apperr.InternalError{Message: "providerhealth: set", Err: err}
	}

	return nil
}

// IsBad reports whether channel is currently in its cool-down window.
func (c *Cache) IsBad(ctx context.Context, channel string) (bool, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "redis.provider_health.is_bad")
	defer span.End()

	client, err := c.connection.GetClient(ctx)
	if err != nil {
		otel.HandleSpanError(&span, "failed to get redis client", err)
		return false, apperr.InternalError{Message: "providerhealth: redis connection", Err: err}
	}

	n, err := client.Exists(ctx, key(channel)).Result()
	if err != nil {
		otel.HandleSpanError(&span, "failed to check provider health", err)
		return false, apperr.InternalError{Message: "providerhealth: exists", Err: err}
	}

	return n > 0, nil
}
