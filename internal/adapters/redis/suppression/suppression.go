// Package suppression tracks recipients who hard-bounced or complained
// on a channel. A suppressed (channel, rider) pair is skipped on every
// future send of that channel until an operator clears it; the flag is
// shared cluster-wide through redis so every instance honors it.
package suppression

import (
	"context"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/redis"
)

// Cache is the suppression list.
type Cache struct {
	connection *redis.Connection
}

// NewCache returns a suppression list backed by conn.
func NewCache(conn *redis.Connection) *Cache {
	return &Cache{connection: conn}
}

func key(channel string, riderID uuid.UUID) string {
	return "suppression:" + channel + ":" + riderID.String()
}

// Suppress marks riderID as unreachable on channel. reason records what
// put them there (hard bounce, complaint).
func (c *Cache) Suppress(ctx context.Context, channel string, riderID uuid.UUID, reason string) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "redis.suppression.suppress")
	defer span.End()

	client, err := c.connection.GetClient(ctx)
	if err != nil {
		otel.HandleSpanError(&span, "failed to get redis client", err)
		return apperr.InternalError{Message: "suppression: redis connection", Err: err}
	}

	if err := client.Set(ctx, key(channel, riderID), reason, 0).Err(); err != nil {
		otel.HandleSpanError(&span, "failed to suppress recipient", err)
		return apperr.InternalError{Message: "suppression: set", Err: err}
	}

	return nil
}

// IsSuppressed reports whether riderID is on the channel's list.
func (c *Cache) IsSuppressed(ctx context.Context, channel string, riderID uuid.UUID) (bool, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "redis.suppression.is_suppressed")
	defer span.End()

	client, err := c.connection.GetClient(ctx)
	if err != nil {
		otel.HandleSpanError(&span, "failed to get redis client", err)
		return false, apperr.InternalError{Message: "suppression: redis connection", Err: err}
	}

	n, err := client.Exists(ctx, key(channel, riderID)).Result()
	if err != nil {
		otel.HandleSpanError(&span, "failed to check suppression", err)
		return false, apperr.InternalError{Message: "suppression: exists", Err: err}
	}

	return n > 0, nil
}

// Clear removes riderID from the channel's list (operator action after
// the rider fixes their contact details).
func (c *Cache) Clear(ctx context.Context, channel string, riderID uuid.UUID) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "redis.suppression.clear")
	defer span.End()

	client, err := c.connection.GetClient(ctx)
	if err != nil {
		otel.HandleSpanError(&span, "failed to get redis client", err)
		return apperr.InternalError{Message: "suppression: redis connection", Err: err}
	}

	if err := client.Del(ctx, key(channel, riderID)).Err(); err != nil {
		otel.HandleSpanError(&span, "failed to clear suppression", err)
		return apperr.InternalError{Message: "suppression: del", Err: err}
	}

	return nil
}
