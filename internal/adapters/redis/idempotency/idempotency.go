// Package idempotency implements the fast-path idempotency-key cache:
// a short-lived SETNX lock that lets the payment engine reject an
// in-flight duplicate request before ever reaching postgres, whose
// unique constraint remains the authoritative check.
package idempotency

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/redis"
)

// Cache backs the in-flight idempotency-key guard.
type Cache struct {
	connection *redis.Connection
	ttl        time.Duration
}

// NewCache returns a cache with the given lock TTL.
func NewCache(conn *redis.Connection, ttl time.Duration) *Cache {
	return &Cache{connection: conn, ttl: ttl}
}

func key(riderID, idempotencyKey string) string {
	return "idem:" + riderID + ":" + idempotencyKey
}

// TryLock attempts to claim key for the duration of one request
// attempt. It returns ok=false, no error, if another request already
// holds the lock — the caller should treat that as a duplicate-in-flight
// and surface apperr.ConflictError rather than retry.
func (c *Cache) TryLock(ctx context.Context, riderID, idempotencyKey string) (ok bool, err error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "redis.idempotency.try_lock")
	defer span.End()

	client, err := c.connection.GetClient(ctx)
	if err != nil {
		otel.HandleSpanError(&span, "failed to get redis client", err)
		return false, apperr.InternalError{Message: "idempotency: redis connection", Err: err}
	}

	ok, err = client.SetNX(ctx, key(riderID, idempotencyKey), "1", c.ttl).Result()
	if err != nil {
		otel.HandleSpanError(&span, "failed to set idempotency lock", err)
		return false, apperr.InternalError{Message: "idempotency: setnx", Err: err}
	}

	return ok, nil
}

// Release clears the lock once the request has committed a durable
// outcome in postgres, so a legitimately-retried request after that
// point goes straight to the FindByIdempotencyKey dedup path instead of
// waiting out the TTL.
func (c *Cache) Release(ctx context.Context, riderID, idempotencyKey string) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "redis.idempotency.release")
	defer span.End()

	client, err := c.connection.GetClient(ctx)
	if err != nil {
		otel.HandleSpanError(&span, "failed to get redis client", err)
		return apperr.InternalError{Message: "idempotency: redis connection", Err: err}
	}

	if err := client.Del(ctx, key(riderID, idempotencyKey)).Err(); err != nil && err != goredis.Nil {
		otel.HandleSpanError(&span, "failed to release idempotency lock", err)
		return apperr.InternalError{Message: "idempotency: del", Err: err}
	}

	return nil
}
