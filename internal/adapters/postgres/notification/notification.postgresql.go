// Package notification is the postgres implementation of
// notification.Repository: dispatch-worthy rows picked up by a
// periodic sweep, with version-guarded status transitions so the sweep
// and the inline send path never double-deliver.
package notification

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/domain/notification"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/postgres"
)

const notificationCols = `id, rider_id, template, priority, status, attempted_channel,
	attempt_count, next_attempt_at, delivered_at, provider_message_id, created_at, updated_at, version`

// PostgreSQLRepository is a postgres-backed notification.Repository.
type PostgreSQLRepository struct {
	connection *postgres.Connection
}

// NewPostgreSQLRepository returns a new notification repository bound to conn.
func NewPostgreSQLRepository(conn *postgres.Connection) *PostgreSQLRepository {
	r := &PostgreSQLRepository{connection: conn}

	if _, err := r.connection.GetDB(); err != nil {
		panic("notification: failed to connect database")
	}

	return r
}

func scanNotification(row *sql.Row) (*notification.Notification, error) {
	n := &notification.Notification{}

	var deliveredAt sql.NullTime
	var providerMessageID sql.NullString

	err := row.Scan(&n.ID, &n.RiderID, &n.Template, &n.Priority, &n.Status, &n.AttemptedChannel,
		&n.AttemptCount, &n.NextAttemptAt, &deliveredAt, &providerMessageID, &n.CreatedAt, &n.UpdatedAt, &n.Version)
	if err != nil {
		return nil, err
	}

	if deliveredAt.Valid {
		n.DeliveredAt = &deliveredAt.Time
	}

	n.ProviderMessageID = providerMessageID.String

	return n, nil
}

// Create inserts a new Notification at version 1, with whatever status
// the caller set on it.
func (r *PostgreSQLRepository) Create(ctx context.Context, n *notification.Notification) (*notification.Notification, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.notification.create")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "notification: db connection", Err: err}
	}

	n.Version = 1

	row := db.QueryRowContext(ctx, `
		INSERT INTO notification (id, rider_id, template, priority, status, attempted_channel,
			attempt_count, next_attempt_at, delivered_at, provider_message_id, created_at, updated_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11,$12)
		RETURNING `+notificationCols,
		n.ID, n.RiderID, n.Template, n.Priority, n.Status, n.AttemptedChannel,
		n.AttemptCount, n.NextAttemptAt, n.DeliveredAt, n.ProviderMessageID, n.CreatedAt, n.Version,
	)

	created, err := scanNotification(row)
	if err != nil {
		otel.HandleSpanError(&span, "failed to insert notification", err)
		return nil, apperr.InternalError{Message: "notification: insert", Err: err}
	}

	return created, nil
}

// Find returns the notification with the given id.
func (r *PostgreSQLRepository) Find(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.notification.find")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "notification: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT `+notificationCols+` FROM notification WHERE id = $1`, id)

	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: reflect.TypeOf(notification.Notification{}).Name(), ID: id.String()}
		}

		otel.HandleSpanError(&span, "failed to scan notification", err)
		return nil, apperr.InternalError{Message: "notification: scan", Err: err}
	}

	return n, nil
}

// ListDue returns notifications ready to attempt now.
func (r *PostgreSQLRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*notification.Notification, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.notification.list_due")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "notification: db connection", Err: err}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+notificationCols+` FROM notification
		WHERE status IN ($1, $2) AND next_attempt_at <= $3
		ORDER BY priority DESC, next_attempt_at ASC
		LIMIT $4`, notification.StatusQueued, notification.StatusDeferred, now, limit)
	if err != nil {
		otel.HandleSpanError(&span, "failed to query due notifications", err)
		return nil, apperr.InternalError{Message: "notification: query", Err: err}
	}
	defer rows.Close()

	out := make([]*notification.Notification, 0, limit)

	for rows.Next() {
		n := &notification.Notification{}
		var deliveredAt sql.NullTime
		var providerMessageID sql.NullString

		if err := rows.Scan(&n.ID, &n.RiderID, &n.Template, &n.Priority, &n.Status, &n.AttemptedChannel,
			&n.AttemptCount, &n.NextAttemptAt, &deliveredAt, &providerMessageID, &n.CreatedAt, &n.UpdatedAt, &n.Version); err != nil {
			return nil, apperr.InternalError{Message: "notification: scan row", Err: err}
		}

		if deliveredAt.Valid {
			n.DeliveredAt = &deliveredAt.Time
		}

		n.ProviderMessageID = providerMessageID.String

		out = append(out, n)
	}

	return out, rows.Err()
}

// Transition performs a version-guarded Notification status move.
func (r *PostgreSQLRepository) Transition(ctx context.Context, id uuid.UUID, version int64, to notification.Status, channel notification.Channel, providerMessageID string, nextAttemptAt time.Time, now time.Time) (*notification.Notification, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.notification.transition")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "notification: db connection", Err: err}
	}

	deliveredAtExpr := "delivered_at"
	if to == notification.StatusDelivered {
		deliveredAtExpr = "$7"
	}

	row := db.QueryRowContext(ctx, `
		UPDATE notification SET
			status = $1,
			attempted_channel = $2,
			attempt_count = attempt_count + 1,
			next_attempt_at = $3,
			provider_message_id = CASE WHEN $4 = '' THEN provider_message_id ELSE $4 END,
			delivered_at = `+deliveredAtExpr+`,
			version = version + 1,
			updated_at = $5
		WHERE id = $6 AND version = $8
		RETURNING `+notificationCols,
		to, channel, nextAttemptAt, providerMessageID, now, id, now, version,
	)

	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ConflictError{EntityType: reflect.TypeOf(notification.Notification{}).Name(), Code: "VERSION_CONFLICT", Retryable: true}
		}

		otel.HandleSpanError(&span, "failed to transition notification", err)
		return nil, apperr.InternalError{Message: "notification: transition", Err: err}
	}

	return n, nil
}

// FindByProviderMessageID correlates an inbound delivery-report webhook
// back to its Notification.
func (r *PostgreSQLRepository) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*notification.Notification, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.notification.find_by_provider_message_id")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "notification: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT `+notificationCols+` FROM notification WHERE provider_message_id = $1`, providerMessageID)

	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: reflect.TypeOf(notification.Notification{}).Name()}
		}

		otel.HandleSpanError(&span, "failed to scan notification", err)
		return nil, apperr.InternalError{Message: "notification: scan", Err: err}
	}

	return n, nil
}

var _ notification.Repository = (*PostgreSQLRepository)(nil)
