// Package payment is the postgres implementation of
// payment.Repository and payment.TransactionRepository: version-guarded
// state transitions plus the unique-constraint lookups the dedup rules
// rest on.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/postgres"
)

// PostgreSQLRepository is a postgres-backed payment.Repository.
type PostgreSQLRepository struct {
	connection *postgres.Connection
}

// NewPostgreSQLRepository returns a new payment-request repository bound to conn.
func NewPostgreSQLRepository(conn *postgres.Connection) *PostgreSQLRepository {
	r := &PostgreSQLRepository{connection: conn}

	if _, err := r.connection.GetDB(); err != nil {
		panic("payment: failed to connect database")
	}

	return r
}

func scanPaymentRequest(row *sql.Row) (*payment.PaymentRequest, error) {
	pr := &payment.PaymentRequest{}

	err := row.Scan(
		&pr.ID, &pr.RiderID, &pr.WalletID, &pr.Kind, &pr.Amount, &pr.IdempotencyKey,
		&pr.Status, &pr.ProviderReference, &pr.DaysCount, &pr.CreatedAt, &pr.UpdatedAt, &pr.Version,
	)
	if err != nil {
		return nil, err
	}

	return pr, nil
}

const selectCols = `id, rider_id, wallet_id, kind, amount, idempotency_key,
	status, provider_reference, days_count, created_at, updated_at, version`

var selectColsList = []string{
	"id", "rider_id", "wallet_id", "kind", "amount", "idempotency_key",
	"status", "provider_reference", "days_count", "created_at", "updated_at", "version",
}

// Create inserts a new PaymentRequest at version 1. A unique-violation
// on (rider_id, idempotency_key) surfaces as a ConflictError; the
// caller falls back to FindByIdempotencyKey and returns the original
// request.
func (r *PostgreSQLRepository) Create(ctx context.Context, pr *payment.PaymentRequest) (*payment.PaymentRequest, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.payment.create")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "payment: db connection", Err: err}
	}

	pr.Version = 1

	row := db.QueryRowContext(ctx, `
		INSERT INTO payment_request (id, rider_id, wallet_id, kind, amount, idempotency_key,
			status, provider_reference, days_count, created_at, updated_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10,$11)
		RETURNING `+selectCols,
		pr.ID, pr.RiderID, pr.WalletID, pr.Kind, pr.Amount, pr.IdempotencyKey,
		pr.Status, pr.ProviderReference, pr.DaysCount, pr.CreatedAt, pr.Version,
	)

	created, err := scanPaymentRequest(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.ConflictError{
				EntityType: reflect.TypeOf(payment.PaymentRequest{}).Name(),
				Code:       "DUPLICATE_IDEMPOTENCY_KEY",
				Retryable:  false,
				Err:        err,
			}
		}

		otel.HandleSpanError(&span, "failed to insert payment request", err)
		return nil, apperr.InternalError{Message: "payment: insert", Err: err}
	}

	return created, nil
}

// Find returns the payment request with the given id.
func (r *PostgreSQLRepository) Find(ctx context.Context, id uuid.UUID) (*payment.PaymentRequest, error) {
	return r.findBy(ctx, "postgres.payment.find", squirrel.Eq{"id": id})
}

// FindByIdempotencyKey returns the payment request matching (riderID, key), if any.
func (r *PostgreSQLRepository) FindByIdempotencyKey(ctx context.Context, riderID uuid.UUID, key string) (*payment.PaymentRequest, error) {
	return r.findBy(ctx, "postgres.payment.find_by_idempotency_key", squirrel.Eq{"rider_id": riderID, "idempotency_key": key})
}

// FindByProviderReference returns the payment request matching a
// provider's own callback reference.
func (r *PostgreSQLRepository) FindByProviderReference(ctx context.Context, ref string) (*payment.PaymentRequest, error) {
	return r.findBy(ctx, "postgres.payment.find_by_provider_reference", squirrel.Eq{"provider_reference": ref})
}

func (r *PostgreSQLRepository) findBy(ctx context.Context, spanName string, pred squirrel.Eq) (*payment.PaymentRequest, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "payment: db connection", Err: err}
	}

	query, args, err := squirrel.Select(selectColsList...).From("payment_request").
		Where(pred).PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, apperr.InternalError{Message: "payment: build query", Err: err}
	}

	row := db.QueryRowContext(ctx, query, args...)

	pr, err := scanPaymentRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: reflect.TypeOf(payment.PaymentRequest{}).Name()}
		}

		otel.HandleSpanError(&span, "failed to scan payment request", err)
		return nil, apperr.InternalError{Message: "payment: scan", Err: err}
	}

	return pr, nil
}

// Transition performs the version-guarded state-machine move. The
// caller must have already validated the edge with
// payment.CanTransition; this method only enforces the DB-level CAS.
func (r *PostgreSQLRepository) Transition(ctx context.Context, id uuid.UUID, version int64, to payment.Status, providerRef string, now time.Time) (*payment.PaymentRequest, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.payment.transition")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "payment: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `
		UPDATE payment_request SET
			status = $1,
			provider_reference = CASE WHEN $2 = '' THEN provider_reference ELSE $2 END,
			version = version + 1,
			updated_at = $3
		WHERE id = $4 AND version = $5
		RETURNING `+selectCols,
		to, providerRef, now, id, version,
	)

	pr, err := scanPaymentRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.FromContext(ctx).Warnf("payment_request %s: version conflict on transition to %s", log.RedactID(id.String()), to)
			return nil, apperr.ConflictError{
				EntityType: reflect.TypeOf(payment.PaymentRequest{}).Name(),
				Code:       "VERSION_CONFLICT",
				Retryable:  true,
			}
		}

		otel.HandleSpanError(&span, "failed to transition payment request", err)
		return nil, apperr.InternalError{Message: "payment: transition", Err: err}
	}

	return pr, nil
}

// ListStalePending returns PENDING requests older than olderThan, for
// the reconciler's poll sweep.
func (r *PostgreSQLRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*payment.PaymentRequest, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.payment.list_stale_pending")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "payment: db connection", Err: err}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+selectCols+`
		FROM payment_request
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`, payment.StatusPending, olderThan, limit)
	if err != nil {
		otel.HandleSpanError(&span, "failed to query stale pending", err)
		return nil, apperr.InternalError{Message: "payment: query", Err: err}
	}
	defer rows.Close()

	out := make([]*payment.PaymentRequest, 0, limit)

	for rows.Next() {
		pr := &payment.PaymentRequest{}

		if err := rows.Scan(
			&pr.ID, &pr.RiderID, &pr.WalletID, &pr.Kind, &pr.Amount, &pr.IdempotencyKey,
			&pr.Status, &pr.ProviderReference, &pr.DaysCount, &pr.CreatedAt, &pr.UpdatedAt, &pr.Version,
		); err != nil {
			return nil, apperr.InternalError{Message: "payment: scan row", Err: err}
		}

		out = append(out, pr)
	}

	return out, rows.Err()
}

// isUniqueViolation reports whether err is a postgres unique-constraint
// violation (SQLSTATE 23505), per lib/pq's *pq.Error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}

var _ payment.Repository = (*PostgreSQLRepository)(nil)
