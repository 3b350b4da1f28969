// Package refund is the postgres implementation of refund.Repository.
// A unique index on policy_id backs the one-refund-per-policy rule: a
// concurrent double-cancel maps to a Conflict instead of a second
// payout row.
package refund

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/bodaboda-insure/core/internal/domain/refund"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/postgres"
)

const uniqueViolation = "23505"

// PostgreSQLRepository is a postgres-backed refund.Repository.
type PostgreSQLRepository struct {
	connection *postgres.Connection
	tableName  string
}

// NewPostgreSQLRepository returns a new refund repository bound to conn.
func NewPostgreSQLRepository(conn *postgres.Connection) *PostgreSQLRepository {
	r := &PostgreSQLRepository{connection: conn, tableName: "rider_refund"}

	if _, err := r.connection.GetDB(); err != nil {
		panic("refund: failed to connect database")
	}

	return r
}

func scanRefund(row *sql.Row) (*refund.RiderRefund, error) {
	rr := &refund.RiderRefund{}

	var paidAt sql.NullTime

	err := row.Scan(
		&rr.ID, &rr.RiderID, &rr.PolicyID, &rr.GrossAmount, &rr.RefundAmount,
		&rr.ReversalFee, &rr.Reason, &rr.Status, &paidAt, &rr.Version,
		&rr.CreatedAt, &rr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if paidAt.Valid {
		rr.PaidAt = &paidAt.Time
	}

	return rr, nil
}

const refundColumns = `id, rider_id, policy_id, gross_amount, refund_amount,
		reversal_fee, reason, status, paid_at, version, created_at, updated_at`

// Create inserts a new refund row at version 1.
func (r *PostgreSQLRepository) Create(ctx context.Context, rr *refund.RiderRefund) (*refund.RiderRefund, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.refund.create")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "refund: db connection", Err: err}
	}

	rr.Version = 1

	row := db.QueryRowContext(ctx, `
		INSERT INTO rider_refund (id, rider_id, policy_id, gross_amount,
			refund_amount, reversal_fee, reason, status, paid_at, version,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
		RETURNING `+refundColumns,
		rr.ID, rr.RiderID, rr.PolicyID, rr.GrossAmount, rr.RefundAmount,
		rr.ReversalFee, rr.Reason, rr.Status, rr.PaidAt, rr.Version,
		rr.CreatedAt,
	)

	created, err := scanRefund(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			log.FromContext(ctx).Warnf("refund for policy %s already exists", log.RedactID(rr.PolicyID.String()))

			return nil, apperr.ConflictError{
				EntityType: reflect.TypeOf(refund.RiderRefund{}).Name(),
				Code:       "REFUND_ALREADY_EXISTS",
			}
		}

		otel.HandleSpanError(&span, "failed to insert refund", err)

		return nil, apperr.InternalError{Message: "refund: insert", Err: err}
	}

	return created, nil
}

// Find returns the refund with the given id.
func (r *PostgreSQLRepository) Find(ctx context.Context, id uuid.UUID) (*refund.RiderRefund, error) {
	return r.findBy(ctx, "postgres.refund.find", "id", id)
}

// FindByPolicyID returns the refund raised by policyID's cancellation.
func (r *PostgreSQLRepository) FindByPolicyID(ctx context.Context, policyID uuid.UUID) (*refund.RiderRefund, error) {
	return r.findBy(ctx, "postgres.refund.find_by_policy", "policy_id", policyID)
}

func (r *PostgreSQLRepository) findBy(ctx context.Context, spanName, column string, id uuid.UUID) (*refund.RiderRefund, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "refund: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT `+refundColumns+` FROM rider_refund WHERE `+column+` = $1`, id)

	rr, err := scanRefund(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: reflect.TypeOf(refund.RiderRefund{}).Name(), ID: id.String()}
		}

		otel.HandleSpanError(&span, "failed to scan refund", err)

		return nil, apperr.InternalError{Message: "refund: scan", Err: err}
	}

	return rr, nil
}

// MarkPaid performs a version-guarded transition to PAID.
func (r *PostgreSQLRepository) MarkPaid(ctx context.Context, id uuid.UUID, version int64, now time.Time) (*refund.RiderRefund, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.refund.mark_paid")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "refund: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `
		UPDATE rider_refund SET
			status = $1,
			paid_at = $2,
			version = version + 1,
			updated_at = $2
		WHERE id = $3 AND version = $4 AND status = $5
		RETURNING `+refundColumns,
		refund.StatusPaid, now, id, version, refund.StatusPending,
	)

	rr, err := scanRefund(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ConflictError{
				EntityType: reflect.TypeOf(refund.RiderRefund{}).Name(),
				Code:       "VERSION_CONFLICT",
				Retryable:  true,
			}
		}

		otel.HandleSpanError(&span, "failed to mark refund paid", err)

		return nil, apperr.InternalError{Message: "refund: mark paid", Err: err}
	}

	return rr, nil
}

var _ refund.Repository = (*PostgreSQLRepository)(nil)
