// Package policy is the postgres implementation of
// policy.Repository/policy.BatchRepository, grounded on the
// version-guarded CRUD over the Policy/PolicyBatch state machines.
package policy

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/postgres"
	"github.com/bodaboda-insure/core/pkg/money"
)

const policyCols = `id, rider_id, type, batch_id, policy_number, status, premium_amount,
	triggering_transaction_id, previous_policy_id, next_policy_id, effective_date,
	expiry_date, free_look_ends_at, cancelled_at, created_at, updated_at, version`

// pendingIssuanceCols is policyCols qualified with the policy table
// name, for ListPendingIssuance's join against payment_transaction.
const pendingIssuanceCols = `policy.id, policy.rider_id, policy.type, policy.batch_id, policy.policy_number,
	policy.status, policy.premium_amount, policy.triggering_transaction_id, policy.previous_policy_id,
	policy.next_policy_id, policy.effective_date, policy.expiry_date, policy.free_look_ends_at,
	policy.cancelled_at, policy.created_at, policy.updated_at, policy.version`

// PostgreSQLRepository is a postgres-backed policy.Repository.
type PostgreSQLRepository struct {
	connection *postgres.Connection
}

// NewPostgreSQLRepository returns a new policy repository bound to conn.
func NewPostgreSQLRepository(conn *postgres.Connection) *PostgreSQLRepository {
	r := &PostgreSQLRepository{connection: conn}

	if _, err := r.connection.GetDB(); err != nil {
		panic("policy: failed to connect database")
	}

	return r
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting
// scanPolicy serve single-row and multi-row query paths alike.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPolicy(row rowScanner) (*policy.Policy, error) {
	p := &policy.Policy{}

	var batchID, previousPolicyID, nextPolicyID uuid.NullUUID
	var cancelledAt sql.NullTime
	var premiumAmount int64

	err := row.Scan(&p.ID, &p.RiderID, &p.Type, &batchID, &p.PolicyNumber, &p.Status, &premiumAmount,
		&p.TriggeringTransactionID, &previousPolicyID, &nextPolicyID, &p.EffectiveDate,
		&p.ExpiryDate, &p.FreeLookEndsAt, &cancelledAt, &p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		return nil, err
	}

	p.PremiumAmount = money.Minor(premiumAmount)

	if batchID.Valid {
		p.BatchID = &batchID.UUID
	}

	if previousPolicyID.Valid {
		p.PreviousPolicyID = &previousPolicyID.UUID
	}

	if nextPolicyID.Valid {
		p.NextPolicyID = &nextPolicyID.UUID
	}

	if cancelledAt.Valid {
		p.CancelledAt = &cancelledAt.Time
	}

	return p, nil
}

// nullUUID converts a possibly-nil *uuid.UUID into a driver-safe value:
// passing a nil pointer directly would panic when database/sql invokes
// its promoted Value() method.
func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}

	return uuid.NullUUID{UUID: *id, Valid: true}
}

// nullTime converts a possibly-nil *time.Time into a driver-safe value.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}

// Create inserts a new Policy at version 1, status PENDING_ISSUANCE.
func (r *PostgreSQLRepository) Create(ctx context.Context, p *policy.Policy) (*policy.Policy, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.policy.create")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "policy: db connection", Err: err}
	}

	p.Version = 1

	row := db.QueryRowContext(ctx, `
		INSERT INTO policy (id, rider_id, type, batch_id, policy_number, status, premium_amount,
			triggering_transaction_id, previous_policy_id, next_policy_id, effective_date,
			expiry_date, free_look_ends_at, cancelled_at, created_at, updated_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15,$16)
		RETURNING `+policyCols,
		p.ID, p.RiderID, p.Type, nullUUID(p.BatchID), p.PolicyNumber, p.Status, int64(p.PremiumAmount),
		p.TriggeringTransactionID, nullUUID(p.PreviousPolicyID), nullUUID(p.NextPolicyID), p.EffectiveDate,
		p.ExpiryDate, p.FreeLookEndsAt, nullTime(p.CancelledAt), p.CreatedAt, p.Version,
	)

	created, err := scanPolicy(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.ConflictError{EntityType: "Policy", Code: "DUPLICATE_ISSUANCE_EVENT", Retryable: false, Err: err}
		}

		otel.HandleSpanError(&span, "failed to insert policy", err)
		return nil, apperr.InternalError{Message: "policy: insert", Err: err}
	}

	return created, nil
}

// isUniqueViolation reports whether err is a postgres unique-constraint
// violation (SQLSTATE 23505), per lib/pq's *pq.Error — same check as
// the payment repository's idempotency-key dedup.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}

// Find returns the policy with the given id.
func (r *PostgreSQLRepository) Find(ctx context.Context, id uuid.UUID) (*policy.Policy, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.policy.find")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "policy: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT `+policyCols+` FROM policy WHERE id = $1`, id)

	p, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: reflect.TypeOf(policy.Policy{}).Name(), ID: id.String()}
		}

		otel.HandleSpanError(&span, "failed to scan policy", err)
		return nil, apperr.InternalError{Message: "policy: scan", Err: err}
	}

	return p, nil
}

func (r *PostgreSQLRepository) queryPolicies(ctx context.Context, span string, query string, args ...interface{}) ([]*policy.Policy, error) {
	tracer := otel.FromContext(ctx)
	ctx, sp := tracer.Start(ctx, span)
	defer sp.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&sp, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "policy: db connection", Err: err}
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		otel.HandleSpanError(&sp, "failed to query policies", err)
		return nil, apperr.InternalError{Message: "policy: query", Err: err}
	}
	defer rows.Close()

	out := make([]*policy.Policy, 0)

	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, apperr.InternalError{Message: "policy: scan row", Err: err}
		}

		out = append(out, p)
	}

	return out, rows.Err()
}

// FindByRiderID returns every policy belonging to riderID.
func (r *PostgreSQLRepository) FindByRiderID(ctx context.Context, riderID uuid.UUID) ([]*policy.Policy, error) {
	return r.queryPolicies(ctx, "postgres.policy.find_by_rider",
		`SELECT `+policyCols+` FROM policy WHERE rider_id = $1 ORDER BY created_at ASC`, riderID)
}

// FindByPolicyNumber looks up a policy by its globally unique number.
func (r *PostgreSQLRepository) FindByPolicyNumber(ctx context.Context, number string) (*policy.Policy, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.policy.find_by_number")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "policy: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT `+policyCols+` FROM policy WHERE policy_number = $1`, number)

	p, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: reflect.TypeOf(policy.Policy{}).Name()}
		}

		otel.HandleSpanError(&span, "failed to scan policy", err)
		return nil, apperr.InternalError{Message: "policy: scan", Err: err}
	}

	return p, nil
}

// FindByTriggeringTransactionID implements the issuance planner's
// idempotency lookup.
func (r *PostgreSQLRepository) FindByTriggeringTransactionID(ctx context.Context, triggeringTransactionID uuid.UUID) (*policy.Policy, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.policy.find_by_triggering_transaction")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "policy: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT `+policyCols+` FROM policy WHERE triggering_transaction_id = $1`, triggeringTransactionID)

	p, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: reflect.TypeOf(policy.Policy{}).Name()}
		}

		otel.HandleSpanError(&span, "failed to scan policy", err)
		return nil, apperr.InternalError{Message: "policy: scan", Err: err}
	}

	return p, nil
}

// AssignToBatch moves a PENDING_ISSUANCE policy to QUEUED under batchID.
func (r *PostgreSQLRepository) AssignToBatch(ctx context.Context, policyID, batchID uuid.UUID, version int64) (*policy.Policy, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.policy.assign_to_batch")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "policy: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `
		UPDATE policy SET batch_id = $1, status = $2, version = version + 1, updated_at = now()
		WHERE id = $3 AND version = $4 AND status = $5
		RETURNING `+policyCols,
		batchID, policy.StatusQueued, policyID, version, policy.StatusPendingIssuance,
	)

	p, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ConflictError{EntityType: reflect.TypeOf(policy.Policy{}).Name(), Code: "VERSION_CONFLICT", Retryable: true}
		}

		otel.HandleSpanError(&span, "failed to assign policy to batch", err)
		return nil, apperr.InternalError{Message: "policy: assign to batch", Err: err}
	}

	return p, nil
}

// Activate records the batch-derived policy number and moves the
// policy to ACTIVE.
func (r *PostgreSQLRepository) Activate(ctx context.Context, policyID uuid.UUID, version int64, policyNumber string, effectiveDate, expiryDate, freeLookEndsAt time.Time) (*policy.Policy, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.policy.activate")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "policy: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `
		UPDATE policy SET policy_number = $1, status = $2, effective_date = $3, expiry_date = $4,
			free_look_ends_at = $5, version = version + 1, updated_at = now()
		WHERE id = $6 AND version = $7
		RETURNING `+policyCols,
		policyNumber, policy.StatusActive, effectiveDate, expiryDate, freeLookEndsAt, policyID, version,
	)

	p, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ConflictError{EntityType: reflect.TypeOf(policy.Policy{}).Name(), Code: "VERSION_CONFLICT", Retryable: true}
		}

		otel.HandleSpanError(&span, "failed to activate policy", err)
		return nil, apperr.InternalError{Message: "policy: activate", Err: err}
	}

	return p, nil
}

// Cancel records a free-look cancellation. The
// caller must have already checked policy.WithinFreeLook; this method
// only performs the DB-level CAS.
func (r *PostgreSQLRepository) Cancel(ctx context.Context, policyID uuid.UUID, version int64, now time.Time) (*policy.Policy, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.policy.cancel")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "policy: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `
		UPDATE policy SET status = $1, cancelled_at = $2, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
		RETURNING `+policyCols,
		policy.StatusCancelled, now, policyID, version,
	)

	p, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.FromContext(ctx).Warnf("policy %s: version conflict on cancel", log.RedactID(policyID.String()))
			return nil, apperr.ConflictError{EntityType: reflect.TypeOf(policy.Policy{}).Name(), Code: "VERSION_CONFLICT", Retryable: true}
		}

		otel.HandleSpanError(&span, "failed to cancel policy", err)
		return nil, apperr.InternalError{Message: "policy: cancel", Err: err}
	}

	return p, nil
}

// SetNextPolicyID links a completed ONE_MONTH policy forward to the
// ELEVEN_MONTH policy it funded.
func (r *PostgreSQLRepository) SetNextPolicyID(ctx context.Context, policyID uuid.UUID, version int64, nextPolicyID uuid.UUID) (*policy.Policy, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.policy.set_next_policy_id")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "policy: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `
		UPDATE policy SET next_policy_id = $1, version = version + 1, updated_at = now()
		WHERE id = $2 AND version = $3
		RETURNING `+policyCols,
		nextPolicyID, policyID, version,
	)

	p, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ConflictError{EntityType: reflect.TypeOf(policy.Policy{}).Name(), Code: "VERSION_CONFLICT", Retryable: true}
		}

		otel.HandleSpanError(&span, "failed to link next policy", err)
		return nil, apperr.InternalError{Message: "policy: set next policy id", Err: err}
	}

	return p, nil
}

// ListPendingIssuance returns PENDING_ISSUANCE policies whose
// triggering transaction settled within (windowBegin, windowEnd],
// joined against payment_transaction for that settlement time, ordered
// ascending by it and tie-broken by triggering_transaction_id. A policy
// whose triggering transaction settled after windowEnd is left for a
// later run rather than swept into this one.
func (r *PostgreSQLRepository) ListPendingIssuance(ctx context.Context, windowBegin, windowEnd time.Time, limit int) ([]*policy.Policy, error) {
	query := `
		SELECT ` + pendingIssuanceCols + ` FROM policy
		JOIN payment_transaction ON payment_transaction.id = policy.triggering_transaction_id
		WHERE policy.status = $1
		  AND payment_transaction.received_at > $2
		  AND payment_transaction.received_at <= $3
		ORDER BY payment_transaction.received_at ASC, policy.triggering_transaction_id ASC
		LIMIT $4`

	return r.queryPolicies(ctx, "postgres.policy.list_pending_issuance", query,
		policy.StatusPendingIssuance, windowBegin, windowEnd, limit)
}

// ListByBatchID returns every policy assigned to batchID, regardless of
// status, so a retry sweep can rediscover a FAILED batch's members
//.
func (r *PostgreSQLRepository) ListByBatchID(ctx context.Context, batchID uuid.UUID) ([]*policy.Policy, error) {
	return r.queryPolicies(ctx, "postgres.policy.list_by_batch_id",
		`SELECT `+policyCols+` FROM policy WHERE batch_id = $1 ORDER BY created_at ASC, id ASC`, batchID)
}

var _ policy.Repository = (*PostgreSQLRepository)(nil)
