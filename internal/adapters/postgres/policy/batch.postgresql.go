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
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/postgres"
)

const batchCols = `id, schedule, batch_number, window_start, status, policy_count,
	submitted_at, completed_at, failure_reason, retry_count, created_at, updated_at, version`

// BatchPostgreSQLRepository is a postgres-backed policy.BatchRepository.
type BatchPostgreSQLRepository struct {
	connection *postgres.Connection
}

// NewBatchPostgreSQLRepository returns a new batch repository bound to conn.
func NewBatchPostgreSQLRepository(conn *postgres.Connection) *BatchPostgreSQLRepository {
	r := &BatchPostgreSQLRepository{connection: conn}

	if _, err := r.connection.GetDB(); err != nil {
		panic("policy: failed to connect database")
	}

	return r
}

func scanBatch(row *sql.Row) (*policy.PolicyBatch, error) {
	b := &policy.PolicyBatch{}

	var submittedAt, completedAt sql.NullTime

	err := row.Scan(&b.ID, &b.Schedule, &b.BatchNumber, &b.WindowStart, &b.Status, &b.PolicyCount,
		&submittedAt, &completedAt, &b.FailureReason, &b.RetryCount, &b.CreatedAt, &b.UpdatedAt, &b.Version)
	if err != nil {
		return nil, err
	}

	if submittedAt.Valid {
		b.SubmittedAt = &submittedAt.Time
	}

	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}

	return b, nil
}

// Create inserts a new OPEN PolicyBatch at version 1. The unique index
// on (schedule, window_start) is the cluster-wide lock behind batch
// exclusivity: of two concurrent runs of the same scheduled batch,
// exactly one insert succeeds and the loser gets a Conflict.
func (r *BatchPostgreSQLRepository) Create(ctx context.Context, b *policy.PolicyBatch) (*policy.PolicyBatch, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.batch.create")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "batch: db connection", Err: err}
	}

	b.Version = 1

	row := db.QueryRowContext(ctx, `
		INSERT INTO policy_batch (id, schedule, batch_number, window_start, status, policy_count,
			submitted_at, completed_at, failure_reason, retry_count, created_at, updated_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11,$12)
		RETURNING `+batchCols,
		b.ID, b.Schedule, b.BatchNumber, b.WindowStart, b.Status, b.PolicyCount,
		b.SubmittedAt, b.CompletedAt, b.FailureReason, b.RetryCount, b.CreatedAt, b.Version,
	)

	created, err := scanBatch(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apperr.ConflictError{
				EntityType: reflect.TypeOf(policy.PolicyBatch{}).Name(),
				Code:       "BATCH_ALREADY_OPEN",
				Retryable:  false,
				Err:        err,
			}
		}

		otel.HandleSpanError(&span, "failed to insert batch", err)
		return nil, apperr.InternalError{Message: "batch: insert", Err: err}
	}

	return created, nil
}

// Find returns the batch with the given id.
func (r *BatchPostgreSQLRepository) Find(ctx context.Context, id uuid.UUID) (*policy.PolicyBatch, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.batch.find")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "batch: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT `+batchCols+` FROM policy_batch WHERE id = $1`, id)

	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: reflect.TypeOf(policy.PolicyBatch{}).Name(), ID: id.String()}
		}

		otel.HandleSpanError(&span, "failed to scan batch", err)
		return nil, apperr.InternalError{Message: "batch: scan", Err: err}
	}

	return b, nil
}

// FindOpenForSchedule returns the (schedule, window_start) batch if a
// run already opened it — including a crashed run's PROCESSING batch,
// which the rerun resumes rather than duplicating.
func (r *BatchPostgreSQLRepository) FindOpenForSchedule(ctx context.Context, schedule string, windowStart time.Time) (*policy.PolicyBatch, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.batch.find_open_for_schedule")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "batch: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `
		SELECT `+batchCols+` FROM policy_batch
		WHERE schedule = $1 AND window_start = $2 AND status IN ($3, $4)
		LIMIT 1`,
		schedule, windowStart, policy.BatchOpen, policy.BatchProcessing,
	)

	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: reflect.TypeOf(policy.PolicyBatch{}).Name()}
		}

		otel.HandleSpanError(&span, "failed to scan open batch", err)
		return nil, apperr.InternalError{Message: "batch: scan", Err: err}
	}

	return b, nil
}

// Transition performs a version-guarded PolicyBatch status move.
func (r *BatchPostgreSQLRepository) Transition(ctx context.Context, id uuid.UUID, version int64, to policy.BatchStatus, failureReason string, now time.Time) (*policy.PolicyBatch, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.batch.transition")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "batch: db connection", Err: err}
	}

	var submittedAtExpr, completedAtExpr string
	switch to {
	case policy.BatchProcessing:
		submittedAtExpr = "submitted_at = $6,"
	case policy.BatchCompleted, policy.BatchCompletedWithErrors, policy.BatchFailed:
		completedAtExpr = "completed_at = $6,"
	}

	retryIncrement := ""
	if to == policy.BatchFailed || to == policy.BatchCompletedWithErrors {
		retryIncrement = "retry_count = retry_count + 1,"
	}

	row := db.QueryRowContext(ctx, `
		UPDATE policy_batch SET
			status = $1,
			failure_reason = $2,
			`+submittedAtExpr+completedAtExpr+retryIncrement+`
			version = version + 1,
			updated_at = $3
		WHERE id = $4 AND version = $5
		RETURNING `+batchCols,
		to, failureReason, now, id, version, now,
	)

	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ConflictError{EntityType: reflect.TypeOf(policy.PolicyBatch{}).Name(), Code: "VERSION_CONFLICT", Retryable: true}
		}

		otel.HandleSpanError(&span, "failed to transition batch", err)
		return nil, apperr.InternalError{Message: "batch: transition", Err: err}
	}

	return b, nil
}

// ListRetryable returns FAILED and COMPLETED_WITH_ERRORS batches under
// the retry ceiling, for the scheduler's RetryFailed sweep.
func (r *BatchPostgreSQLRepository) ListRetryable(ctx context.Context, maxRetries int, limit int) ([]*policy.PolicyBatch, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.batch.list_retryable")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "batch: db connection", Err: err}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+batchCols+` FROM policy_batch
		WHERE status IN ($1, $2) AND retry_count < $3
		ORDER BY updated_at ASC
		LIMIT $4`, policy.BatchFailed, policy.BatchCompletedWithErrors, maxRetries, limit)
	if err != nil {
		otel.HandleSpanError(&span, "failed to query retryable batches", err)
		return nil, apperr.InternalError{Message: "batch: query", Err: err}
	}
	defer rows.Close()

	out := make([]*policy.PolicyBatch, 0, limit)

	for rows.Next() {
		b := &policy.PolicyBatch{}
		var submittedAt, completedAt sql.NullTime

		if err := rows.Scan(&b.ID, &b.Schedule, &b.BatchNumber, &b.WindowStart, &b.Status, &b.PolicyCount,
			&submittedAt, &completedAt, &b.FailureReason, &b.RetryCount, &b.CreatedAt, &b.UpdatedAt, &b.Version); err != nil {
			return nil, apperr.InternalError{Message: "batch: scan row", Err: err}
		}

		if submittedAt.Valid {
			b.SubmittedAt = &submittedAt.Time
		}

		if completedAt.Valid {
			b.CompletedAt = &completedAt.Time
		}

		out = append(out, b)
	}

	return out, rows.Err()
}

var _ policy.BatchRepository = (*BatchPostgreSQLRepository)(nil)
