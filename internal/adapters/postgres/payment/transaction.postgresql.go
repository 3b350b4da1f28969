package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/postgres"
	"github.com/bodaboda-insure/core/pkg/money"
)

// TransactionPostgreSQLRepository is a postgres-backed payment.TransactionRepository.
type TransactionPostgreSQLRepository struct {
	connection *postgres.Connection
}

// NewTransactionPostgreSQLRepository returns a repository bound to conn.
func NewTransactionPostgreSQLRepository(conn *postgres.Connection) *TransactionPostgreSQLRepository {
	r := &TransactionPostgreSQLRepository{connection: conn}

	if _, err := r.connection.GetDB(); err != nil {
		panic("payment: failed to connect database")
	}

	return r
}

const transactionCols = `id, rider_id, wallet_id, payment_request_id, policy_id, type, status,
	amount, provider_ref, receipt_number, provider_status, raw_payload, metadata,
	received_at, updated_at`

func scanTransaction(row interface{ Scan(...interface{}) error }) (*payment.Transaction, error) {
	t := &payment.Transaction{}

	var policyID uuid.NullUUID
	var receipt sql.NullString
	var amount int64
	var metadata []byte

	err := row.Scan(&t.ID, &t.RiderID, &t.WalletID, &t.PaymentRequestID, &policyID, &t.Type,
		&t.Status, &amount, &t.ProviderRef, &receipt, &t.ProviderStatus, &t.RawPayload,
		&metadata, &t.ReceivedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Amount = money.Minor(amount)

	if policyID.Valid {
		t.PolicyID = &policyID.UUID
	}

	if receipt.Valid {
		t.ReceiptNumber = receipt.String
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Create inserts one settled-fact row. Unique indexes on provider_ref
// and receipt_number surface as Conflicts: a duplicate provider_ref
// means this exact provider notification was already recorded, and the
// caller must treat the callback as a no-op rather than crediting
// twice; a duplicate receipt_number means the provider re-used a
// receipt, which the caller must surface, never absorb.
func (r *TransactionPostgreSQLRepository) Create(ctx context.Context, t *payment.Transaction) (*payment.Transaction, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.transaction.create")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "transaction: db connection", Err: err}
	}

	var metadata []byte
	if len(t.Metadata) > 0 {
		metadata, err = json.Marshal(t.Metadata)
		if err != nil {
			return nil, apperr.InternalError{Message: "transaction: marshal metadata", Err: err}
		}
	}

	var receipt *string
	if t.ReceiptNumber != "" {
		receipt = &t.ReceiptNumber
	}

	row := db.QueryRowContext(ctx, `
		INSERT INTO payment_transaction (id, rider_id, wallet_id, payment_request_id, policy_id,
			type, status, amount, provider_ref, receipt_number, provider_status, raw_payload,
			metadata, received_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
		RETURNING `+transactionCols,
		t.ID, t.RiderID, t.WalletID, t.PaymentRequestID, t.PolicyID, t.Type, t.Status,
		int64(t.Amount), t.ProviderRef, receipt, t.ProviderStatus, t.RawPayload,
		metadata, t.ReceivedAt,
	)

	created, err := scanTransaction(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			code := "DUPLICATE_PROVIDER_REF"
			if pqErr.Constraint == "payment_transaction_receipt_number_key" {
				code = "DUPLICATE_RECEIPT_NUMBER"
			}

			return nil, apperr.ConflictError{
				EntityType: "Transaction",
				Code:       code,
				Retryable:  false,
				Err:        err,
			}
		}

		otel.HandleSpanError(&span, "failed to insert transaction", err)
		return nil, apperr.InternalError{Message: "transaction: insert", Err: err}
	}

	return created, nil
}

// Find returns the transaction with the given id.
func (r *TransactionPostgreSQLRepository) Find(ctx context.Context, id uuid.UUID) (*payment.Transaction, error) {
	return r.findBy(ctx, "postgres.transaction.find", "id", id)
}

// FindByReceiptNumber returns the transaction settled under the given
// provider receipt.
func (r *TransactionPostgreSQLRepository) FindByReceiptNumber(ctx context.Context, receiptNumber string) (*payment.Transaction, error) {
	return r.findBy(ctx, "postgres.transaction.find_by_receipt", "receipt_number", receiptNumber)
}

func (r *TransactionPostgreSQLRepository) findBy(ctx context.Context, spanName, column string, value any) (*payment.Transaction, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "transaction: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `SELECT `+transactionCols+` FROM payment_transaction WHERE `+column+` = $1`, value)

	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: "Transaction"}
		}

		otel.HandleSpanError(&span, "failed to scan transaction", err)
		return nil, apperr.InternalError{Message: "transaction: scan", Err: err}
	}

	return t, nil
}

// Transition moves a transaction to its next status.
func (r *TransactionPostgreSQLRepository) Transition(ctx context.Context, id uuid.UUID, to payment.TransactionStatus, now time.Time) (*payment.Transaction, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.transaction.transition")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "transaction: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `
		UPDATE payment_transaction SET status = $1, updated_at = $2
		WHERE id = $3
		RETURNING `+transactionCols,
		to, now, id,
	)

	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: "Transaction", ID: id.String()}
		}

		otel.HandleSpanError(&span, "failed to transition transaction", err)
		return nil, apperr.InternalError{Message: "transaction: transition", Err: err}
	}

	return t, nil
}

// LinkPolicy records the policy this transaction triggered.
func (r *TransactionPostgreSQLRepository) LinkPolicy(ctx context.Context, id uuid.UUID, policyID uuid.UUID) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.transaction.link_policy")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return apperr.InternalError{Message: "transaction: db connection", Err: err}
	}

	if _, err := db.ExecContext(ctx, `UPDATE payment_transaction SET policy_id = $1 WHERE id = $2`, policyID, id); err != nil {
		otel.HandleSpanError(&span, "failed to link policy", err)
		return apperr.InternalError{Message: "transaction: link policy", Err: err}
	}

	return nil
}

// ExistsForProviderRef implements the at-most-once credit rule.
func (r *TransactionPostgreSQLRepository) ExistsForProviderRef(ctx context.Context, providerRef string) (bool, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.transaction.exists_for_provider_ref")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return false, apperr.InternalError{Message: "transaction: db connection", Err: err}
	}

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM payment_transaction WHERE provider_ref = $1)`, providerRef).Scan(&exists)
	if err != nil {
		otel.HandleSpanError(&span, "failed to check provider ref existence", err)
		return false, apperr.InternalError{Message: "transaction: query", Err: err}
	}

	return exists, nil
}

var _ payment.TransactionRepository = (*TransactionPostgreSQLRepository)(nil)
