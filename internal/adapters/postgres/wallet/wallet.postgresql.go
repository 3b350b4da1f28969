// Package wallet is the postgres implementation of wallet.Repository.
// Every credit is a version-guarded compare-and-swap UPDATE:
// correctness rests on DB-level atomicity, not in-process locks.
package wallet

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/domain/wallet"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/platform/postgres"
	"github.com/bodaboda-insure/core/pkg/money"
)

// PostgreSQLRepository is a postgres-backed wallet.Repository.
type PostgreSQLRepository struct {
	connection *postgres.Connection
	tableName  string
}

// NewPostgreSQLRepository returns a new wallet repository bound to conn.
func NewPostgreSQLRepository(conn *postgres.Connection) *PostgreSQLRepository {
	r := &PostgreSQLRepository{connection: conn, tableName: "wallet"}

	if _, err := r.connection.GetDB(); err != nil {
		panic("wallet: failed to connect database")
	}

	return r
}

func scanWallet(row *sql.Row) (*wallet.Wallet, error) {
	w := &wallet.Wallet{}

	var depositCompletedAt, lastDailyPaymentAt sql.NullTime

	err := row.Scan(
		&w.ID, &w.RiderID, &w.Balance, &w.TotalDeposited, &w.TotalPaid,
		&w.DepositCompleted, &depositCompletedAt,
		&w.DailyPaymentsCount, &lastDailyPaymentAt, &w.DailyPaymentsCompleted,
		&w.Status, &w.Version, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if depositCompletedAt.Valid {
		w.DepositCompletedAt = &depositCompletedAt.Time
	}

	if lastDailyPaymentAt.Valid {
		w.LastDailyPaymentAt = &lastDailyPaymentAt.Time
	}

	return w, nil
}

// Create inserts a new wallet row at version 1.
func (r *PostgreSQLRepository) Create(ctx context.Context, w *wallet.Wallet) (*wallet.Wallet, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.wallet.create")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "wallet: db connection", Err: err}
	}

	w.Version = 1

	row := db.QueryRowContext(ctx, `
		INSERT INTO wallet (id, rider_id, balance, total_deposited, total_paid,
			deposit_completed, deposit_completed_at, daily_payments_count,
			last_daily_payment_at, daily_payments_completed, status, version,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		RETURNING id, rider_id, balance, total_deposited, total_paid,
			deposit_completed, deposit_completed_at, daily_payments_count,
			last_daily_payment_at, daily_payments_completed, status, version,
			created_at, updated_at`,
		w.ID, w.RiderID, w.Balance, w.TotalDeposited, w.TotalPaid,
		w.DepositCompleted, w.DepositCompletedAt, w.DailyPaymentsCount,
		w.LastDailyPaymentAt, w.DailyPaymentsCompleted, w.Status, w.Version,
		w.CreatedAt,
	)

	created, err := scanWallet(row)
	if err != nil {
		otel.HandleSpanError(&span, "failed to insert wallet", err)
		return nil, apperr.InternalError{Message: "wallet: insert", Err: err}
	}

	return created, nil
}

// Find returns the wallet with the given id.
func (r *PostgreSQLRepository) Find(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	return r.findBy(ctx, "postgres.wallet.find", squirrel.Eq{"id": id})
}

// FindByRiderID returns the one wallet belonging to riderID.
func (r *PostgreSQLRepository) FindByRiderID(ctx context.Context, riderID uuid.UUID) (*wallet.Wallet, error) {
	return r.findBy(ctx, "postgres.wallet.find_by_rider", squirrel.Eq{"rider_id": riderID})
}

func (r *PostgreSQLRepository) findBy(ctx context.Context, spanName string, pred squirrel.Eq) (*wallet.Wallet, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "wallet: db connection", Err: err}
	}

	query, args, err := squirrel.Select(
		"id", "rider_id", "balance", "total_deposited", "total_paid",
		"deposit_completed", "deposit_completed_at", "daily_payments_count",
		"last_daily_payment_at", "daily_payments_completed", "status", "version",
		"created_at", "updated_at",
	).From(r.tableName).Where(pred).PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, apperr.InternalError{Message: "wallet: build query", Err: err}
	}

	row := db.QueryRowContext(ctx, query, args...)

	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundError{EntityType: reflect.TypeOf(wallet.Wallet{}).Name()}
		}

		otel.HandleSpanError(&span, "failed to scan wallet", err)
		return nil, apperr.InternalError{Message: "wallet: scan", Err: err}
	}

	return w, nil
}

// CreditDeposit performs the version-guarded deposit-credit UPDATE.
func (r *PostgreSQLRepository) CreditDeposit(ctx context.Context, walletID uuid.UUID, version int64, amount money.Minor, depositAmount money.Minor, now time.Time) (*wallet.Wallet, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.wallet.credit_deposit")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "wallet: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `
		UPDATE wallet SET
			balance = balance + $1,
			total_deposited = total_deposited + $1,
			deposit_completed = (total_deposited + $1) >= $2,
			deposit_completed_at = CASE WHEN deposit_completed THEN deposit_completed_at ELSE $3 END,
			version = version + 1,
			updated_at = $3
		WHERE id = $4 AND version = $5
		RETURNING id, rider_id, balance, total_deposited, total_paid,
			deposit_completed, deposit_completed_at, daily_payments_count,
			last_daily_payment_at, daily_payments_completed, status, version,
			created_at, updated_at`,
		amount, depositAmount, now, walletID, version,
	)

	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.FromContext(ctx).Warnf("wallet %s: version conflict on credit_deposit", log.RedactID(walletID.String()))
			return nil, apperr.ConflictError{
				EntityType: reflect.TypeOf(wallet.Wallet{}).Name(),
				Code:       "VERSION_CONFLICT",
				Retryable:  true,
			}
		}

		otel.HandleSpanError(&span, "failed to credit deposit", err)
		return nil, apperr.InternalError{Message: "wallet: credit deposit", Err: err}
	}

	return w, nil
}

// CreditDailyPayment performs the version-guarded daily-payment-credit
// UPDATE, incrementing DailyPaymentsCount by daysCount (capped at
// daysRequired) and setting DailyPaymentsCompleted once it reaches
// daysRequired.
func (r *PostgreSQLRepository) CreditDailyPayment(ctx context.Context, walletID uuid.UUID, version int64, amount money.Minor, daysCount int, daysRequired int, now time.Time) (*wallet.Wallet, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "postgres.wallet.credit_daily_payment")
	defer span.End()

	db, err := r.connection.GetDB()
	if err != nil {
		otel.HandleSpanError(&span, "failed to get database connection", err)
		return nil, apperr.InternalError{Message: "wallet: db connection", Err: err}
	}

	row := db.QueryRowContext(ctx, `
		UPDATE wallet SET
			balance = balance + $1,
			total_paid = total_paid + $1,
			daily_payments_count = LEAST(daily_payments_count + $2, $3),
			daily_payments_completed = (daily_payments_count + $2) >= $3,
			last_daily_payment_at = $4,
			version = version + 1,
			updated_at = $4
		WHERE id = $5 AND version = $6
		RETURNING id, rider_id, balance, total_deposited, total_paid,
			deposit_completed, deposit_completed_at, daily_payments_count,
			last_daily_payment_at, daily_payments_completed, status, version,
			created_at, updated_at`,
		amount, daysCount, daysRequired, now, walletID, version,
	)

	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.FromContext(ctx).Warnf("wallet %s: version conflict on credit_daily_payment", log.RedactID(walletID.String()))
			return nil, apperr.ConflictError{
				EntityType: reflect.TypeOf(wallet.Wallet{}).Name(),
				Code:       "VERSION_CONFLICT",
				Retryable:  true,
			}
		}

		otel.HandleSpanError(&span, "failed to credit daily payment", err)
		return nil, apperr.InternalError{Message: "wallet: credit daily payment", Err: err}
	}

	return w, nil
}

var _ wallet.Repository = (*PostgreSQLRepository)(nil)
