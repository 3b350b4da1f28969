// Package wallet models the one-to-one rider wallet: a
// version-counted balance ledger with optimistic concurrency, the
// deposit/daily-payment progress flags the issuance planner reads, and
// the domain events CreditDeposit/CreditDailyPayment emit.
package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/pkg/money"
)

// Status enumerates the wallet's operational state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusFrozen    Status = "FROZEN"
	StatusSuspended Status = "SUSPENDED"
	StatusLapsed    Status = "LAPSED"
)

// Wallet is the one-per-rider premium-savings record.
type Wallet struct {
	ID                       uuid.UUID
	RiderID                  uuid.UUID
	Balance                  money.Minor
	TotalDeposited           money.Minor
	TotalPaid                money.Minor
	DepositCompleted         bool
	DepositCompletedAt       *time.Time
	DailyPaymentsCount       int
	LastDailyPaymentAt       *time.Time
	DailyPaymentsCompleted   bool
	Status                   Status
	Version                  int64
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Invariant reports whether the wallet satisfies its bookkeeping
// rules: balance = total_deposited - total_paid;
// deposit_completed iff total_deposited has reached the deposit amount;
// daily_payments_count is capped at DaysRequired.
func (w *Wallet) Invariant(depositAmount int64, daysRequired int) bool {
	if w.Balance != w.TotalDeposited.Sub(w.TotalPaid) {
		return false
	}

	if w.DepositCompleted != (int64(w.TotalDeposited) >= depositAmount) {
		return false
	}

	if w.DailyPaymentsCount < 0 || w.DailyPaymentsCount > daysRequired {
		return false
	}

	return true
}

// Event is a domain event the wallet store emits on a successful credit,
// consumed by the issuance planner.
type Event string

const (
	EventDepositCompleted    Event = "DEPOSIT_COMPLETED"
	EventDailyCycleCompleted Event = "DAILY_CYCLE_COMPLETED"
)

// Repository is the persistence contract for Wallet. Every mutating
// method is optimistic-locked on Version; a version mismatch must
// surface as a retryable apperr.ConflictError.
type Repository interface {
	Create(ctx context.Context, w *Wallet) (*Wallet, error)
	FindByRiderID(ctx context.Context, riderID uuid.UUID) (*Wallet, error)
	Find(ctx context.Context, id uuid.UUID) (*Wallet, error)

	// CreditDeposit applies the DEPOSIT_COMPLETED mutation under the
	// wallet's current version, returning the
	// updated wallet or a retryable conflict if the version has moved.
	// depositAmount is the fixed threshold total_deposited must reach
	// for deposit_completed to flip true (constant.DepositAmount) — not
	// necessarily equal to this single payment's amount, since a retried
	// or split deposit can credit the wallet in more than one call.
	CreditDeposit(ctx context.Context, walletID uuid.UUID, version int64, amount money.Minor, depositAmount money.Minor, now time.Time) (*Wallet, error)

	// CreditDailyPayment applies the recurring-payment mutation,
	// incrementing DailyPaymentsCount by daysCount and
	// setting DailyPaymentsCompleted once it reaches daysRequired.
	CreditDailyPayment(ctx context.Context, walletID uuid.UUID, version int64, amount money.Minor, daysCount int, daysRequired int, now time.Time) (*Wallet, error)
}
