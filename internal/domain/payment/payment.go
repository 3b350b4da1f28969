// Package payment models the PaymentRequest state machine and the
// Transaction ledger row it produces — the payment engine's core
// entities.
package payment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/pkg/money"
)

// Kind distinguishes a deposit from a recurring daily payment.
type Kind string

const (
	KindDeposit Kind = "DEPOSIT"
	KindDaily   Kind = "DAILY"
)

// Status enumerates the PaymentRequest state machine.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"

	// StatusCancelled is a distinct terminal outcome from StatusFailed:
	// the rider rejected the provider's prompt rather than the push
	// erroring out, a distinction the notification layer surfaces as
	// "user cancelled" rather than a generic failure.
	StatusCancelled Status = "CANCELLED"

	StatusTimeout  Status = "TIMEOUT"
	StatusReversed Status = "REVERSED"

	// StatusExpired is reached when the provider never accepts the push
	// at all (synchronous rejection before it ever reaches SENT/PENDING),
	// as opposed to StatusTimeout, which covers an accepted push that
	// never settles.
	StatusExpired Status = "EXPIRED"
)

// terminal holds the states from which no further transition is legal.
var terminal = map[Status]bool{
	StatusSucceeded: true,
	StatusFailed:    true,
	StatusCancelled: true,
	StatusReversed:  true,
	StatusExpired:   true,
}

// IsTerminal reports whether s permits no further transition.
func IsTerminal(s Status) bool {
	return terminal[s]
}

// CanTransition reports whether moving from from to to is a legal edge
// in the state machine.
func CanTransition(from, to Status) bool {
	if terminal[from] {
		return false
	}

	switch from {
	case StatusCreated:
		return to == StatusPending || to == StatusFailed || to == StatusExpired
	case StatusPending:
		return to == StatusSucceeded || to == StatusFailed || to == StatusCancelled || to == StatusTimeout
	case StatusTimeout:
		// a late callback can still land after a timeout transition
		return to == StatusSucceeded || to == StatusFailed
	case StatusSucceeded:
		return to == StatusReversed
	default:
		return false
	}
}

// PaymentRequest is one outbound push and its lifecycle.
type PaymentRequest struct {
	ID                uuid.UUID
	RiderID           uuid.UUID
	WalletID          uuid.UUID
	Kind              Kind
	Amount            money.Minor
	IdempotencyKey    string
	Status            Status
	ProviderReference string
	DaysCount         int // for KindDaily batched catch-up payments
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64
}

// TransactionType names what kind of value movement a Transaction
// records.
type TransactionType string

const (
	TransactionDeposit      TransactionType = "DEPOSIT"
	TransactionDailyPayment TransactionType = "DAILY_PAYMENT"
	TransactionRefund       TransactionType = "REFUND"
	TransactionAdjustment   TransactionType = "ADJUSTMENT"
	TransactionReversal     TransactionType = "REVERSAL"
)

// TransactionStatus enumerates the Transaction lifecycle. A settling
// callback creates the row in PROCESSING and moves it to COMPLETED once
// the wallet credit and journal entry have committed; a terminal
// transaction is never updated again except by an explicit REVERSAL
// producing a new transaction.
type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "PENDING"
	TransactionProcessing TransactionStatus = "PROCESSING"
	TransactionCompleted  TransactionStatus = "COMPLETED"
	TransactionFailed     TransactionStatus = "FAILED"
	TransactionCancelled  TransactionStatus = "CANCELLED"
	TransactionReversed   TransactionStatus = "REVERSED"
)

// Transaction is the settled financial fact a terminal provider
// callback produces: who paid, from which wallet, how much, and under
// which provider receipt. Exactly one COMPLETED Transaction exists per
// COMPLETED PaymentRequest.
type Transaction struct {
	ID               uuid.UUID
	RiderID          uuid.UUID
	WalletID         uuid.UUID
	PaymentRequestID uuid.UUID

	// PolicyID weakly references the policy this transaction triggered,
	// set by the issuance planner once the pending policy exists.
	PolicyID *uuid.UUID

	Type   TransactionType
	Status TransactionStatus
	Amount money.Minor

	// ProviderRef is the checkout-time reference the push was initiated
	// under; unique, and the dedup key for repeated callbacks.
	ProviderRef string

	// ReceiptNumber is the provider's settlement receipt (e.g.
	// "RCPT-042"), present only on a successful settlement and globally
	// unique when set.
	ReceiptNumber string

	ProviderStatus string
	RawPayload     []byte
	Metadata       map[string]string
	ReceivedAt     time.Time
	UpdatedAt      time.Time
}

// Repository is the persistence contract for PaymentRequest.
type Repository interface {
	Create(ctx context.Context, pr *PaymentRequest) (*PaymentRequest, error)
	Find(ctx context.Context, id uuid.UUID) (*PaymentRequest, error)

	// FindByIdempotencyKey implements the initiation dedup rule: a
	// retried request with a key already on file returns the existing
	// row unchanged rather than creating a new one.
	FindByIdempotencyKey(ctx context.Context, riderID uuid.UUID, key string) (*PaymentRequest, error)

	// FindByProviderReference supports callback correlation when the
	// provider's webhook carries only its own reference.
	FindByProviderReference(ctx context.Context, ref string) (*PaymentRequest, error)

	// Transition performs a CAS state-machine move, version-guarded;
	// callers must retry on a conflict.
	Transition(ctx context.Context, id uuid.UUID, version int64, to Status, providerRef string, now time.Time) (*PaymentRequest, error)

	// ListStalePending returns PENDING requests older than olderThan,
	// for the reconciler's poll sweep.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*PaymentRequest, error)
}

// TransactionRepository is the persistence contract for Transaction.
// Unique indexes on provider_ref and receipt_number back the
// at-most-once and globally-unique-receipt rules; Create maps either
// violation to a Conflict.
type TransactionRepository interface {
	Create(ctx context.Context, t *Transaction) (*Transaction, error)
	Find(ctx context.Context, id uuid.UUID) (*Transaction, error)
	FindByReceiptNumber(ctx context.Context, receiptNumber string) (*Transaction, error)

	// Transition moves a transaction to its terminal status once the
	// side effects it records have committed (PROCESSING -> COMPLETED on
	// the settle path).
	Transition(ctx context.Context, id uuid.UUID, to TransactionStatus, now time.Time) (*Transaction, error)

	// LinkPolicy records the weak reference to the policy this
	// transaction triggered.
	LinkPolicy(ctx context.Context, id uuid.UUID, policyID uuid.UUID) error

	// ExistsForProviderRef implements the at-most-once credit rule: a
	// provider ref already recorded must not be credited twice.
	ExistsForProviderRef(ctx context.Context, providerRef string) (bool, error)
}
