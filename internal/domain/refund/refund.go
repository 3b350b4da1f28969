// Package refund models the rider refund raised by a free-look
// cancellation: the gross premium comes back to the rider net of the
// reversal fee, and the payout itself is processed asynchronously by
// the finance team, so the record starts PENDING.
package refund

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/pkg/money"
)

// Status enumerates the refund payout lifecycle.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusFailed  Status = "FAILED"
)

// RiderRefund is one cancellation's payout obligation.
type RiderRefund struct {
	ID           uuid.UUID
	RiderID      uuid.UUID
	PolicyID     uuid.UUID
	GrossAmount  money.Minor
	RefundAmount money.Minor
	ReversalFee  money.Minor
	Reason       string
	Status       Status
	PaidAt       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Version      int64
}

// Repository is the persistence contract for RiderRefund.
type Repository interface {
	Create(ctx context.Context, r *RiderRefund) (*RiderRefund, error)
	Find(ctx context.Context, id uuid.UUID) (*RiderRefund, error)

	// FindByPolicyID returns the refund raised by policyID's
	// cancellation; each policy cancels at most once, so this is unique.
	FindByPolicyID(ctx context.Context, policyID uuid.UUID) (*RiderRefund, error)

	// MarkPaid records the finance-side payout completion.
	MarkPaid(ctx context.Context, id uuid.UUID, version int64, now time.Time) (*RiderRefund, error)
}
