// Package policy models the issued insurance Policy and the
// PolicyBatch the batch scheduler submits to the underwriter/insurer
// integration.
package policy

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/pkg/money"
)

// Type distinguishes the deposit-funded one-month policy from the
// daily-payment-cycle-funded eleven-month policy.
type Type string

const (
	TypeOneMonth Type = "ONE_MONTH"
	TypeEleven   Type = "ELEVEN_MONTH"
)

// Status enumerates the Policy lifecycle.
type Status string

const (
	StatusPendingIssuance Status = "PENDING_ISSUANCE"
	StatusQueued          Status = "QUEUED"
	StatusActive          Status = "ACTIVE"
	StatusCancelled       Status = "CANCELLED"
	StatusLapsed          Status = "LAPSED"
	StatusExpired         Status = "EXPIRED"
)

// BatchStatus enumerates the PolicyBatch lifecycle.
type BatchStatus string

const (
	BatchOpen       BatchStatus = "OPEN"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"

	// BatchCompletedWithErrors marks a run where some policies activated
	// and some failed; the failed subset stays QUEUED for RetryFailed.
	BatchCompletedWithErrors BatchStatus = "COMPLETED_WITH_ERRORS"

	BatchFailed BatchStatus = "FAILED"
)

// Policy is one rider's coverage record.
type Policy struct {
	ID             uuid.UUID
	RiderID        uuid.UUID
	Type           Type
	BatchID        *uuid.UUID
	PolicyNumber   string // unique; derived from (batch number, sequence) at activation
	Status         Status
	PremiumAmount  money.Minor

	// TriggeringTransactionID is the settled Transaction that caused
	// this policy to be created — the issuance planner's idempotency
	// key, so a replayed settlement event cannot create a second
	// pending policy.
	TriggeringTransactionID uuid.UUID

	// PreviousPolicyID/NextPolicyID chain a rider's ONE_MONTH policy to
	// the ELEVEN_MONTH policy their completed daily-payment cycle funds
	//, as one-directional id references rather than a
	// pointer graph.
	PreviousPolicyID *uuid.UUID
	NextPolicyID     *uuid.UUID

	EffectiveDate  time.Time
	ExpiryDate     time.Time
	FreeLookEndsAt time.Time
	CancelledAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int64
}

// WithinFreeLook reports whether now still falls in the cancellation
// window.
func (p *Policy) WithinFreeLook(now time.Time) bool {
	return now.Before(p.FreeLookEndsAt)
}

// PolicyBatch is one scheduled activation run.
type PolicyBatch struct {
	ID       uuid.UUID
	Schedule string // matches constant.BatchSchedule

	// BatchNumber is the deterministic identifier derived from the
	// batch's date and schedule slot; member policy numbers are minted
	// from it plus each member's sequence position.
	BatchNumber string

	// WindowStart is the scheduled wall-clock instant this batch swept
	// up to; activated members take it as their coverage start.
	WindowStart time.Time

	Status         BatchStatus
	PolicyCount    int
	SubmittedAt    *time.Time
	CompletedAt    *time.Time
	FailureReason  string
	RetryCount     int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Version        int64
}

// Repository is the persistence contract for Policy.
type Repository interface {
	Create(ctx context.Context, p *Policy) (*Policy, error)
	Find(ctx context.Context, id uuid.UUID) (*Policy, error)
	FindByRiderID(ctx context.Context, riderID uuid.UUID) ([]*Policy, error)
	FindByPolicyNumber(ctx context.Context, number string) (*Policy, error)

	// FindByTriggeringTransactionID implements the issuance planner's
	// idempotency key: a repeated event for the same
	// triggering transaction must not create a second policy.
	FindByTriggeringTransactionID(ctx context.Context, triggeringTransactionID uuid.UUID) (*Policy, error)

	// SetNextPolicyID links a rider's prior ONE_MONTH policy forward to
	// the ELEVEN_MONTH policy it funded, once the new
	// policy's id is known.
	SetNextPolicyID(ctx context.Context, policyID uuid.UUID, version int64, nextPolicyID uuid.UUID) (*Policy, error)

	// AssignToBatch moves a PENDING_ISSUANCE policy into a batch,
	// transitioning it to QUEUED.
	AssignToBatch(ctx context.Context, policyID, batchID uuid.UUID, version int64) (*Policy, error)

	// Activate records the batch-derived policy number and moves the
	// policy to ACTIVE. freeLookEndsAt opens the cancellation window
	// CancelPolicy checks.
	Activate(ctx context.Context, policyID uuid.UUID, version int64, policyNumber string, effectiveDate, expiryDate, freeLookEndsAt time.Time) (*Policy, error)

	// Cancel records a free-look cancellation.
	Cancel(ctx context.Context, policyID uuid.UUID, version int64, now time.Time) (*Policy, error)

	// ListPendingIssuance returns PENDING_ISSUANCE policies whose
	// triggering transaction settled within (windowBegin, windowEnd],
	// ordered ascending by that settlement time and tie-broken by
	// triggering_transaction_id, for the batch scheduler's deterministic
	// pickup.
	ListPendingIssuance(ctx context.Context, windowBegin, windowEnd time.Time, limit int) ([]*Policy, error)

	// ListByBatchID returns every policy assigned to batchID, for the
	// scheduler's retry sweep to rediscover a FAILED batch's members
	//.
	ListByBatchID(ctx context.Context, batchID uuid.UUID) ([]*Policy, error)
}

// BatchRepository is the persistence contract for PolicyBatch.
type BatchRepository interface {
	Create(ctx context.Context, b *PolicyBatch) (*PolicyBatch, error)
	Find(ctx context.Context, id uuid.UUID) (*PolicyBatch, error)

	// FindOpenForSchedule returns the single OPEN or PROCESSING batch for
	// a schedule window if one exists, enforcing the one-open-batch-per-window
	// exclusivity rule.
	FindOpenForSchedule(ctx context.Context, schedule string, windowStart time.Time) (*PolicyBatch, error)

	Transition(ctx context.Context, id uuid.UUID, version int64, to BatchStatus, failureReason string, now time.Time) (*PolicyBatch, error)

	// ListRetryable returns FAILED and COMPLETED_WITH_ERRORS batches
	// under the retry ceiling, for
	// the scheduler's RetryFailed sweep.
	ListRetryable(ctx context.Context, maxRetries int, limit int) ([]*PolicyBatch, error)
}
