// Package rider models the bodaboda rider entity and the
// repository contract the payment engine consults to gate deposit
// initiation on KYC status.
package rider

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// KYCStatus enumerates the rider's know-your-customer review state.
type KYCStatus string

const (
	KYCPending   KYCStatus = "PENDING"
	KYCInReview  KYCStatus = "IN_REVIEW"
	KYCApproved  KYCStatus = "APPROVED"
	KYCRejected  KYCStatus = "REJECTED"
	KYCExpired   KYCStatus = "EXPIRED"
)

// Status enumerates the rider's account lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusPending   Status = "PENDING"
)

// Rider is the account holder; only the fields the payment and
// notification paths read are modeled here.
type Rider struct {
	ID             uuid.UUID
	Phone          string // canonical E.164
	KYCStatus      KYCStatus
	OrganizationID uuid.UUID
	Language       string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CanInitiateDeposit gates the first payment: a rider cannot initiate
// a deposit unless KYC is approved.
func (r *Rider) CanInitiateDeposit() bool {
	return r.KYCStatus == KYCApproved
}

// Repository is the persistence contract for Rider.
type Repository interface {
	Find(ctx context.Context, id uuid.UUID) (*Rider, error)
	FindByPhone(ctx context.Context, phone string) (*Rider, error)
}
