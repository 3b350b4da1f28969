package query

import (
	"context"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/internal/domain/wallet"
	"github.com/bodaboda-insure/core/internal/platform/otel"
)

// RiderStatus is the read model a rider-facing client polls: wallet
// progress plus the most recent policy, if any.
type RiderStatus struct {
	Rider    *riderSummary
	Wallet   *wallet.Wallet
	Policies []*policy.Policy
}

type riderSummary struct {
	ID        uuid.UUID
	KYCStatus string
	Status    string
}

// GetRiderStatus assembles the status view for one rider.
func (uc *UseCase) GetRiderStatus(ctx context.Context, riderID uuid.UUID) (*RiderStatus, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "query.get_rider_status")
	defer span.End()

	r, err := uc.RiderRepo.Find(ctx, riderID)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find rider", err)
		return nil, err
	}

	w, err := uc.WalletRepo.FindByRiderID(ctx, riderID)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find wallet", err)
		return nil, err
	}

	policies, err := uc.PolicyRepo.FindByRiderID(ctx, riderID)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find policies", err)
		return nil, err
	}

	return &RiderStatus{
		Rider: &riderSummary{
			ID:        r.ID,
			KYCStatus: string(r.KYCStatus),
			Status:    string(r.Status),
		},
		Wallet:   w,
		Policies: policies,
	}, nil
}
