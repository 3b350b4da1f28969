// File issuance_planner.go implements the issuance planner: a settled
// deposit creates a PENDING_ISSUANCE ONE_MONTH policy,
// and a just-completed 30th daily payment creates a PENDING_ISSUANCE
// ELEVEN_MONTH policy chained to the rider's current ONE_MONTH policy.
// Both paths are idempotent on (rider_id, triggering_transaction_id).
package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/pkg/idgen"
	"github.com/bodaboda-insure/core/pkg/money"
)

// PlanIssuance creates the PENDING_ISSUANCE policy a settled payment
// triggers and returns it. kind distinguishes the deposit's ONE_MONTH
// policy from a completed daily-payment cycle's ELEVEN_MONTH policy;
// triggeringTransactionID is the settled Transaction's id, and is
// the idempotency key: a repeated event for the same transaction does
// not create a duplicate policy — the already-planned policy is
// returned instead.
func (uc *UseCase) PlanIssuance(ctx context.Context, riderID uuid.UUID, kind policy.Type, premium money.Minor, triggeringTransactionID uuid.UUID) (*policy.Policy, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.plan_issuance")
	defer span.End()

	if existing, err := uc.PolicyRepo.FindByTriggeringTransactionID(ctx, triggeringTransactionID); err == nil {
		log.FromContext(ctx).Infof("policy already planned for transaction %s, skipping", log.RedactID(triggeringTransactionID.String()))
		return existing, nil
	} else {
		var nf apperr.NotFoundError
		if !errors.As(err, &nf) {
			otel.HandleSpanError(&span, "failed to check triggering transaction", err)
			return nil, err
		}
	}

	var previousPolicyID *uuid.UUID

	if kind == policy.TypeEleven {
		prev, err := uc.currentOneMonthPolicy(ctx, riderID)
		if err != nil {
			otel.HandleSpanError(&span, "failed to find rider's one-month policy", err)
			return nil, err
		}

		if prev != nil {
			previousPolicyID = &prev.ID
		}
	}

	now := time.Now().UTC()

	// EffectiveDate/ExpiryDate/FreeLookEndsAt are set once the batch
	// scheduler activates the policy; a zero FreeLookEndsAt
	// here makes the still-pending policy fail WithinFreeLook by
	// construction, which is correct since it cannot be cancelled before
	// it exists.
	p := &policy.Policy{
		ID:                      idgen.New(),
		RiderID:                 riderID,
		Type:                    kind,
		Status:                  policy.StatusPendingIssuance,
		PremiumAmount:           premium,
		TriggeringTransactionID: triggeringTransactionID,
		PreviousPolicyID:        previousPolicyID,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	created, err := uc.PolicyRepo.Create(ctx, p)
	if err != nil {
		var conflict apperr.ConflictError
		if errors.As(err, &conflict) {
			log.FromContext(ctx).Infof("policy for transaction %s already planned concurrently, ignoring", log.RedactID(triggeringTransactionID.String()))
			return uc.PolicyRepo.FindByTriggeringTransactionID(ctx, triggeringTransactionID)
		}

		otel.HandleSpanError(&span, "failed to create policy", err)
		return nil, err
	}

	if previousPolicyID != nil {
		if _, err := uc.linkNextPolicy(ctx, *previousPolicyID, created.ID); err != nil {
			log.FromContext(ctx).Warnf("failed to link next policy for %s: %v", log.RedactID(previousPolicyID.String()), err)
		}
	}

	return created, nil
}

// currentOneMonthPolicy returns the rider's non-cancelled, non-expired
// ONE_MONTH policy, which the eleven-month policy chains to.
func (uc *UseCase) currentOneMonthPolicy(ctx context.Context, riderID uuid.UUID) (*policy.Policy, error) {
	all, err := uc.PolicyRepo.FindByRiderID(ctx, riderID)
	if err != nil {
		return nil, err
	}

	for _, p := range all {
		if p.Type == policy.TypeOneMonth && p.Status != policy.StatusCancelled && p.Status != policy.StatusExpired {
			return p, nil
		}
	}

	return nil, nil
}

// linkNextPolicy bumps previousPolicyID's NextPolicyID forward to
// nextPolicyID, retrying on a version conflict since no other writer
// should be racing this specific field.
func (uc *UseCase) linkNextPolicy(ctx context.Context, previousPolicyID, nextPolicyID uuid.UUID) (*policy.Policy, error) {
	for attempt := 0; attempt < maxOptimisticRetries; attempt++ {
		prev, err := uc.PolicyRepo.Find(ctx, previousPolicyID)
		if err != nil {
			return nil, err
		}

		updated, err := uc.PolicyRepo.SetNextPolicyID(ctx, previousPolicyID, prev.Version, nextPolicyID)
		if err != nil {
			if apperr.IsRetryableConflict(err) {
				continue
			}

			return nil, err
		}

		return updated, nil
	}

	return nil, apperr.ConflictError{EntityType: "Policy", Code: "VERSION_CONFLICT", Retryable: false}
}
