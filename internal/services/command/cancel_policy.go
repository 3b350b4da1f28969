// File cancel_policy.go implements free-look cancellation: a policy
// may only be cancelled while still inside its FreeLookEndsAt window,
// and cancellation posts the REVERSAL journal entry, netting the 10%
// reversal fee from the refunded gross premium.
package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/constant"
	"github.com/bodaboda-insure/core/internal/domain/notification"
	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/internal/domain/refund"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/pkg/idgen"
	"github.com/bodaboda-insure/core/pkg/money"
)

// CancelPolicy cancels an ACTIVE policy still within its free-look
// window, posts the reversal journal entry and records the rider's
// pending refund.
func (uc *UseCase) CancelPolicy(ctx context.Context, policyID uuid.UUID, reason string) (*policy.Policy, error) {
	logger := log.FromContext(ctx)
	tracer := otel.FromContext(ctx)

	ctx, span := tracer.Start(ctx, "command.cancel_policy")
	defer span.End()

	p, err := uc.PolicyRepo.Find(ctx, policyID)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find policy", err)
		return nil, err
	}

	if p.Status != policy.StatusActive {
		return nil, apperr.ValidateBusinessError(apperr.ErrPolicyNotCancellable, "Policy")
	}

	now := time.Now().UTC()

	if !p.WithinFreeLook(now) {
		return nil, apperr.ValidateBusinessError(apperr.ErrFreeLookExpired, "Policy")
	}

	cancelled, err := uc.PolicyRepo.Cancel(ctx, policyID, p.Version, now)
	if err != nil {
		if apperr.IsRetryableConflict(err) {
			return nil, err
		}

		otel.HandleSpanError(&span, "failed to cancel policy", err)
		return nil, err
	}

	gross := cancelled.PremiumAmount
	fee := gross.Fraction(constant.ReversalFeeNumerator, constant.ReversalFeeDenominator)

	if err := uc.postReversalJournalEntry(ctx, cancelled.ID, gross, fee); err != nil {
		logger.Errorf("failed to post reversal journal entry for policy %s: %v", log.RedactID(cancelled.ID.String()), err)
		return nil, err
	}

	if _, err := uc.RefundRepo.Create(ctx, &refund.RiderRefund{
		ID:           idgen.New(),
		RiderID:      cancelled.RiderID,
		PolicyID:     cancelled.ID,
		GrossAmount:  gross,
		RefundAmount: gross.Sub(fee),
		ReversalFee:  fee,
		Reason:       reason,
		Status:       refund.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		// a concurrent double-cancel already recorded the payout; the
		// journal entry above is the same-keyed idempotent loser in that
		// race, so surface anything else.
		var conflict apperr.ConflictError
		if !errors.As(err, &conflict) {
			otel.HandleSpanError(&span, "failed to create rider refund", err)
			return nil, err
		}
	}

	uc.notifyPolicyCancelled(ctx, cancelled, gross.Sub(fee))

	return cancelled, nil
}

// notifyPolicyCancelled sends the POLICY_CANCELLED notification. Best-effort: a rider lookup or delivery failure is logged and
// swallowed, never failing a cancellation that has already posted its
// reversal entry.
func (uc *UseCase) notifyPolicyCancelled(ctx context.Context, p *policy.Policy, refund money.Minor) {
	if uc.Notifier.SMSPrimary == nil {
		return
	}

	r, err := uc.RiderRepo.Find(ctx, p.RiderID)
	if err != nil {
		log.FromContext(ctx).Warnf("failed to look up rider %s for policy-cancelled notice: %v", log.RedactID(p.RiderID.String()), err)
		return
	}

	_, err = uc.SendNotification(ctx, p.RiderID, notification.ChannelSMS, notification.TemplatePolicyCancelled,
		RiderContact{PhoneE164: r.Phone}, map[string]string{
			"policy_number": p.PolicyNumber,
			"refund_amount": refund.Display(),
		}, notification.PriorityRoutine, nil)
	if err != nil {
		log.FromContext(ctx).Warnf("failed to send policy-cancelled notification for policy %s: %v", log.RedactID(p.ID.String()), err)
	}
}
