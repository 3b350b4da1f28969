// File reconciler.go implements the delayed-payment reconciler: it
// actively re-polls the provider for every PENDING
// PaymentRequest that has gone quiet past the inline polling window,
// feeding a terminal result through the same HandleCallback path a
// provider webhook would take, and forcing TIMEOUT once a request has
// been stale for longer than the configured ceiling.
package command

import (
	"context"
	"time"

	"github.com/bodaboda-insure/core/internal/adapters/providers/mobilemoney"
	"github.com/bodaboda-insure/core/internal/constant"
	"github.com/bodaboda-insure/core/internal/domain/notification"
	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
)

// reconcilerPageSize bounds how many stale payment requests one sweep
// re-polls, matching the batch scheduler's bounded-page-size discipline.
const reconcilerPageSize = 200

// ReconcileStalePayments drives every PENDING PaymentRequest older than
// olderThan toward a terminal state. It is the entrypoint
// the background worker ticker calls on a fixed interval.
func (uc *UseCase) ReconcileStalePayments(ctx context.Context, olderThan time.Duration) (int, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.reconcile_stale_payments")
	defer span.End()

	logger := log.FromContext(ctx)

	cutoff := time.Now().UTC().Add(-olderThan)

	stale, err := uc.PaymentRepo.ListStalePending(ctx, cutoff, reconcilerPageSize)
	if err != nil {
		otel.HandleSpanError(&span, "failed to list stale pending payment requests", err)
		return 0, err
	}

	reconciled := 0

	for _, pr := range stale {
		if err := uc.reconcileOne(ctx, pr); err != nil {
			logger.Warnf("reconcile failed for payment request %s: %v", log.RedactID(pr.ID.String()), err)
			continue
		}

		reconciled++
	}

	return reconciled, nil
}

// reconcileOne re-queries the provider for a single stale
// PaymentRequest and feeds the result through HandleCallback — the
// same idempotent sink a webhook uses — so at most one wallet credit
// happens regardless of which path resolves the request first.
func (uc *UseCase) reconcileOne(ctx context.Context, pr *payment.PaymentRequest) error {
	age := time.Since(pr.CreatedAt)

	result, err := uc.MobileMoney.PollStatus(ctx, pr.ProviderReference)
	if err != nil {
		log.FromContext(ctx).Warnf("poll status failed for payment request %s: %v", log.RedactID(pr.ID.String()), err)
		return uc.timeoutIfStale(ctx, pr, age)
	}

	switch result.Status {
	case mobilemoney.RequestSettled:
		return uc.HandleCallback(ctx, mobilemoney.CallbackPayload{
			ProviderReference: pr.ProviderReference,
			Status:            "COMPLETED",
			ReceiptNumber:     result.ReceiptNumber,
		})
	case mobilemoney.RequestRejected:
		return uc.HandleCallback(ctx, mobilemoney.CallbackPayload{
			ProviderReference: pr.ProviderReference,
			Status:            "FAILED",
		})
	default:
		// still pending/accepted at the provider; force TIMEOUT only
		// once this request has aged past the reconciler's ceiling.
		return uc.timeoutIfStale(ctx, pr, age)
	}
}

// timeoutIfStale forces pr to TIMEOUT once it has aged past
// InlinePollingTimeout x 2^ReconcilerMaxAttempts, notifying the rider
// that manual review is needed.
func (uc *UseCase) timeoutIfStale(ctx context.Context, pr *payment.PaymentRequest, age time.Duration) error {
	maxAge := constant.InlinePollingTimeout * time.Duration(1<<uint(constant.ReconcilerMaxAttempts))
	if age < maxAge {
		return nil
	}

	updated, err := uc.PaymentRepo.Transition(ctx, pr.ID, pr.Version, payment.StatusTimeout, pr.ProviderReference, time.Now().UTC())
	if err != nil {
		return err
	}

	if uc.Notifier.SMSPrimary == nil {
		return nil
	}

	rider, err := uc.RiderRepo.Find(ctx, updated.RiderID)
	if err != nil {
		log.FromContext(ctx).Warnf("failed to look up rider %s for timeout notice: %v", log.RedactID(updated.RiderID.String()), err)
		return nil
	}

	_, notifyErr := uc.SendNotification(ctx, updated.RiderID, notification.ChannelSMS, notification.TemplateManualReviewNeeded,
		RiderContact{PhoneE164: rider.Phone}, nil, notification.PriorityUrgent, nil)

	return notifyErr
}
