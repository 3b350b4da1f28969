package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/adapters/providers/mobilemoney"
	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
)

// RefreshPaymentStatus actively re-queries the provider for a single
// payment request and routes any terminal result through HandleCallback,
// the same idempotent sink a webhook or the reconciler's sweep would
// use. It backs the rider-facing "check status" action, so it verifies
// riderID owns the request before touching the provider.
func (uc *UseCase) RefreshPaymentStatus(ctx context.Context, requestID, riderID uuid.UUID) (*payment.PaymentRequest, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.refresh_payment_status")
	defer span.End()

	pr, err := uc.PaymentRepo.Find(ctx, requestID)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find payment request", err)
		return nil, err
	}

	if pr.RiderID != riderID {
		return nil, apperr.NotFoundError{EntityType: "PaymentRequest", ID: requestID.String()}
	}

	// Nothing to refresh once the request has settled one way or the
	// other; return the stored state so the caller sees the final word.
	if payment.IsTerminal(pr.Status) {
		return pr, nil
	}

	result, err := uc.MobileMoney.PollStatus(ctx, pr.ProviderReference)
	if err != nil {
		otel.HandleSpanError(&span, "provider status poll failed", err)
		return nil, err
	}

	switch result.Status {
	case mobilemoney.RequestSettled:
		err = uc.HandleCallback(ctx, mobilemoney.CallbackPayload{
			ProviderReference: pr.ProviderReference,
			Status:            "COMPLETED",
			ReceiptNumber:     result.ReceiptNumber,
		})
	case mobilemoney.RequestRejected:
		err = uc.HandleCallback(ctx, mobilemoney.CallbackPayload{
			ProviderReference: pr.ProviderReference,
			Status:            "FAILED",
		})
	default:
		// still pending at the provider; leave the request untouched.
		return pr, nil
	}

	if err != nil {
		otel.HandleSpanError(&span, "failed to apply refreshed status", err)
		return nil, err
	}

	return uc.PaymentRepo.Find(ctx, requestID)
}
