package query

import (
	"context"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/platform/otel"
)

// GetPaymentRequest returns a single payment request by id, for the
// rider-facing client to poll a deposit/daily-payment's settlement
// status.
func (uc *UseCase) GetPaymentRequest(ctx context.Context, id uuid.UUID) (*payment.PaymentRequest, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "query.get_payment_request")
	defer span.End()

	pr, err := uc.PaymentRepo.Find(ctx, id)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find payment request", err)
		return nil, err
	}

	return pr, nil
}
