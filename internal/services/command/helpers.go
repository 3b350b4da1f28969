package command

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/adapters/rabbitmq"
	"github.com/bodaboda-insure/core/internal/platform/log"
)

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// enqueueReconcile publishes a ReconcilePaymentJob for a freshly-sent
// payment request. The reconciler sweep ticker already re-polls every stale
// PENDING request unconditionally, so this is a best-effort nudge for
// an on-demand reconciler consumer, never a requirement for
// correctness — a publish failure is logged and swallowed rather than
// failing the initiation that already succeeded.
func (uc *UseCase) enqueueReconcile(ctx context.Context, paymentRequestID string) {
	if uc.Producer == nil {
		return
	}

	body, err := json.Marshal(rabbitmq.ReconcilePaymentJob{PaymentRequestID: paymentRequestID})
	if err != nil {
		return
	}

	if err := uc.Producer.Publish(ctx, rabbitmq.Exchange, rabbitmq.RoutingKeyReconcilePayment, body); err != nil {
		log.FromContext(ctx).Warnf("failed to enqueue reconcile job for payment request %s: %v", log.RedactID(paymentRequestID), err)
	}
}
