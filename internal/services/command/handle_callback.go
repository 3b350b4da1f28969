package command

import (
	"context"
	"errors"
	"time"

	"github.com/bodaboda-insure/core/internal/adapters/mongo/callbackaudit"
	"github.com/bodaboda-insure/core/internal/adapters/providers/mobilemoney"
	"github.com/bodaboda-insure/core/internal/domain/notification"
	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/pkg/idgen"
)

// providerSettledStatuses are the provider-vocabulary strings this
// service treats as a successful settlement. The exact vocabulary is
// provider-specific; the gateway layer does not normalize it, so the
// callback handler owns this mapping.
var providerSettledStatuses = map[string]bool{
	"COMPLETED":  true,
	"SUCCESS":    true,
	"SUCCESSFUL": true,
}

var providerFailedStatuses = map[string]bool{
	"FAILED":  true,
	"TIMEOUT": true,
}

// providerCancelledStatuses are the provider-vocabulary strings meaning
// the rider rejected the prompt on their phone, a distinct outcome from
// a provider-side failure.
var providerCancelledStatuses = map[string]bool{
	"CANCELLED": true,
}

// transactionTypeFor maps a payment request's kind to the transaction
// type its settlement records.
func transactionTypeFor(kind payment.Kind) payment.TransactionType {
	if kind == payment.KindDaily {
		return payment.TransactionDailyPayment
	}

	return payment.TransactionDeposit
}

// HandleCallback processes one inbound mobile-money callback. It is
// idempotent on provider reference: a callback already recorded as a
// Transaction is acknowledged without crediting the wallet again.
func (uc *UseCase) HandleCallback(ctx context.Context, payload mobilemoney.CallbackPayload) error {
	logger := log.FromContext(ctx)
	tracer := otel.FromContext(ctx)

	ctx, span := tracer.Start(ctx, "command.handle_callback")
	defer span.End()

	if uc.CallbackAudit != nil {
		if err := uc.CallbackAudit.Record(ctx, callbackaudit.Record{
			Source:     "mobile_money",
			Reference:  payload.ProviderReference,
			RawPayload: payload.RawBody,
		}); err != nil {
			logger.Warnf("callback audit write failed (non-fatal): %v", err)
		}
	}

	exists, err := uc.TransactionRepo.ExistsForProviderRef(ctx, payload.ProviderReference)
	if err != nil {
		otel.HandleSpanError(&span, "failed to check provider ref", err)
		return err
	}

	if exists {
		logger.Infof("duplicate callback for provider_ref %s ignored", log.RedactID(payload.ProviderReference))
		return nil
	}

	pr, err := uc.PaymentRepo.FindByProviderReference(ctx, payload.ProviderReference)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find payment request by provider reference", err)
		return err
	}

	switch {
	case providerSettledStatuses[payload.Status]:
		return uc.settlePaymentRequest(ctx, pr, payload)
	case providerFailedStatuses[payload.Status]:
		return uc.failPaymentRequest(ctx, pr, payload, payment.StatusFailed, payment.TransactionFailed)
	case providerCancelledStatuses[payload.Status]:
		return uc.failPaymentRequest(ctx, pr, payload, payment.StatusCancelled, payment.TransactionCancelled)
	default:
		logger.Warnf("unrecognized provider status %q for provider_ref %s", payload.Status, log.RedactID(payload.ProviderReference))
		return nil
	}
}

// recordTransaction inserts the settled-fact row for one terminal
// callback. A concurrent duplicate of the same provider notification
// surfaces as (nil, nil) so callers treat the callback as already
// handled; any other conflict (a re-used receipt number) is an error.
func (uc *UseCase) recordTransaction(ctx context.Context, pr *payment.PaymentRequest, payload mobilemoney.CallbackPayload, status payment.TransactionStatus) (*payment.Transaction, error) {
	now := time.Now().UTC()

	txn, err := uc.TransactionRepo.Create(ctx, &payment.Transaction{
		ID:               idgen.New(),
		RiderID:          pr.RiderID,
		WalletID:         pr.WalletID,
		PaymentRequestID: pr.ID,
		Type:             transactionTypeFor(pr.Kind),
		Status:           status,
		Amount:           pr.Amount,
		ProviderRef:      payload.ProviderReference,
		ReceiptNumber:    payload.ReceiptNumber,
		ProviderStatus:   payload.Status,
		RawPayload:       payload.RawBody,
		ReceivedAt:       now,
		UpdatedAt:        now,
	})
	if err != nil {
		var conflict apperr.ConflictError
		if errors.As(err, &conflict) && conflict.Code == "DUPLICATE_PROVIDER_REF" {
			log.FromContext(ctx).Infof("transaction for provider_ref %s already recorded concurrently, ignoring", log.RedactID(payload.ProviderReference))
			return nil, nil
		}

		return nil, err
	}

	return txn, nil
}

// settlePaymentRequest transitions pr to SUCCEEDED, credits the wallet,
// posts the ledger entry and — for a DEPOSIT or a just-completed DAILY
// cycle — triggers the issuance planner. The Transaction rides along:
// created PROCESSING, moved to COMPLETED only once every side effect
// has committed, so exactly one COMPLETED Transaction exists per
// settled request.
func (uc *UseCase) settlePaymentRequest(ctx context.Context, pr *payment.PaymentRequest, payload mobilemoney.CallbackPayload) error {
	if !payment.CanTransition(pr.Status, payment.StatusSucceeded) {
		log.FromContext(ctx).Warnf("payment request %s: ignoring settle from terminal state %s", log.RedactID(pr.ID.String()), pr.Status)
		return nil
	}

	txn, err := uc.recordTransaction(ctx, pr, payload, payment.TransactionProcessing)
	if err != nil {
		return err
	}

	if txn == nil {
		return nil
	}

	updated, err := uc.PaymentRepo.Transition(ctx, pr.ID, pr.Version, payment.StatusSucceeded, pr.ProviderReference, time.Now().UTC())
	if err != nil {
		if apperr.IsRetryableConflict(err) {
			// another worker already observed this transition; the at-most-once
			// invariant is preserved by the provider_ref uniqueness above, so
			// this is safe to treat as already-handled.
			return nil
		}

		return err
	}

	switch updated.Kind {
	case payment.KindDeposit:
		err = uc.creditDeposit(ctx, updated, txn)
	case payment.KindDaily:
		err = uc.creditDailyPayment(ctx, updated, txn)
	}

	if err != nil {
		return err
	}

	if _, err := uc.TransactionRepo.Transition(ctx, txn.ID, payment.TransactionCompleted, time.Now().UTC()); err != nil {
		log.FromContext(ctx).Errorf("failed to complete transaction %s: %v", log.RedactID(txn.ID.String()), err)
		return err
	}

	return nil
}

// failPaymentRequest records the terminal failure or cancellation fact
// and notifies the rider.
func (uc *UseCase) failPaymentRequest(ctx context.Context, pr *payment.PaymentRequest, payload mobilemoney.CallbackPayload, to payment.Status, txnStatus payment.TransactionStatus) error {
	txn, err := uc.recordTransaction(ctx, pr, payload, txnStatus)
	if err != nil {
		return err
	}

	if txn == nil {
		return nil
	}

	failed, err := uc.PaymentRepo.Transition(ctx, pr.ID, pr.Version, to, pr.ProviderReference, time.Now().UTC())
	if err != nil {
		return err
	}

	uc.notifyPaymentFailed(ctx, failed)

	return nil
}

// notifyPaymentFailed sends the PAYMENT_FAILED notification.
// Best-effort: a rider lookup or delivery failure is logged and
// swallowed, never failing the callback that already recorded the
// terminal transition.
func (uc *UseCase) notifyPaymentFailed(ctx context.Context, pr *payment.PaymentRequest) {
	if uc.Notifier.SMSPrimary == nil {
		return
	}

	r, err := uc.RiderRepo.Find(ctx, pr.RiderID)
	if err != nil {
		log.FromContext(ctx).Warnf("failed to look up rider %s for payment-failed notice: %v", log.RedactID(pr.RiderID.String()), err)
		return
	}

	_, err = uc.SendNotification(ctx, pr.RiderID, notification.ChannelSMS, notification.TemplatePaymentFailed,
		RiderContact{PhoneE164: r.Phone}, map[string]string{
			"amount": pr.Amount.Display(),
		}, notification.PriorityRoutine, nil)
	if err != nil {
		log.FromContext(ctx).Warnf("failed to send payment-failed notification for payment request %s: %v", log.RedactID(pr.ID.String()), err)
	}
}
