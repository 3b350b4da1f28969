package command

import (
	"context"
	"errors"
	"time"

	"github.com/bodaboda-insure/core/internal/adapters/providers/mobilemoney"
	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/pkg/idgen"
	"github.com/bodaboda-insure/core/pkg/money"
)

// InitiateDailyPaymentInput carries the request to start one of a
// rider's recurring daily payments. DaysCount lets a
// rider catch up on more than one day in a single payment, bounded by
// the wallet's remaining days.
type InitiateDailyPaymentInput struct {
	RiderID        string
	WalletID       string
	IdempotencyKey string
	Phone          string
	DaysCount      int
}

// InitiateDailyPayment starts a DAILY PaymentRequest, gated on the
// wallet having already completed its deposit and not yet completed
// its daily cycle.
func (uc *UseCase) InitiateDailyPayment(ctx context.Context, in InitiateDailyPaymentInput) (*payment.PaymentRequest, error) {
	logger := log.FromContext(ctx)
	tracer := otel.FromContext(ctx)

	ctx, span := tracer.Start(ctx, "command.initiate_daily_payment")
	defer span.End()

	if in.DaysCount < 1 {
		return nil, apperr.ValidateBusinessError(apperr.ErrInvalidDaysCount, "PaymentRequest")
	}

	riderID, err := parseUUID(in.RiderID)
	if err != nil {
		return nil, apperr.ValidationError{EntityType: "Rider", Message: "invalid rider id", Err: err}
	}

	walletID, err := parseUUID(in.WalletID)
	if err != nil {
		return nil, apperr.ValidationError{EntityType: "Wallet", Message: "invalid wallet id", Err: err}
	}

	w, err := uc.WalletRepo.Find(ctx, walletID)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find wallet", err)
		return nil, err
	}

	if !w.DepositCompleted {
		return nil, apperr.ValidateBusinessError(apperr.ErrKYCNotApproved, "Wallet")
	}

	if w.DailyPaymentsCompleted {
		return nil, apperr.ValidateBusinessError(apperr.ErrDailyCycleAlreadyComplete, "Wallet")
	}

	remaining := uc.Constants.DaysRequired - w.DailyPaymentsCount
	if in.DaysCount > remaining {
		return nil, apperr.ValidateBusinessError(apperr.ErrDailyPaymentExceedsCap, "Wallet")
	}

	ok, err := uc.IdempotencyLocks.TryLock(ctx, in.RiderID, in.IdempotencyKey)
	if err != nil {
		logger.Warnf("idempotency lock unavailable, falling through to db dedup: %v", err)
	} else if !ok {
		existing, findErr := uc.PaymentRepo.FindByIdempotencyKey(ctx, riderID, in.IdempotencyKey)
		if findErr == nil {
			return existing, nil
		}

		return nil, apperr.ConflictError{EntityType: "PaymentRequest", Code: "DUPLICATE_IN_FLIGHT", Retryable: false}
	}
	defer uc.IdempotencyLocks.Release(ctx, in.RiderID, in.IdempotencyKey) //nolint:errcheck

	if existing, err := uc.PaymentRepo.FindByIdempotencyKey(ctx, riderID, in.IdempotencyKey); err == nil {
		return existing, nil
	} else {
		var nf apperr.NotFoundError
		if !errors.As(err, &nf) {
			otel.HandleSpanError(&span, "failed to check idempotency key", err)
			return nil, err
		}
	}

	amount := money.Minor(uc.Constants.DailyAmountMinor).Mul(int64(in.DaysCount))

	pr := &payment.PaymentRequest{
		ID:             idgen.New(),
		RiderID:        riderID,
		WalletID:       walletID,
		Kind:           payment.KindDaily,
		Amount:         amount,
		IdempotencyKey: in.IdempotencyKey,
		Status:         payment.StatusCreated,
		DaysCount:      in.DaysCount,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	created, err := uc.PaymentRepo.Create(ctx, pr)
	if err != nil {
		otel.HandleSpanError(&span, "failed to create payment request", err)
		return nil, err
	}

	result, err := uc.MobileMoney.RequestPayment(ctx, in.Phone, amount, in.IdempotencyKey)
	if err != nil {
		logger.Errorf("mobile money request failed for payment request %s: %v", log.RedactID(created.ID.String()), err)

		failed, transErr := uc.PaymentRepo.Transition(ctx, created.ID, created.Version, payment.StatusFailed, "", time.Now().UTC())
		if transErr != nil {
			return nil, transErr
		}

		return failed, nil
	}

	next := payment.StatusPending
	if result.Status == mobilemoney.RequestRejected {
		// the provider never accepted the push at all — a synchronous
		// rejection, distinct from an accepted push that later fails or
		// times out.
		next = payment.StatusExpired
	}

	updated, err := uc.PaymentRepo.Transition(ctx, created.ID, created.Version, next, result.ProviderReference, time.Now().UTC())
	if err != nil {
		otel.HandleSpanError(&span, "failed to transition payment request", err)
		return nil, err
	}

	if next == payment.StatusPending {
		uc.enqueueReconcile(ctx, updated.ID.String())
	}

	return updated, nil
}
