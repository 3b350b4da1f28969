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

// InitiateDepositInput carries the request to start a rider's one-time
// deposit.
type InitiateDepositInput struct {
	RiderID        string
	WalletID       string
	IdempotencyKey string
	Phone          string // already normalized E.164
}

// InitiateDeposit starts a DEPOSIT PaymentRequest: it validates the KYC
// gate, dedups on idempotency key, and pushes the provider request
//.
func (uc *UseCase) InitiateDeposit(ctx context.Context, in InitiateDepositInput) (*payment.PaymentRequest, error) {
	logger := log.FromContext(ctx)
	tracer := otel.FromContext(ctx)

	ctx, span := tracer.Start(ctx, "command.initiate_deposit")
	defer span.End()

	riderID, err := parseUUID(in.RiderID)
	if err != nil {
		return nil, apperr.ValidationError{EntityType: "Rider", Message: "invalid rider id", Err: err}
	}

	walletID, err := parseUUID(in.WalletID)
	if err != nil {
		return nil, apperr.ValidationError{EntityType: "Wallet", Message: "invalid wallet id", Err: err}
	}

	r, err := uc.RiderRepo.Find(ctx, riderID)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find rider", err)
		return nil, err
	}

	if !r.CanInitiateDeposit() {
		return nil, apperr.ValidateBusinessError(apperr.ErrKYCNotApproved, "Rider")
	}

	ok, err := uc.IdempotencyLocks.TryLock(ctx, in.RiderID, in.IdempotencyKey)
	if err != nil {
		logger.Warnf("idempotency lock unavailable, falling through to db dedup: %v", err)
	} else if !ok {
		existing, findErr := uc.PaymentRepo.FindByIdempotencyKey(ctx, riderID, in.IdempotencyKey)
		if findErr == nil {
			return existing, nil
		}

		return nil, apperr.ConflictError{
			EntityType: "PaymentRequest",
			Code:       "DUPLICATE_IN_FLIGHT",
			Retryable:  false,
		}
	}
	defer uc.IdempotencyLocks.Release(ctx, in.RiderID, in.IdempotencyKey) //nolint:errcheck

	if existing, err := uc.PaymentRepo.FindByIdempotencyKey(ctx, riderID, in.IdempotencyKey); err == nil {
		return existing, nil
	} else if !isNotFound(err) {
		otel.HandleSpanError(&span, "failed to check idempotency key", err)
		return nil, err
	}

	amount := money.Minor(uc.Constants.DepositAmountMinor)

	pr := &payment.PaymentRequest{
		ID:             idgen.New(),
		RiderID:        riderID,
		WalletID:       walletID,
		Kind:           payment.KindDeposit,
		Amount:         amount,
		IdempotencyKey: in.IdempotencyKey,
		Status:         payment.StatusCreated,
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

func isNotFound(err error) bool {
	var nf apperr.NotFoundError
	return errors.As(err, &nf)
}
