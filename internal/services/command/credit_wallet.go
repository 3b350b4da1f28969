package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/pkg/money"
)

// maxOptimisticRetries bounds the number of times a caller retries a
// CAS update after a version conflict before giving up. Contention on a
// single wallet row is expected to be rare and short-lived, not a
// reason to retry forever.
const maxOptimisticRetries = 5

// creditDeposit applies the DEPOSIT_COMPLETED wallet mutation and posts
// the corresponding journal entry. txn is the settled-fact row the
// callback recorded; a planned policy is linked back onto it.
func (uc *UseCase) creditDeposit(ctx context.Context, pr *payment.PaymentRequest, txn *payment.Transaction) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.credit_deposit")
	defer span.End()

	now := time.Now().UTC()

	var updatedVersion int64
	var depositJustCompleted bool

	for attempt := 0; attempt < maxOptimisticRetries; attempt++ {
		w, err := uc.WalletRepo.Find(ctx, pr.WalletID)
		if err != nil {
			otel.HandleSpanError(&span, "failed to find wallet", err)
			return err
		}

		wasCompleted := w.DepositCompleted

		updated, err := uc.WalletRepo.CreditDeposit(ctx, pr.WalletID, w.Version, pr.Amount, money.Minor(uc.Constants.DepositAmountMinor), now)
		if err != nil {
			if apperr.IsRetryableConflict(err) {
				continue
			}

			otel.HandleSpanError(&span, "failed to credit deposit", err)
			return err
		}

		updatedVersion = updated.Version
		depositJustCompleted = !wasCompleted && updated.DepositCompleted

		break
	}

	if updatedVersion == 0 {
		return apperr.ConflictError{EntityType: "Wallet", Code: "VERSION_CONFLICT", Retryable: false}
	}

	if err := uc.postDepositJournalEntry(ctx, pr); err != nil {
		log.FromContext(ctx).Errorf("failed to post journal entry for deposit %s: %v", log.RedactID(pr.ID.String()), err)
		return err
	}

	if depositJustCompleted {
		premium := money.Minor(uc.Constants.DepositAmountMinor)

		planned, err := uc.PlanIssuance(ctx, pr.RiderID, policy.TypeOneMonth, premium, txn.ID)
		if err != nil {
			log.FromContext(ctx).Errorf("issuance planning failed for rider %s: %v", log.RedactID(pr.RiderID.String()), err)
			return err
		}

		uc.linkTransactionPolicy(ctx, txn.ID, planned)
	}

	return nil
}

// creditDailyPayment applies the recurring-payment wallet mutation and
// posts the corresponding journal entry. A
// just-completed 30th daily payment plans the ELEVEN_MONTH policy the
// cycle funds, chained to the rider's ONE_MONTH policy.
func (uc *UseCase) creditDailyPayment(ctx context.Context, pr *payment.PaymentRequest, txn *payment.Transaction) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.credit_daily_payment")
	defer span.End()

	now := time.Now().UTC()

	var credited bool
	var cycleJustCompleted bool

	for attempt := 0; attempt < maxOptimisticRetries; attempt++ {
		w, err := uc.WalletRepo.Find(ctx, pr.WalletID)
		if err != nil {
			otel.HandleSpanError(&span, "failed to find wallet", err)
			return err
		}

		wasCompleted := w.DailyPaymentsCompleted

		updated, err := uc.WalletRepo.CreditDailyPayment(ctx, pr.WalletID, w.Version, pr.Amount, pr.DaysCount, uc.Constants.DaysRequired, now)
		if err != nil {
			if apperr.IsRetryableConflict(err) {
				continue
			}

			otel.HandleSpanError(&span, "failed to credit daily payment", err)
			return err
		}

		credited = true
		cycleJustCompleted = !wasCompleted && updated.DailyPaymentsCompleted

		break
	}

	if !credited {
		return apperr.ConflictError{EntityType: "Wallet", Code: "VERSION_CONFLICT", Retryable: false}
	}

	if err := uc.postDailyPaymentJournalEntry(ctx, pr); err != nil {
		log.FromContext(ctx).Errorf("failed to post journal entry for daily payment %s: %v", log.RedactID(pr.ID.String()), err)
		return err
	}

	if cycleJustCompleted {
		premium := money.Minor(int64(uc.Constants.DaysRequired) * uc.Constants.DailyAmountMinor)

		planned, err := uc.PlanIssuance(ctx, pr.RiderID, policy.TypeEleven, premium, txn.ID)
		if err != nil {
			log.FromContext(ctx).Errorf("issuance planning failed for rider %s: %v", log.RedactID(pr.RiderID.String()), err)
			return err
		}

		uc.linkTransactionPolicy(ctx, txn.ID, planned)
	}

	return nil
}

// linkTransactionPolicy records the weak transaction -> policy
// reference. Best-effort: the policy itself already carries the strong
// triggering_transaction_id link, so a failure here is logged, not
// fatal.
func (uc *UseCase) linkTransactionPolicy(ctx context.Context, txnID uuid.UUID, p *policy.Policy) {
	if p == nil {
		return
	}

	if err := uc.TransactionRepo.LinkPolicy(ctx, txnID, p.ID); err != nil {
		log.FromContext(ctx).Warnf("failed to link policy %s to transaction %s: %v", log.RedactID(p.ID.String()), log.RedactID(txnID.String()), err)
	}
}
