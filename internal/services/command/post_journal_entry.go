// File post_journal_entry.go is the ledger poster's contract table:
// which GL accounts each business event debits and credits.
package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/domain/ledger"
	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/pkg/idgen"
	"github.com/bodaboda-insure/core/pkg/money"
)

// GL account codes referenced by the ledger poster contracts below.
// The chart of accounts itself is seed data (migrations), not
// application code; these codes are the contract between this package
// and that seed.
const (
	GLAccountCashClearing = "1000-CASH-CLEARING"

	// GLAccountWalletLiability is the premium-payable-to-underwriter
	// liability: a deposit or daily payment credits it, and it is not
	// cleared into income until the funded policy actually activates
	//.
	GLAccountWalletLiability = "2000-WALLET-LIABILITY"

	// GLAccountPremiumIncomeUnderwriter/GLAccountPremiumIncomePlatform
	// are the two income accounts premium recognition splits into per
	// the configured commission.
	GLAccountPremiumIncomeUnderwriter = "4000-PREMIUM-INCOME-UNDERWRITER"
	GLAccountPremiumIncomePlatform    = "4100-PREMIUM-INCOME-PLATFORM"

	// GLAccountCashOperating is the operating bank account partner
	// settlements pay out of escrow into; distinct from the clearing
	// account rider money lands in.
	GLAccountCashOperating = "1100-CASH-OPERATING"
)

// splitPremium divides a gross premium amount into the underwriter and
// platform shares per the configured commission. The
// platform share is computed as an exact fraction and the underwriter
// share is the remainder, so the two always sum back to gross with no
// rounding leak against the trial-balance invariant.
func (uc *UseCase) splitPremium(gross money.Minor) (underwriterShare, platformShare money.Minor) {
	platformShare = gross.Fraction(uc.Constants.CommissionPlatformNumerator, uc.Constants.CommissionPlatformDenominator)
	underwriterShare = gross.Sub(platformShare)

	return underwriterShare, platformShare
}

// postDepositJournalEntry records the DEPOSIT_RECEIVED entry: debit
// cash clearing, credit the rider's premium-payable liability.
func (uc *UseCase) postDepositJournalEntry(ctx context.Context, pr *payment.PaymentRequest) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.post_deposit_journal_entry")
	defer span.End()

	cash, err := uc.AccountRepo.FindByCode(ctx, GLAccountCashClearing)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find cash clearing account", err)
		return err
	}

	walletLiability, err := uc.AccountRepo.FindByCode(ctx, GLAccountWalletLiability)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find wallet liability account", err)
		return err
	}

	entry := &ledger.JournalEntry{
		ID:          idgen.New(),
		Kind:        ledger.EntryDepositReceived,
		ReferenceID: pr.ID,
		PostedAt:    time.Now().UTC(),
		Lines: []ledger.Line{
			{ID: idgen.New(), AccountID: cash.ID, Side: ledger.SideDebit, Amount: pr.Amount},
			{ID: idgen.New(), AccountID: walletLiability.ID, Side: ledger.SideCredit, Amount: pr.Amount},
		},
	}

	_, err = uc.LedgerRepo.Post(ctx, entry)
	if err != nil {
		otel.HandleSpanError(&span, "failed to post journal entry", err)
		return err
	}

	return nil
}

// postDailyPaymentJournalEntry records the DAILY_PAYMENT_RECEIVED
// entry: debit cash clearing, credit the rider's premium-payable
// liability. Like a deposit, a daily payment never recognizes
// revenue by itself — premium is only earned once the policy the
// completed cycle funds actually activates.
func (uc *UseCase) postDailyPaymentJournalEntry(ctx context.Context, pr *payment.PaymentRequest) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.post_daily_payment_journal_entry")
	defer span.End()

	cash, err := uc.AccountRepo.FindByCode(ctx, GLAccountCashClearing)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find cash clearing account", err)
		return err
	}

	walletLiability, err := uc.AccountRepo.FindByCode(ctx, GLAccountWalletLiability)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find wallet liability account", err)
		return err
	}

	cashEntry := &ledger.JournalEntry{
		ID:          idgen.New(),
		Kind:        ledger.EntryDailyReceived,
		ReferenceID: pr.ID,
		PostedAt:    time.Now().UTC(),
		Lines: []ledger.Line{
			{ID: idgen.New(), AccountID: cash.ID, Side: ledger.SideDebit, Amount: pr.Amount},
			{ID: idgen.New(), AccountID: walletLiability.ID, Side: ledger.SideCredit, Amount: pr.Amount},
		},
	}

	if _, err := uc.LedgerRepo.Post(ctx, cashEntry); err != nil {
		otel.HandleSpanError(&span, "failed to post daily-received journal entry", err)
		return err
	}

	return nil
}

// postPolicyActivationJournalEntry records the PREMIUM_RECOGNIZED entry
// at batch activation time: debit the
// premium-payable liability for the policy's full gross premium,
// credit the underwriter and platform income accounts per the
// configured commission split.
func (uc *UseCase) postPolicyActivationJournalEntry(ctx context.Context, policyID uuid.UUID, gross money.Minor) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.post_policy_activation_journal_entry")
	defer span.End()

	walletLiability, err := uc.AccountRepo.FindByCode(ctx, GLAccountWalletLiability)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find wallet liability account", err)
		return err
	}

	underwriterIncome, err := uc.AccountRepo.FindByCode(ctx, GLAccountPremiumIncomeUnderwriter)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find underwriter income account", err)
		return err
	}

	platformIncome, err := uc.AccountRepo.FindByCode(ctx, GLAccountPremiumIncomePlatform)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find platform income account", err)
		return err
	}

	underwriterShare, platformShare := uc.splitPremium(gross)

	entry := &ledger.JournalEntry{
		ID:          idgen.New(),
		Kind:        ledger.EntryPremiumRecognized,
		ReferenceID: policyID,
		PostedAt:    time.Now().UTC(),
		Lines: []ledger.Line{
			{ID: idgen.New(), AccountID: walletLiability.ID, Side: ledger.SideDebit, Amount: gross},
			{ID: idgen.New(), AccountID: underwriterIncome.ID, Side: ledger.SideCredit, Amount: underwriterShare},
			{ID: idgen.New(), AccountID: platformIncome.ID, Side: ledger.SideCredit, Amount: platformShare},
		},
	}

	if _, err := uc.LedgerRepo.Post(ctx, entry); err != nil {
		otel.HandleSpanError(&span, "failed to post policy activation journal entry", err)
		return err
	}

	return nil
}

// postReversalJournalEntry records a REVERSAL entry for a cancelled
// policy's refund, net of the reversal fee. By the
// time a policy can be cancelled it has already activated, so its
// premium was already recognized as split income at that point
// (postPolicyActivationJournalEntry); this entry reverses that split
// back out of income and refunds cash net of the fee, which it credits
// to the platform income account rather than refunding.
func (uc *UseCase) postReversalJournalEntry(ctx context.Context, referenceID uuid.UUID, grossAmount, feeAmount money.Minor) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.post_reversal_journal_entry")
	defer span.End()

	cash, err := uc.AccountRepo.FindByCode(ctx, GLAccountCashClearing)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find cash clearing account", err)
		return err
	}

	underwriterIncome, err := uc.AccountRepo.FindByCode(ctx, GLAccountPremiumIncomeUnderwriter)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find underwriter income account", err)
		return err
	}

	platformIncome, err := uc.AccountRepo.FindByCode(ctx, GLAccountPremiumIncomePlatform)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find platform income account", err)
		return err
	}

	underwriterShare, platformShare := uc.splitPremium(grossAmount)
	refund := grossAmount.Sub(feeAmount)

	lines := []ledger.Line{
		{ID: idgen.New(), AccountID: underwriterIncome.ID, Side: ledger.SideDebit, Amount: underwriterShare},
		{ID: idgen.New(), AccountID: platformIncome.ID, Side: ledger.SideDebit, Amount: platformShare},
		{ID: idgen.New(), AccountID: cash.ID, Side: ledger.SideCredit, Amount: refund},
		{ID: idgen.New(), AccountID: platformIncome.ID, Side: ledger.SideCredit, Amount: feeAmount},
	}

	entry := &ledger.JournalEntry{
		ID:          idgen.New(),
		Kind:        ledger.EntryReversal,
		ReferenceID: referenceID,
		PostedAt:    time.Now().UTC(),
		Lines:       lines,
	}

	_, err = uc.LedgerRepo.Post(ctx, entry)
	if err != nil {
		otel.HandleSpanError(&span, "failed to post reversal journal entry", err)
		return err
	}

	return nil
}
