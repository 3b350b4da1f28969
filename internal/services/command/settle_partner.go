package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/domain/ledger"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/pkg/idgen"
	"github.com/bodaboda-insure/core/pkg/money"
)

// SettlePartner records a payout of collected premium from escrow to
// the underwriter's operating account: debit the premium payable built
// up by settled payments, credit operating cash. referenceID tags the
// entry with the finance-side settlement run it belongs to.
func (uc *UseCase) SettlePartner(ctx context.Context, referenceID uuid.UUID, amount money.Minor) (*ledger.JournalEntry, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.settle_partner")
	defer span.End()

	if amount <= 0 {
		return nil, apperr.ValidationError{
			EntityType: "PartnerSettlement",
			Message:    "settlement amount must be positive",
		}
	}

	payable, err := uc.AccountRepo.FindByCode(ctx, GLAccountWalletLiability)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find premium payable account", err)
		return nil, err
	}

	operating, err := uc.AccountRepo.FindByCode(ctx, GLAccountCashOperating)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find operating cash account", err)
		return nil, err
	}

	entry := &ledger.JournalEntry{
		ID:          idgen.New(),
		Kind:        ledger.EntryPartnerSettlement,
		ReferenceID: referenceID,
		PostedAt:    time.Now().UTC(),
		Lines: []ledger.Line{
			{ID: idgen.New(), AccountID: payable.ID, Side: ledger.SideDebit, Amount: amount},
			{ID: idgen.New(), AccountID: operating.ID, Side: ledger.SideCredit, Amount: amount},
		},
	}

	posted, err := uc.LedgerRepo.Post(ctx, entry)
	if err != nil {
		otel.HandleSpanError(&span, "failed to post partner settlement entry", err)
		return nil, err
	}

	return posted, nil
}
