package query

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/pkg/money"
)

// TrialBalance is the per-account snapshot served by the trial-balance
// HTTP route: every GL account's
// code/name next to its summed balance as of the query time.
type TrialBalance struct {
	AsOf     time.Time
	Accounts []TrialBalanceLine
}

// TrialBalanceLine is one GL account's balance within a TrialBalance.
type TrialBalanceLine struct {
	AccountID uuid.UUID
	Code      string
	Name      string
	Balance   money.Minor
}

// GetTrialBalance sums every ledger line by account as of asOf,
// annotated with each account's chart-of-accounts code/name.
func (uc *UseCase) GetTrialBalance(ctx context.Context, asOf time.Time) (*TrialBalance, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "query.get_trial_balance")
	defer span.End()

	sums, err := uc.LedgerRepo.TrialBalance(ctx, asOf)
	if err != nil {
		otel.HandleSpanError(&span, "failed to compute trial balance", err)
		return nil, err
	}

	accounts, err := uc.AccountRepo.List(ctx)
	if err != nil {
		otel.HandleSpanError(&span, "failed to list GL accounts", err)
		return nil, err
	}

	lines := make([]TrialBalanceLine, 0, len(accounts))

	for _, a := range accounts {
		lines = append(lines, TrialBalanceLine{
			AccountID: a.ID,
			Code:      a.Code,
			Name:      a.Name,
			Balance:   sums[a.ID],
		})
	}

	return &TrialBalance{AsOf: asOf, Accounts: lines}, nil
}
