package command

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodaboda-insure/core/internal/domain/ledger"
	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/internal/domain/refund"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/pkg/idgen"
	"github.com/bodaboda-insure/core/pkg/money"
)

func newCancelTestUseCase(p *policy.Policy) (*UseCase, *fakePolicyRepo, *fakeLedgerRepo, *fakeRefundRepo) {
	policies := newFakePolicyRepo()
	policies.rows[p.ID] = p

	ledgerRepo := newFakeLedgerRepo()
	refunds := newFakeRefundRepo()

	return &UseCase{
		PolicyRepo:  policies,
		LedgerRepo:  ledgerRepo,
		AccountRepo: newFakeAccountRepo(),
		RefundRepo:  refunds,
		Constants: Constants{
			CommissionPlatformNumerator:   20,
			CommissionPlatformDenominator: 100,
		},
	}, policies, ledgerRepo, refunds
}

// sumLines totals every line in lines posted to accountID on side.
func sumLines(lines []ledger.Line, accountID uuid.UUID, side ledger.Side) money.Minor {
	var total money.Minor

	for _, l := range lines {
		if l.AccountID == accountID && l.Side == side {
			total = total.Add(l.Amount)
		}
	}

	return total
}

func TestCancelPolicy_WithinFreeLookSucceedsAndNetsFee(t *testing.T) {
	now := time.Now().UTC()

	p := &policy.Policy{
		ID:             idgen.New(),
		RiderID:        idgen.New(),
		Type:           policy.TypeOneMonth,
		Status:         policy.StatusActive,
		PremiumAmount:  money.Minor(104800),
		EffectiveDate:  now.AddDate(0, 0, -5),
		FreeLookEndsAt: now.AddDate(0, 0, 25),
		Version:        1,
	}

	uc, policies, ledgerRepo, refunds := newCancelTestUseCase(p)

	cancelled, err := uc.CancelPolicy(context.Background(), p.ID, "changed mind")
	require.NoError(t, err)
	assert.Equal(t, policy.StatusCancelled, cancelled.Status)

	stored, err := policies.Find(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.StatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)

	entries, err := ledgerRepo.FindByReference(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryReversal, entries[0].Kind)
	assert.True(t, entries[0].Balanced())

	cashID := mustAccount(t, uc, GLAccountCashClearing).ID
	platformID := mustAccount(t, uc, GLAccountPremiumIncomePlatform).ID
	underwriterID := mustAccount(t, uc, GLAccountPremiumIncomeUnderwriter).ID

	wantFee := p.PremiumAmount.Fraction(10, 100)
	wantRefund := p.PremiumAmount.Sub(wantFee)
	wantUnderwriterShare, wantPlatformShare := uc.splitPremium(p.PremiumAmount)

	assert.Equal(t, wantRefund, sumLines(entries[0].Lines, cashID, ledger.SideCredit), "refund must be gross premium minus the reversal fee")
	assert.Equal(t, wantFee, sumLines(entries[0].Lines, platformID, ledger.SideCredit), "reversal fee must be credited to platform income")
	assert.Equal(t, wantUnderwriterShare, sumLines(entries[0].Lines, underwriterID, ledger.SideDebit), "reversal must reverse the underwriter's recognized share")
	assert.Equal(t, wantPlatformShare, sumLines(entries[0].Lines, platformID, ledger.SideDebit), "reversal must reverse the platform's recognized share")

	rr, err := refunds.FindByPolicyID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, refund.StatusPending, rr.Status)
	assert.Equal(t, wantRefund, rr.RefundAmount)
	assert.Equal(t, wantFee, rr.ReversalFee)
	assert.Equal(t, "changed mind", rr.Reason)
}

func mustAccount(t *testing.T, uc *UseCase, code string) *ledger.GLAccount {
	t.Helper()

	a, err := uc.AccountRepo.FindByCode(context.Background(), code)
	require.NoError(t, err)

	return a
}

func TestCancelPolicy_AfterFreeLookIsRejected(t *testing.T) {
	now := time.Now().UTC()

	p := &policy.Policy{
		ID:             idgen.New(),
		RiderID:        idgen.New(),
		Type:           policy.TypeOneMonth,
		Status:         policy.StatusActive,
		PremiumAmount:  money.Minor(104800),
		EffectiveDate:  now.AddDate(0, 0, -40),
		FreeLookEndsAt: now.AddDate(0, 0, -10),
		Version:        1,
	}

	uc, _, _, _ := newCancelTestUseCase(p)

	_, err := uc.CancelPolicy(context.Background(), p.ID, "changed mind")
	require.Error(t, err)

	var pf apperr.PreconditionFailedError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, apperr.ErrFreeLookExpired.Error(), pf.Code)
}

func TestCancelPolicy_NonActiveIsRejected(t *testing.T) {
	p := &policy.Policy{
		ID:      idgen.New(),
		RiderID: idgen.New(),
		Type:    policy.TypeOneMonth,
		Status:  policy.StatusPendingIssuance,
		Version: 1,
	}

	uc, _, _, _ := newCancelTestUseCase(p)

	_, err := uc.CancelPolicy(context.Background(), p.ID, "")
	require.Error(t, err)

	var pf apperr.PreconditionFailedError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, apperr.ErrPolicyNotCancellable.Error(), pf.Code)
}
