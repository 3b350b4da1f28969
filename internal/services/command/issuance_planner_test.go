package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/pkg/idgen"
	"github.com/bodaboda-insure/core/pkg/money"
)

func newTestUseCase() (*UseCase, *fakePolicyRepo) {
	policies := newFakePolicyRepo()

	return &UseCase{
		PolicyRepo: policies,
	}, policies
}

func TestPlanIssuance_CreatesOneMonthPolicy(t *testing.T) {
	uc, policies := newTestUseCase()

	riderID := idgen.New()
	triggeringTxID := idgen.New()

	created, err := uc.PlanIssuance(context.Background(), riderID, policy.TypeOneMonth, money.Minor(104800), triggeringTxID)
	require.NoError(t, err)
	require.NotNil(t, created)

	all, err := policies.FindByRiderID(context.Background(), riderID)
	require.NoError(t, err)
	require.Len(t, all, 1)

	assert.Equal(t, policy.TypeOneMonth, all[0].Type)
	assert.Equal(t, policy.StatusPendingIssuance, all[0].Status)
	assert.Equal(t, money.Minor(104800), all[0].PremiumAmount)
	assert.Nil(t, all[0].PreviousPolicyID)
}

func TestPlanIssuance_IsIdempotentOnTriggeringTransaction(t *testing.T) {
	uc, policies := newTestUseCase()

	riderID := idgen.New()
	triggeringTxID := idgen.New()

	first, err := uc.PlanIssuance(context.Background(), riderID, policy.TypeOneMonth, money.Minor(104800), triggeringTxID)
	require.NoError(t, err)

	second, err := uc.PlanIssuance(context.Background(), riderID, policy.TypeOneMonth, money.Minor(104800), triggeringTxID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "the repeated event must return the already-planned policy")

	all, err := policies.FindByRiderID(context.Background(), riderID)
	require.NoError(t, err)
	assert.Len(t, all, 1, "a repeated event for the same triggering transaction must not create a second policy")
}

func TestPlanIssuance_ElevenMonthChainsToOneMonthPolicy(t *testing.T) {
	uc, policies := newTestUseCase()

	riderID := idgen.New()
	depositTxID := idgen.New()
	cycleTxID := idgen.New()

	_, err := uc.PlanIssuance(context.Background(), riderID, policy.TypeOneMonth, money.Minor(104800), depositTxID)
	require.NoError(t, err)

	oneMonth, err := policies.FindByTriggeringTransactionID(context.Background(), depositTxID)
	require.NoError(t, err)

	_, err = uc.PlanIssuance(context.Background(), riderID, policy.TypeEleven, money.Minor(30*8700), cycleTxID)
	require.NoError(t, err)

	eleven, err := policies.FindByTriggeringTransactionID(context.Background(), cycleTxID)
	require.NoError(t, err)

	assert.Equal(t, policy.TypeEleven, eleven.Type)
	require.NotNil(t, eleven.PreviousPolicyID)
	assert.Equal(t, oneMonth.ID, *eleven.PreviousPolicyID)

	updatedOneMonth, err := policies.Find(context.Background(), oneMonth.ID)
	require.NoError(t, err)
	require.NotNil(t, updatedOneMonth.NextPolicyID)
	assert.Equal(t, eleven.ID, *updatedOneMonth.NextPolicyID)
}

func TestPlanIssuance_ElevenMonthWithoutPriorOneMonthHasNoChain(t *testing.T) {
	uc, _ := newTestUseCase()

	riderID := idgen.New()

	created, err := uc.PlanIssuance(context.Background(), riderID, policy.TypeEleven, money.Minor(30*8700), idgen.New())
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Nil(t, created.PreviousPolicyID)
}
