package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodaboda-insure/core/internal/constant"
	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/pkg/idgen"
	"github.com/bodaboda-insure/core/pkg/money"
)

// recordingUnderwriter captures every record hand-off so tests can
// assert what the insurer would have received.
type recordingUnderwriter struct {
	batchNumbers []string
	records      []UnderwriterRecord
}

func (u *recordingUnderwriter) SubmitRecords(_ context.Context, batchNumber string, records []UnderwriterRecord) error {
	u.batchNumbers = append(u.batchNumbers, batchNumber)
	u.records = append(u.records, records...)

	return nil
}

func newBatchTestUseCase() (*UseCase, *fakePolicyRepo, *fakeBatchRepo) {
	policies := newFakePolicyRepo()
	batches := newFakeBatchRepo()

	return &UseCase{
		PolicyRepo:  policies,
		BatchRepo:   batches,
		LedgerRepo:  newFakeLedgerRepo(),
		AccountRepo: newFakeAccountRepo(),
		Constants: Constants{
			MaxBatchRetries:               3,
			CommissionPlatformNumerator:   20,
			CommissionPlatformDenominator: 100,
		},
	}, policies, batches
}

func TestProcessBatch_OneMonthPolicyGetsOneMonthCoverage(t *testing.T) {
	uc, policies, _ := newBatchTestUseCase()

	riderID := idgen.New()
	_, err := uc.PlanIssuance(context.Background(), riderID, policy.TypeOneMonth, money.Minor(104800), idgen.New())
	require.NoError(t, err)

	windowStart := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	batch, err := uc.ProcessBatch(context.Background(), &recordingUnderwriter{}, string(constant.Batch1), windowStart)
	require.NoError(t, err)
	assert.Equal(t, policy.BatchCompleted, batch.Status)

	all, err := policies.FindByRiderID(context.Background(), riderID)
	require.NoError(t, err)
	require.Len(t, all, 1)

	p := all[0]
	assert.Equal(t, policy.StatusActive, p.Status)
	assert.Equal(t, windowStart, p.EffectiveDate)
	assert.Equal(t, windowStart.AddDate(0, 1, 0), p.ExpiryDate)
	assert.Equal(t, windowStart.AddDate(0, 0, constant.FreeLookDays), p.FreeLookEndsAt)
}

func TestProcessBatch_ElevenMonthPolicyGetsElevenMonthCoverage(t *testing.T) {
	uc, policies, _ := newBatchTestUseCase()

	riderID := idgen.New()
	_, err := uc.PlanIssuance(context.Background(), riderID, policy.TypeEleven, money.Minor(30*8700), idgen.New())
	require.NoError(t, err)

	windowStart := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	_, err = uc.ProcessBatch(context.Background(), &recordingUnderwriter{}, string(constant.Batch2), windowStart)
	require.NoError(t, err)

	all, err := policies.FindByRiderID(context.Background(), riderID)
	require.NoError(t, err)
	require.Len(t, all, 1)

	assert.Equal(t, windowStart.AddDate(0, 11, 0), all[0].ExpiryDate)
}

func TestProcessBatch_NoPendingPoliciesReturnsOpenBatch(t *testing.T) {
	uc, _, _ := newBatchTestUseCase()

	batch, err := uc.ProcessBatch(context.Background(), &recordingUnderwriter{}, string(constant.Batch3), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, policy.BatchOpen, batch.Status)
}

func TestProcessBatch_PolicyNumbersAreDeterministic(t *testing.T) {
	uc, policies, _ := newBatchTestUseCase()

	// two pending policies with known triggering transaction ids: the
	// lexicographically smaller id must take sequence 1 regardless of
	// creation order.
	riderA, riderB := idgen.New(), idgen.New()
	txA := idgen.New()
	txB := idgen.New()

	_, err := uc.PlanIssuance(context.Background(), riderB, policy.TypeOneMonth, money.Minor(104800), txB)
	require.NoError(t, err)
	_, err = uc.PlanIssuance(context.Background(), riderA, policy.TypeOneMonth, money.Minor(104800), txA)
	require.NoError(t, err)

	windowStart := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	batch, err := uc.ProcessBatch(context.Background(), &recordingUnderwriter{}, string(constant.Batch1), windowStart)
	require.NoError(t, err)
	assert.Equal(t, "B20260301-1", batch.BatchNumber)

	firstTx, secondTx := txA, txB
	firstRider, secondRider := riderA, riderB

	if txB.String() < txA.String() {
		firstTx, secondTx = txB, txA
		firstRider, secondRider = riderB, riderA
	}

	first, err := policies.FindByTriggeringTransactionID(context.Background(), firstTx)
	require.NoError(t, err)
	second, err := policies.FindByTriggeringTransactionID(context.Background(), secondTx)
	require.NoError(t, err)

	assert.Equal(t, firstRider, first.RiderID)
	assert.Equal(t, secondRider, second.RiderID)
	assert.Equal(t, "POL-B20260301-1-0001", first.PolicyNumber)
	assert.Equal(t, "POL-B20260301-1-0002", second.PolicyNumber)
}

func TestProcessBatch_HandsActivatedRecordsToUnderwriter(t *testing.T) {
	uc, _, _ := newBatchTestUseCase()

	riderID := idgen.New()
	_, err := uc.PlanIssuance(context.Background(), riderID, policy.TypeOneMonth, money.Minor(104800), idgen.New())
	require.NoError(t, err)

	windowStart := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	recorder := &recordingUnderwriter{}

	_, err = uc.ProcessBatch(context.Background(), recorder, string(constant.Batch1), windowStart)
	require.NoError(t, err)

	require.Len(t, recorder.records, 1)
	assert.Equal(t, riderID, recorder.records[0].RiderID)
	assert.Equal(t, "POL-B20260302-1-0001", recorder.records[0].PolicyNumber)
	assert.Equal(t, []string{"B20260302-1"}, recorder.batchNumbers)
}
