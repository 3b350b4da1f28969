package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodaboda-insure/core/internal/adapters/providers/mobilemoney"
	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/internal/domain/wallet"
	"github.com/bodaboda-insure/core/pkg/idgen"
	"github.com/bodaboda-insure/core/pkg/money"
)

func newCallbackTestUseCase() (*UseCase, *fakePaymentRepo, *fakeTransactionRepo, *fakeWalletRepo, *fakeLedgerRepo) {
	payments := newFakePaymentRepo()
	transactions := newFakeTransactionRepo()
	wallets := newFakeWalletRepo()
	ledgerRepo := newFakeLedgerRepo()

	return &UseCase{
		RiderRepo:        newFakeRiderRepo(),
		WalletRepo:       wallets,
		PaymentRepo:      payments,
		TransactionRepo:  transactions,
		PolicyRepo:       newFakePolicyRepo(),
		LedgerRepo:       ledgerRepo,
		AccountRepo:      newFakeAccountRepo(),
		NotificationRepo: newFakeNotificationRepo(),
		Constants: Constants{
			DepositAmountMinor:            104800,
			DailyAmountMinor:              8700,
			DaysRequired:                  30,
			CommissionPlatformNumerator:   20,
			CommissionPlatformDenominator: 100,
		},
	}, payments, transactions, wallets, ledgerRepo
}

func seedPendingDeposit(uc *UseCase, payments *fakePaymentRepo, wallets *fakeWalletRepo, providerRef string) *payment.PaymentRequest {
	riderID := idgen.New()

	w := &wallet.Wallet{ID: idgen.New(), RiderID: riderID, Status: wallet.StatusActive}
	wallets.put(w)

	pr := &payment.PaymentRequest{
		ID:                idgen.New(),
		RiderID:           riderID,
		WalletID:          w.ID,
		Kind:              payment.KindDeposit,
		Amount:            money.Minor(104800),
		Status:            payment.StatusPending,
		ProviderReference: providerRef,
		CreatedAt:         time.Now().UTC(),
	}
	payments.put(pr)

	return pr
}

func TestHandleCallback_SettlementProducesOneCompletedTransactionWithReceipt(t *testing.T) {
	uc, payments, transactions, wallets, _ := newCallbackTestUseCase()
	pr := seedPendingDeposit(uc, payments, wallets, "ref-001")

	err := uc.HandleCallback(context.Background(), mobilemoney.CallbackPayload{
		ProviderReference: "ref-001",
		Status:            "COMPLETED",
		ReceiptNumber:     "RCPT-042",
	})
	require.NoError(t, err)

	txn, err := transactions.FindByReceiptNumber(context.Background(), "RCPT-042")
	require.NoError(t, err)
	assert.Equal(t, payment.TransactionCompleted, txn.Status)
	assert.Equal(t, payment.TransactionDeposit, txn.Type)
	assert.Equal(t, money.Minor(104800), txn.Amount)
	assert.Equal(t, pr.RiderID, txn.RiderID)
	assert.Equal(t, pr.WalletID, txn.WalletID)
	assert.Equal(t, pr.ID, txn.PaymentRequestID)

	settled, err := payments.Find(context.Background(), pr.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSucceeded, settled.Status)

	w, err := wallets.Find(context.Background(), pr.WalletID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(104800), w.Balance)
	assert.True(t, w.DepositCompleted)

	// the settled deposit planned the one-month policy, and the
	// transaction carries the weak reference back to it
	planned, err := uc.PolicyRepo.FindByTriggeringTransactionID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.TypeOneMonth, planned.Type)
	require.NotNil(t, txn.PolicyID)
	assert.Equal(t, planned.ID, *txn.PolicyID)
}

func TestHandleCallback_DuplicateCallbackIsNoOp(t *testing.T) {
	uc, payments, transactions, wallets, ledgerRepo := newCallbackTestUseCase()
	pr := seedPendingDeposit(uc, payments, wallets, "ref-002")

	callback := mobilemoney.CallbackPayload{
		ProviderReference: "ref-002",
		Status:            "COMPLETED",
		ReceiptNumber:     "RCPT-100",
	}

	require.NoError(t, uc.HandleCallback(context.Background(), callback))
	require.NoError(t, uc.HandleCallback(context.Background(), callback))

	assert.Len(t, transactions.rows, 1, "a re-sent callback must not create a second transaction")

	w, err := wallets.Find(context.Background(), pr.WalletID)
	require.NoError(t, err)
	assert.Equal(t, money.Minor(104800), w.Balance, "a re-sent callback must not credit the wallet twice")

	assert.Len(t, ledgerRepo.entries, 1, "a re-sent callback must not post a second journal entry")
}

func TestHandleCallback_FailureRecordsFailedTransaction(t *testing.T) {
	uc, payments, transactions, wallets, _ := newCallbackTestUseCase()
	pr := seedPendingDeposit(uc, payments, wallets, "ref-003")

	err := uc.HandleCallback(context.Background(), mobilemoney.CallbackPayload{
		ProviderReference: "ref-003",
		Status:            "FAILED",
	})
	require.NoError(t, err)

	failed, err := payments.Find(context.Background(), pr.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, failed.Status)

	require.Len(t, transactions.rows, 1)
	for _, txn := range transactions.rows {
		assert.Equal(t, payment.TransactionFailed, txn.Status)
		assert.Empty(t, txn.ReceiptNumber)
	}

	w, err := wallets.Find(context.Background(), pr.WalletID)
	require.NoError(t, err)
	assert.Zero(t, w.Balance, "a failed payment must not credit the wallet")
}
