package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bodaboda-insure/core/pkg/money"
)

func TestInvariant_BookkeepingEquation(t *testing.T) {
	w := &Wallet{
		Balance:          money.Minor(104800),
		TotalDeposited:   money.Minor(104800),
		TotalPaid:        money.Minor(0),
		DepositCompleted: true,
	}
	assert.True(t, w.Invariant(1048_00, 30))

	w.Balance = money.Minor(104799)
	assert.False(t, w.Invariant(1048_00, 30), "balance must equal total_deposited - total_paid")
}

func TestInvariant_DepositCompletedFlag(t *testing.T) {
	w := &Wallet{
		TotalDeposited:   money.Minor(104800),
		DepositCompleted: false,
	}
	w.Balance = w.TotalDeposited.Sub(w.TotalPaid)
	assert.False(t, w.Invariant(104800, 30), "deposit_completed must be true once total_deposited reaches the deposit amount")

	w.DepositCompleted = true
	assert.True(t, w.Invariant(104800, 30))
}

func TestInvariant_DailyPaymentsCountCap(t *testing.T) {
	w := &Wallet{DailyPaymentsCount: 30}
	w.Balance = w.TotalDeposited.Sub(w.TotalPaid)
	assert.True(t, w.Invariant(0, 30))

	w.DailyPaymentsCount = 31
	assert.False(t, w.Invariant(0, 30), "daily_payments_count must never exceed daysRequired")

	w.DailyPaymentsCount = -1
	assert.False(t, w.Invariant(0, 30))
}
