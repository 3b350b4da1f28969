// Package query implements the read side: a rider-facing status
// summary (wallet balance, deposit/cycle progress, policy state), the
// ledger trial balance, and lookups the HTTP surface needs that do not
// mutate anything. Kept separate from internal/services/command so the
// mutation-free surface stays mutation-free by construction.
package query

import (
	"github.com/bodaboda-insure/core/internal/domain/ledger"
	"github.com/bodaboda-insure/core/internal/domain/notification"
	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/internal/domain/rider"
	"github.com/bodaboda-insure/core/internal/domain/wallet"
)

// UseCase aggregates every repository this service's read side
// consults. It never holds a provider gateway or producer — those are
// write-side concerns.
type UseCase struct {
	RiderRepo        rider.Repository
	WalletRepo       wallet.Repository
	PaymentRepo      payment.Repository
	PolicyRepo       policy.Repository
	BatchRepo        policy.BatchRepository
	LedgerRepo       ledger.Repository
	AccountRepo      ledger.AccountRepository
	NotificationRepo notification.Repository
}
