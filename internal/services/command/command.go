// Package command implements every mutating operation of the service:
// the payment engine, issuance planner, batch scheduler, notification
// orchestrator and ledger poster. UseCase aggregates every repository
// and provider interface a command needs.
package command

import (
	"time"

	"github.com/bodaboda-insure/core/internal/adapters/mongo/callbackaudit"
	"github.com/bodaboda-insure/core/internal/adapters/providers/mobilemoney"
	"github.com/bodaboda-insure/core/internal/adapters/providers/storage"
	"github.com/bodaboda-insure/core/internal/adapters/redis/idempotency"
	"github.com/bodaboda-insure/core/internal/adapters/redis/providerhealth"
	"github.com/bodaboda-insure/core/internal/adapters/redis/suppression"
	"github.com/bodaboda-insure/core/internal/domain/ledger"
	"github.com/bodaboda-insure/core/internal/domain/notification"
	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/internal/domain/refund"
	"github.com/bodaboda-insure/core/internal/domain/rider"
	"github.com/bodaboda-insure/core/internal/domain/wallet"
	platformrabbitmq "github.com/bodaboda-insure/core/internal/platform/rabbitmq"
)

// UseCase aggregates every repository and external capability this
// service's command layer needs.
type UseCase struct {
	RiderRepo        rider.Repository
	WalletRepo       wallet.Repository
	PaymentRepo      payment.Repository
	TransactionRepo  payment.TransactionRepository
	PolicyRepo       policy.Repository
	BatchRepo        policy.BatchRepository
	LedgerRepo       ledger.Repository
	AccountRepo      ledger.AccountRepository
	NotificationRepo notification.Repository
	RefundRepo       refund.Repository

	CallbackAudit *callbackaudit.Repository

	MobileMoney    mobilemoney.Gateway
	IdempotencyLocks *idempotency.Cache
	ProviderHealth   *providerhealth.Cache
	Suppression      *suppression.Cache

	Storage storage.Store

	Notifier Notifier
	Metrics  *DeliveryMetrics

	Producer *platformrabbitmq.Producer

	Constants Constants
}

// Constants carries the tunable business parameters (production values
// by default): deposit/daily amounts,
// cycle length, retry ceilings, quiet hours. Kept on UseCase instead of
// referenced as package globals so tests can vary them per scenario.
type Constants struct {
	DepositAmountMinor int64
	DailyAmountMinor   int64
	DaysRequired        int
	MaxBatchRetries     int
	MaxNotificationRetries int
	StalePendingAfterSeconds int

	// CommissionPlatformNumerator/CommissionPlatformDenominator express
	// the platform's share of recognized premium income as an exact
	// integer fraction; the underwriter takes the remainder.
	CommissionPlatformNumerator   int64
	CommissionPlatformDenominator int64

	// QuietHoursStart/End are EAT clock hours (0-23) during which
	// ROUTINE notifications are deferred rather than sent.
	// URGENT notifications bypass this window entirely.
	QuietHoursStart int
	QuietHoursEnd   int
	QuietHoursZone  *time.Location
}
