// Package constant holds the fixed money and scheduling constants of
// the product. The production values are the compiled-in defaults;
// deployments override them through the environment, never by editing
// this file.
package constant

import "time"

const (
	// DepositAmount is the fixed first mobile-money payment, in minor
	// units (1 KES = 100 units): 1048 major units.
	DepositAmount int64 = 104800

	// DailyAmount is the fixed recurring micro-payment, in minor units:
	// 87 major units.
	DailyAmount int64 = 8700

	// DaysRequired is the number of daily payments that complete the
	// cycle and trigger eleven-month-policy issuance.
	DaysRequired int = 30

	// FreeLookDays is the cancellation window from coverage_start.
	FreeLookDays int = 30

	// ReversalFeeNumerator/ReversalFeeDenominator express the 10%
	// reversal fee as an exact integer fraction so free-look refund math
	// never touches floating point.
	ReversalFeeNumerator   int64 = 10
	ReversalFeeDenominator int64 = 100

	// DefaultCommissionPlatformNumerator/DefaultCommissionPlatformDenominator
	// express the platform's default 20% share of recognized premium as
	// an exact integer fraction.
	DefaultCommissionPlatformNumerator   int64 = 20
	DefaultCommissionPlatformDenominator int64 = 100

	// OneMonthPolicyMonths / ElevenMonthPolicyMonths are the coverage
	// durations added to coverage_start.
	OneMonthPolicyMonths    = 1
	ElevenMonthPolicyMonths = 11

	// MaxWalletVersionRetries is a retry bound for optimistic-concurrency
	// wallet writes. No code references it; the wallet credit loop uses
	// its own bound of 5 attempts.
	MaxWalletVersionRetries = 3

	// InlinePollingTimeout is the base of the reconciler's TIMEOUT
	// ceiling: a request older than InlinePollingTimeout x
	// 2^ReconcilerMaxAttempts is forced to TIMEOUT. InitiateDeposit and
	// InitiateDailyPayment do not wait on it.
	InlinePollingTimeout = 30 * time.Second

	// ReconcilerMaxAttempts bounds the reconciler's exponential backoff
	// before a PaymentRequest is forced to TIMEOUT.
	ReconcilerMaxAttempts = 6

	// NotificationMaxRetries bounds delivery attempts per provider in the
	// notification orchestrator.
	NotificationMaxRetries = 3

	// NotificationRetryBaseDelay is the base of the
	// base × 2^(attempt-1) backoff the orchestrator applies per retry.
	NotificationRetryBaseDelay = 500 * time.Millisecond

	// ProviderHealthCacheTTL is how long a provider stays marked unhealthy
	// after exhausting retries.
	ProviderHealthCacheTTL = 60 * time.Second

	// NotificationTTL is the age at which a still-pending notification
	// transitions to EXPIRED without further attempts.
	NotificationTTL = 24 * time.Hour

	// BulkFailoverThreshold is the fraction of a bulk SMS send that must
	// fail on the primary provider before the failed subset is re-sent on
	// the secondary.
	BulkFailoverThreshold = 0.5
)

// BatchSchedule enumerates the three fixed daily batch windows plus the
// on-demand manual batch.
type BatchSchedule string

const (
	Batch1 BatchSchedule = "BATCH_1"
	Batch2 BatchSchedule = "BATCH_2"
	Batch3 BatchSchedule = "BATCH_3"
	BatchManual BatchSchedule = "MANUAL"
)

// BatchWallClockTimes maps each scheduled batch to its local wall-clock
// trigger time.
var BatchWallClockTimes = map[BatchSchedule]time.Duration{
	Batch1: 8 * time.Hour,
	Batch2: 14 * time.Hour,
	Batch3: 20 * time.Hour,
}

// BatchWindowDuration is the span each fixed schedule claims: BATCH_1 sweeps the 12 hours since the previous day's BATCH_3,
// BATCH_2 and BATCH_3 each sweep the preceding 6 hours.
var BatchWindowDuration = map[BatchSchedule]time.Duration{
	Batch1: 12 * time.Hour,
	Batch2: 6 * time.Hour,
	Batch3: 6 * time.Hour,
}

// DefaultQuietHoursStart/End define the fallback quiet window applied to riders who have not set their own.
const (
	DefaultQuietHoursStart = 22 // 22:00 local
	DefaultQuietHoursEnd   = 6  // 06:00 local
)
