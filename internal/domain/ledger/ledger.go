// Package ledger models the double-entry journal behind every money
// movement: a JournalEntry groups balanced Lines against
// GLAccounts, and the trial-balance invariant (sum(debits) ==
// sum(credits)) must hold for every entry the ledger poster writes.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/pkg/money"
)

// AccountType enumerates the accounting classification of a GLAccount.
type AccountType string

const (
	AccountAsset     AccountType = "ASSET"
	AccountLiability AccountType = "LIABILITY"
	AccountRevenue   AccountType = "REVENUE"
	AccountExpense   AccountType = "EXPENSE"
)

// GLAccount is one chart-of-accounts entry.
type GLAccount struct {
	ID        uuid.UUID
	Code      string // e.g. "2000-WALLET-LIABILITY"
	Name      string
	Type      AccountType
	CreatedAt time.Time
}

// Side is a Line's debit/credit direction.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// Line is one posting leg of a JournalEntry.
type Line struct {
	ID        uuid.UUID
	EntryID   uuid.UUID
	AccountID uuid.UUID
	Side      Side
	Amount    money.Minor
}

// EntryKind names the business event that produced a JournalEntry.
type EntryKind string

const (
	EntryDepositReceived EntryKind = "DEPOSIT_RECEIVED"
	EntryDailyReceived   EntryKind = "DAILY_PAYMENT_RECEIVED"

	// EntryPremiumRecognized is posted once, at policy activation (batch
	// time), clearing the premium-payable liability into income split
	// between the underwriter and platform shares — not on
	// each individual deposit/daily payment, which only move cash
	// against that liability.
	EntryPremiumRecognized EntryKind = "PREMIUM_RECOGNIZED"

	EntryReversal EntryKind = "REVERSAL"

	// EntryPartnerSettlement is posted when collected premium is paid out
	// of escrow to the underwriter (or commission to the platform's
	// operating account), clearing the payable built up by settled
	// payments.
	EntryPartnerSettlement EntryKind = "PARTNER_SETTLEMENT"
)

// JournalEntry is one balanced posting.
type JournalEntry struct {
	ID          uuid.UUID
	Kind        EntryKind
	ReferenceID uuid.UUID // the PaymentRequest or Policy id this entry explains
	Lines       []Line
	PostedAt    time.Time
	CreatedAt   time.Time
}

// Balanced reports whether e satisfies the trial-balance invariant:
// sum(debits) == sum(credits), and at least one line of each side is
// present.
func (e *JournalEntry) Balanced() bool {
	var debit, credit money.Minor
	var hasDebit, hasCredit bool

	for _, l := range e.Lines {
		switch l.Side {
		case SideDebit:
			debit = debit.Add(l.Amount)
			hasDebit = true
		case SideCredit:
			credit = credit.Add(l.Amount)
			hasCredit = true
		}
	}

	return hasDebit && hasCredit && debit == credit
}

// Repository is the persistence contract for JournalEntry. Post must
// write the entry and all of its lines atomically within a single
// database transaction.
type Repository interface {
	Post(ctx context.Context, e *JournalEntry) (*JournalEntry, error)
	Find(ctx context.Context, id uuid.UUID) (*JournalEntry, error)
	FindByReference(ctx context.Context, referenceID uuid.UUID) ([]*JournalEntry, error)

	// TrialBalance sums all lines by account, for the trial-balance
	// query served over HTTP.
	TrialBalance(ctx context.Context, asOf time.Time) (map[uuid.UUID]money.Minor, error)
}

// AccountRepository is the persistence contract for GLAccount.
type AccountRepository interface {
	FindByCode(ctx context.Context, code string) (*GLAccount, error)
	List(ctx context.Context) ([]*GLAccount, error)
}
