package command

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/domain/ledger"
	"github.com/bodaboda-insure/core/internal/domain/notification"
	"github.com/bodaboda-insure/core/internal/domain/payment"
	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/internal/domain/refund"
	"github.com/bodaboda-insure/core/internal/domain/rider"
	"github.com/bodaboda-insure/core/internal/domain/wallet"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/pkg/idgen"
	"github.com/bodaboda-insure/core/pkg/money"
)

// fakeLedgerRepo records every posted journal entry in memory, letting
// command-layer tests assert the GL lines a business event produces
// without a real postgres-backed ledger.
type fakeLedgerRepo struct {
	mu      sync.Mutex
	entries []*ledger.JournalEntry
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{}
}

func (f *fakeLedgerRepo) Post(_ context.Context, e *ledger.JournalEntry) (*ledger.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries = append(f.entries, e)

	return e, nil
}

func (f *fakeLedgerRepo) Find(_ context.Context, id uuid.UUID) (*ledger.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, e := range f.entries {
		if e.ID == id {
			return e, nil
		}
	}

	return nil, apperr.NotFoundError{EntityType: "JournalEntry", ID: id.String()}
}

func (f *fakeLedgerRepo) FindByReference(_ context.Context, referenceID uuid.UUID) ([]*ledger.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*ledger.JournalEntry, 0)

	for _, e := range f.entries {
		if e.ReferenceID == referenceID {
			out = append(out, e)
		}
	}

	return out, nil
}

func (f *fakeLedgerRepo) TrialBalance(_ context.Context, _ time.Time) (map[uuid.UUID]money.Minor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[uuid.UUID]money.Minor)

	for _, e := range f.entries {
		for _, l := range e.Lines {
			switch l.Side {
			case ledger.SideDebit:
				out[l.AccountID] = out[l.AccountID].Add(l.Amount)
			case ledger.SideCredit:
				out[l.AccountID] = out[l.AccountID].Sub(l.Amount)
			}
		}
	}

	return out, nil
}

var _ ledger.Repository = (*fakeLedgerRepo)(nil)

// fakeAccountRepo serves a fixed chart of accounts keyed by code, seeded
// with the GL codes post_journal_entry.go references.
type fakeAccountRepo struct {
	byCode map[string]*ledger.GLAccount
}

func newFakeAccountRepo() *fakeAccountRepo {
	r := &fakeAccountRepo{byCode: make(map[string]*ledger.GLAccount)}

	for _, code := range []string{GLAccountCashClearing, GLAccountCashOperating, GLAccountWalletLiability, GLAccountPremiumIncomeUnderwriter, GLAccountPremiumIncomePlatform} {
		r.byCode[code] = &ledger.GLAccount{ID: idgen.New(), Code: code}
	}

	return r
}

func (r *fakeAccountRepo) FindByCode(_ context.Context, code string) (*ledger.GLAccount, error) {
	a, ok := r.byCode[code]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "GLAccount", ID: code}
	}

	return a, nil
}

func (r *fakeAccountRepo) List(_ context.Context) ([]*ledger.GLAccount, error) {
	out := make([]*ledger.GLAccount, 0, len(r.byCode))
	for _, a := range r.byCode {
		out = append(out, a)
	}

	return out, nil
}

var _ ledger.AccountRepository = (*fakeAccountRepo)(nil)

// The fakes in this file are plain in-memory maps guarded by a mutex —
// enough to exercise optimistic-concurrency and idempotency behavior
// without a database.

type fakePolicyRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*policy.Policy
}

func newFakePolicyRepo() *fakePolicyRepo {
	return &fakePolicyRepo{rows: make(map[uuid.UUID]*policy.Policy)}
}

func clonePolicy(p *policy.Policy) *policy.Policy {
	cp := *p
	return &cp
}

func (f *fakePolicyRepo) Create(_ context.Context, p *policy.Policy) (*policy.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.rows {
		if existing.TriggeringTransactionID == p.TriggeringTransactionID {
			return nil, apperr.ConflictError{EntityType: "Policy", Code: "DUPLICATE_ISSUANCE_EVENT", Retryable: false}
		}
	}

	p.Version = 1
	f.rows[p.ID] = clonePolicy(p)

	return clonePolicy(p), nil
}

func (f *fakePolicyRepo) Find(_ context.Context, id uuid.UUID) (*policy.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Policy", ID: id.String()}
	}

	return clonePolicy(p), nil
}

func (f *fakePolicyRepo) FindByRiderID(_ context.Context, riderID uuid.UUID) ([]*policy.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*policy.Policy, 0)

	for _, p := range f.rows {
		if p.RiderID == riderID {
			out = append(out, clonePolicy(p))
		}
	}

	return out, nil
}

func (f *fakePolicyRepo) FindByPolicyNumber(_ context.Context, number string) (*policy.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range f.rows {
		if p.PolicyNumber == number {
			return clonePolicy(p), nil
		}
	}

	return nil, apperr.NotFoundError{EntityType: "Policy"}
}

func (f *fakePolicyRepo) FindByTriggeringTransactionID(_ context.Context, triggeringTransactionID uuid.UUID) (*policy.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range f.rows {
		if p.TriggeringTransactionID == triggeringTransactionID {
			return clonePolicy(p), nil
		}
	}

	return nil, apperr.NotFoundError{EntityType: "Policy"}
}

func (f *fakePolicyRepo) SetNextPolicyID(_ context.Context, policyID uuid.UUID, version int64, nextPolicyID uuid.UUID) (*policy.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.rows[policyID]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Policy", ID: policyID.String()}
	}

	if p.Version != version {
		return nil, apperr.ConflictError{EntityType: "Policy", Code: "VERSION_CONFLICT", Retryable: true}
	}

	p.NextPolicyID = &nextPolicyID
	p.Version++
	f.rows[policyID] = p

	return clonePolicy(p), nil
}

func (f *fakePolicyRepo) AssignToBatch(_ context.Context, policyID, batchID uuid.UUID, version int64) (*policy.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.rows[policyID]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Policy", ID: policyID.String()}
	}

	if p.Version != version || p.Status != policy.StatusPendingIssuance {
		return nil, apperr.ConflictError{EntityType: "Policy", Code: "VERSION_CONFLICT", Retryable: true}
	}

	p.BatchID = &batchID
	p.Status = policy.StatusQueued
	p.Version++
	f.rows[policyID] = p

	return clonePolicy(p), nil
}

func (f *fakePolicyRepo) Activate(_ context.Context, policyID uuid.UUID, version int64, policyNumber string, effectiveDate, expiryDate, freeLookEndsAt time.Time) (*policy.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.rows[policyID]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Policy", ID: policyID.String()}
	}

	if p.Version != version {
		return nil, apperr.ConflictError{EntityType: "Policy", Code: "VERSION_CONFLICT", Retryable: true}
	}

	p.PolicyNumber = policyNumber
	p.Status = policy.StatusActive
	p.EffectiveDate = effectiveDate
	p.ExpiryDate = expiryDate
	p.FreeLookEndsAt = freeLookEndsAt
	p.Version++
	f.rows[policyID] = p

	return clonePolicy(p), nil
}

func (f *fakePolicyRepo) Cancel(_ context.Context, policyID uuid.UUID, version int64, now time.Time) (*policy.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.rows[policyID]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Policy", ID: policyID.String()}
	}

	if p.Version != version {
		return nil, apperr.ConflictError{EntityType: "Policy", Code: "VERSION_CONFLICT", Retryable: true}
	}

	p.Status = policy.StatusCancelled
	p.CancelledAt = &now
	p.Version++
	f.rows[policyID] = p

	return clonePolicy(p), nil
}

// ListPendingIssuance ignores the settlement window in this in-memory
// double — command-layer tests exercise the window filter against the
// postgres adapter directly, not this fake, so every pending policy is
// returned regardless of windowBegin/windowEnd.
func (f *fakePolicyRepo) ListPendingIssuance(_ context.Context, _, _ time.Time, limit int) ([]*policy.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*policy.Policy, 0)

	for _, p := range f.rows {
		if p.Status == policy.StatusPendingIssuance {
			out = append(out, clonePolicy(p))
		}

		if len(out) == limit {
			break
		}
	}

	return out, nil
}

func (f *fakePolicyRepo) ListByBatchID(_ context.Context, batchID uuid.UUID) ([]*policy.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*policy.Policy, 0)

	for _, p := range f.rows {
		if p.BatchID != nil && *p.BatchID == batchID {
			out = append(out, clonePolicy(p))
		}
	}

	return out, nil
}

var _ policy.Repository = (*fakePolicyRepo)(nil)

type fakeBatchRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*policy.PolicyBatch
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{rows: make(map[uuid.UUID]*policy.PolicyBatch)}
}

func (f *fakeBatchRepo) Create(_ context.Context, b *policy.PolicyBatch) (*policy.PolicyBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b.Version = 1
	cp := *b
	f.rows[b.ID] = &cp

	out := cp

	return &out, nil
}

func (f *fakeBatchRepo) Find(_ context.Context, id uuid.UUID) (*policy.PolicyBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "PolicyBatch", ID: id.String()}
	}

	out := *b

	return &out, nil
}

func (f *fakeBatchRepo) FindOpenForSchedule(_ context.Context, schedule string, windowStart time.Time) (*policy.PolicyBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, b := range f.rows {
		if b.Schedule == schedule && b.WindowStart.Equal(windowStart) &&
			(b.Status == policy.BatchOpen || b.Status == policy.BatchProcessing) {
			out := *b
			return &out, nil
		}
	}

	return nil, apperr.NotFoundError{EntityType: "PolicyBatch"}
}

func (f *fakeBatchRepo) Transition(_ context.Context, id uuid.UUID, version int64, to policy.BatchStatus, failureReason string, now time.Time) (*policy.PolicyBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "PolicyBatch", ID: id.String()}
	}

	if b.Version != version {
		return nil, apperr.ConflictError{EntityType: "PolicyBatch", Code: "VERSION_CONFLICT", Retryable: true}
	}

	b.Status = to
	b.FailureReason = failureReason
	b.UpdatedAt = now
	b.Version++

	if to == policy.BatchFailed || to == policy.BatchCompletedWithErrors {
		b.RetryCount++
	}

	out := *b

	return &out, nil
}

func (f *fakeBatchRepo) ListRetryable(_ context.Context, maxRetries int, limit int) ([]*policy.PolicyBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*policy.PolicyBatch, 0)

	for _, b := range f.rows {
		if b.Status == policy.BatchFailed && b.RetryCount < maxRetries {
			cp := *b
			out = append(out, &cp)
		}

		if len(out) == limit {
			break
		}
	}

	return out, nil
}

var _ policy.BatchRepository = (*fakeBatchRepo)(nil)

type fakeWalletRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*wallet.Wallet
}

func newFakeWalletRepo() *fakeWalletRepo {
	return &fakeWalletRepo{rows: make(map[uuid.UUID]*wallet.Wallet)}
}

func (f *fakeWalletRepo) put(w *wallet.Wallet) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Version = 1
	cp := *w
	f.rows[w.ID] = &cp
}

func (f *fakeWalletRepo) Create(_ context.Context, w *wallet.Wallet) (*wallet.Wallet, error) {
	f.put(w)
	return w, nil
}

func (f *fakeWalletRepo) FindByRiderID(_ context.Context, riderID uuid.UUID) (*wallet.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, w := range f.rows {
		if w.RiderID == riderID {
			cp := *w
			return &cp, nil
		}
	}

	return nil, apperr.NotFoundError{EntityType: "Wallet"}
}

func (f *fakeWalletRepo) Find(_ context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Wallet", ID: id.String()}
	}

	cp := *w

	return &cp, nil
}

func (f *fakeWalletRepo) CreditDeposit(_ context.Context, walletID uuid.UUID, version int64, amount money.Minor, depositAmount money.Minor, now time.Time) (*wallet.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.rows[walletID]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Wallet", ID: walletID.String()}
	}

	if w.Version != version {
		return nil, apperr.ConflictError{EntityType: "Wallet", Code: "VERSION_CONFLICT", Retryable: true}
	}

	w.TotalDeposited = w.TotalDeposited + amount
	w.Balance = w.TotalDeposited.Sub(w.TotalPaid)

	if !w.DepositCompleted && int64(w.TotalDeposited) >= int64(depositAmount) {
		w.DepositCompleted = true
		w.DepositCompletedAt = &now
	}

	w.Version++
	w.UpdatedAt = now
	f.rows[walletID] = w

	cp := *w

	return &cp, nil
}

func (f *fakeWalletRepo) CreditDailyPayment(_ context.Context, walletID uuid.UUID, version int64, amount money.Minor, daysCount int, daysRequired int, now time.Time) (*wallet.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.rows[walletID]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Wallet", ID: walletID.String()}
	}

	if w.Version != version {
		return nil, apperr.ConflictError{EntityType: "Wallet", Code: "VERSION_CONFLICT", Retryable: true}
	}

	w.TotalPaid = w.TotalPaid + amount
	w.Balance = w.TotalDeposited.Sub(w.TotalPaid)
	w.DailyPaymentsCount += daysCount

	if w.DailyPaymentsCount > daysRequired {
		w.DailyPaymentsCount = daysRequired
	}

	if !w.DailyPaymentsCompleted && w.DailyPaymentsCount >= daysRequired {
		w.DailyPaymentsCompleted = true
	}

	w.LastDailyPaymentAt = &now
	w.Version++
	w.UpdatedAt = now
	f.rows[walletID] = w

	cp := *w

	return &cp, nil
}

var _ wallet.Repository = (*fakeWalletRepo)(nil)

type fakeRiderRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*rider.Rider
}

func newFakeRiderRepo() *fakeRiderRepo {
	return &fakeRiderRepo{rows: make(map[uuid.UUID]*rider.Rider)}
}

func (f *fakeRiderRepo) put(r *rider.Rider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[r.ID] = r
}

func (f *fakeRiderRepo) Find(_ context.Context, id uuid.UUID) (*rider.Rider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Rider", ID: id.String()}
	}

	return r, nil
}

func (f *fakeRiderRepo) FindByPhone(_ context.Context, phone string) (*rider.Rider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.rows {
		if r.Phone == phone {
			return r, nil
		}
	}

	return nil, apperr.NotFoundError{EntityType: "Rider"}
}

var _ rider.Repository = (*fakeRiderRepo)(nil)

type fakeNotificationRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*notification.Notification
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{rows: make(map[uuid.UUID]*notification.Notification)}
}

func (f *fakeNotificationRepo) Create(_ context.Context, n *notification.Notification) (*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n.Version = 1
	cp := *n
	f.rows[n.ID] = &cp

	out := cp

	return &out, nil
}

func (f *fakeNotificationRepo) Find(_ context.Context, id uuid.UUID) (*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Notification", ID: id.String()}
	}

	out := *n

	return &out, nil
}

func (f *fakeNotificationRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*notification.Notification, 0)

	for _, n := range f.rows {
		due := n.Status == notification.StatusQueued || n.Status == notification.StatusDeferred
		if due && !n.NextAttemptAt.After(now) {
			cp := *n
			out = append(out, &cp)
		}

		if len(out) == limit {
			break
		}
	}

	return out, nil
}

func (f *fakeNotificationRepo) Transition(_ context.Context, id uuid.UUID, version int64, to notification.Status, channel notification.Channel, providerMessageID string, nextAttemptAt time.Time, now time.Time) (*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Notification", ID: id.String()}
	}

	if n.Version != version {
		return nil, apperr.ConflictError{EntityType: "Notification", Code: "VERSION_CONFLICT", Retryable: true}
	}

	n.Status = to
	n.AttemptedChannel = channel

	if providerMessageID != "" {
		n.ProviderMessageID = providerMessageID
	}

	if !nextAttemptAt.IsZero() {
		n.NextAttemptAt = nextAttemptAt
	}

	n.UpdatedAt = now
	n.Version++

	out := *n

	return &out, nil
}

func (f *fakeNotificationRepo) FindByProviderMessageID(_ context.Context, providerMessageID string) (*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, n := range f.rows {
		if n.ProviderMessageID == providerMessageID {
			cp := *n
			return &cp, nil
		}
	}

	return nil, apperr.NotFoundError{EntityType: "Notification"}
}

var _ notification.Repository = (*fakeNotificationRepo)(nil)

// fakeSender is a channel Sender test double that can be scripted to
// fail a fixed number of times before succeeding, or to fail
// permanently, exercising the orchestrator's retry/failover loop.
type fakeSender struct {
	mu          sync.Mutex
	failures    int
	permanent   error
	calls       int
	messageID   string
}

func (s *fakeSender) Send(_ context.Context, _ string, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	if s.permanent != nil {
		return "", s.permanent
	}

	if s.calls <= s.failures {
		return "", apperr.TransientUpstreamError{Provider: "fake", Message: "simulated failure"}
	}

	if s.messageID == "" {
		return "sent", nil
	}

	return s.messageID, nil
}

// fakeRefundRepo stores rider refunds in memory, enforcing the
// one-refund-per-policy uniqueness the postgres adapter gets from its
// unique index.
type fakeRefundRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*refund.RiderRefund
}

func newFakeRefundRepo() *fakeRefundRepo {
	return &fakeRefundRepo{rows: map[uuid.UUID]*refund.RiderRefund{}}
}

func (f *fakeRefundRepo) Create(_ context.Context, r *refund.RiderRefund) (*refund.RiderRefund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.rows {
		if existing.PolicyID == r.PolicyID {
			return nil, apperr.ConflictError{EntityType: "RiderRefund", Code: "REFUND_ALREADY_EXISTS"}
		}
	}

	cp := *r
	cp.Version = 1
	f.rows[r.ID] = &cp

	out := cp

	return &out, nil
}

func (f *fakeRefundRepo) Find(_ context.Context, id uuid.UUID) (*refund.RiderRefund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "RiderRefund", ID: id.String()}
	}

	cp := *r

	return &cp, nil
}

func (f *fakeRefundRepo) FindByPolicyID(_ context.Context, policyID uuid.UUID) (*refund.RiderRefund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range f.rows {
		if r.PolicyID == policyID {
			cp := *r
			return &cp, nil
		}
	}

	return nil, apperr.NotFoundError{EntityType: "RiderRefund"}
}

func (f *fakeRefundRepo) MarkPaid(_ context.Context, id uuid.UUID, version int64, now time.Time) (*refund.RiderRefund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rows[id]
	if !ok || r.Version != version || r.Status != refund.StatusPending {
		return nil, apperr.ConflictError{EntityType: "RiderRefund", Code: "VERSION_CONFLICT", Retryable: true}
	}

	r.Status = refund.StatusPaid
	r.PaidAt = &now
	r.Version++
	r.UpdatedAt = now

	cp := *r

	return &cp, nil
}

var _ refund.Repository = (*fakeRefundRepo)(nil)

type fakePaymentRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*payment.PaymentRequest
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{rows: make(map[uuid.UUID]*payment.PaymentRequest)}
}

func (f *fakePaymentRepo) put(pr *payment.PaymentRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pr.Version == 0 {
		pr.Version = 1
	}

	cp := *pr
	f.rows[pr.ID] = &cp
}

func (f *fakePaymentRepo) Create(_ context.Context, pr *payment.PaymentRequest) (*payment.PaymentRequest, error) {
	f.put(pr)

	cp := *pr

	return &cp, nil
}

func (f *fakePaymentRepo) Find(_ context.Context, id uuid.UUID) (*payment.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pr, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "PaymentRequest", ID: id.String()}
	}

	cp := *pr

	return &cp, nil
}

func (f *fakePaymentRepo) FindByIdempotencyKey(_ context.Context, riderID uuid.UUID, key string) (*payment.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, pr := range f.rows {
		if pr.RiderID == riderID && pr.IdempotencyKey == key {
			cp := *pr
			return &cp, nil
		}
	}

	return nil, apperr.NotFoundError{EntityType: "PaymentRequest"}
}

func (f *fakePaymentRepo) FindByProviderReference(_ context.Context, ref string) (*payment.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, pr := range f.rows {
		if pr.ProviderReference == ref {
			cp := *pr
			return &cp, nil
		}
	}

	return nil, apperr.NotFoundError{EntityType: "PaymentRequest"}
}

func (f *fakePaymentRepo) Transition(_ context.Context, id uuid.UUID, version int64, to payment.Status, providerRef string, now time.Time) (*payment.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pr, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "PaymentRequest", ID: id.String()}
	}

	if pr.Version != version {
		return nil, apperr.ConflictError{EntityType: "PaymentRequest", Code: "VERSION_CONFLICT", Retryable: true}
	}

	pr.Status = to
	pr.ProviderReference = providerRef
	pr.UpdatedAt = now
	pr.Version++

	cp := *pr

	return &cp, nil
}

func (f *fakePaymentRepo) ListStalePending(_ context.Context, olderThan time.Time, limit int) ([]*payment.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*payment.PaymentRequest, 0)

	for _, pr := range f.rows {
		if pr.Status == payment.StatusPending && pr.CreatedAt.Before(olderThan) {
			cp := *pr
			out = append(out, &cp)
		}

		if len(out) == limit {
			break
		}
	}

	return out, nil
}

var _ payment.Repository = (*fakePaymentRepo)(nil)

// fakeTransactionRepo enforces the same provider_ref and receipt_number
// uniqueness the postgres adapter gets from its indexes.
type fakeTransactionRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*payment.Transaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{rows: make(map[uuid.UUID]*payment.Transaction)}
}

func (f *fakeTransactionRepo) Create(_ context.Context, t *payment.Transaction) (*payment.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.rows {
		if existing.ProviderRef == t.ProviderRef {
			return nil, apperr.ConflictError{EntityType: "Transaction", Code: "DUPLICATE_PROVIDER_REF"}
		}

		if t.ReceiptNumber != "" && existing.ReceiptNumber == t.ReceiptNumber {
			return nil, apperr.ConflictError{EntityType: "Transaction", Code: "DUPLICATE_RECEIPT_NUMBER"}
		}
	}

	cp := *t
	f.rows[t.ID] = &cp

	out := cp

	return &out, nil
}

func (f *fakeTransactionRepo) Find(_ context.Context, id uuid.UUID) (*payment.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Transaction", ID: id.String()}
	}

	cp := *t

	return &cp, nil
}

func (f *fakeTransactionRepo) FindByReceiptNumber(_ context.Context, receiptNumber string) (*payment.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.rows {
		if t.ReceiptNumber == receiptNumber {
			cp := *t
			return &cp, nil
		}
	}

	return nil, apperr.NotFoundError{EntityType: "Transaction"}
}

func (f *fakeTransactionRepo) Transition(_ context.Context, id uuid.UUID, to payment.TransactionStatus, now time.Time) (*payment.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.rows[id]
	if !ok {
		return nil, apperr.NotFoundError{EntityType: "Transaction", ID: id.String()}
	}

	t.Status = to
	t.UpdatedAt = now

	cp := *t

	return &cp, nil
}

func (f *fakeTransactionRepo) LinkPolicy(_ context.Context, id uuid.UUID, policyID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.rows[id]
	if !ok {
		return apperr.NotFoundError{EntityType: "Transaction", ID: id.String()}
	}

	t.PolicyID = &policyID

	return nil
}

func (f *fakeTransactionRepo) ExistsForProviderRef(_ context.Context, providerRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.rows {
		if t.ProviderRef == providerRef {
			return true, nil
		}
	}

	return false, nil
}

var _ payment.TransactionRepository = (*fakeTransactionRepo)(nil)
