// File process_batch.go implements the batch scheduler's core
// algorithm: pick up PENDING_ISSUANCE policies for the current schedule
// window, open or reuse the window's exclusive batch, activate each
// claimed policy under a deterministic policy number, and hand the
// resulting records to the underwriter.
package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/constant"
	"github.com/bodaboda-insure/core/internal/domain/notification"
	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/pkg/idgen"
)

// policyBatchPageSize bounds how many pending policies one batch run
// picks up, so a single run cannot grow unboundedly during a backlog.
const policyBatchPageSize = 500

// UnderwriterRecord is the issuer-facing record one activated policy
// produces. Policy numbers and coverage dates are assigned by this
// service before submission; the underwriter receives them as facts.
type UnderwriterRecord struct {
	PolicyID      uuid.UUID
	PolicyNumber  string
	RiderID       uuid.UUID
	PolicyType    string
	PremiumMinor  int64
	EffectiveDate time.Time
	ExpiryDate    time.Time
}

// Underwriter receives the activated-policy records each batch run
// produces. Submission is a hand-off of already-committed facts: an
// unavailable underwriter delays the record transfer, never a policy's
// activation, and the next batch or retry sweep re-submits.
type Underwriter interface {
	SubmitRecords(ctx context.Context, batchNumber string, records []UnderwriterRecord) error
}

// batchScheduleSuffixes maps each schedule to the short slot tag its
// batch number carries.
var batchScheduleSuffixes = map[constant.BatchSchedule]string{
	constant.Batch1:      "1",
	constant.Batch2:      "2",
	constant.Batch3:      "3",
	constant.BatchManual: "M",
}

// batchNumberFor derives the deterministic batch identifier from the
// run's date and schedule slot: two runs of the same (date, schedule)
// always produce the same number.
func batchNumberFor(schedule string, windowStart time.Time) string {
	suffix, ok := batchScheduleSuffixes[constant.BatchSchedule(schedule)]
	if !ok {
		suffix = "M"
	}

	return fmt.Sprintf("B%s-%s", windowStart.UTC().Format("20060102"), suffix)
}

// policyNumberFor mints a member policy's number from its batch's
// number and its sequence position within the batch.
func policyNumberFor(batchNumber string, sequence int) string {
	return fmt.Sprintf("POL-%s-%04d", batchNumber, sequence)
}

// batchSequence assigns every member of a batch its stable sequence
// position: members are ordered by triggering transaction id, which is
// time-ordered, so the ordering never changes between a run and its
// retries and an already-activated member keeps its number.
func batchSequence(members []*policy.Policy) map[uuid.UUID]int {
	ordered := make([]*policy.Policy, len(members))
	copy(ordered, members)

	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].TriggeringTransactionID.String() < ordered[j].TriggeringTransactionID.String()
	})

	seq := make(map[uuid.UUID]int, len(ordered))
	for i, p := range ordered {
		seq[p.ID] = i + 1
	}

	return seq
}

// coverageDuration returns the number of months a policy of kind t
// covers.
func coverageDuration(t policy.Type) int {
	if t == policy.TypeEleven {
		return constant.ElevenMonthPolicyMonths
	}

	return constant.OneMonthPolicyMonths
}

// ProcessBatch runs one pass of the batch scheduler for the given
// schedule window:
//  1. find or open the window's exclusive batch
//  2. assign pending-issuance policies settled in the window to it
//  3. activate each member under its deterministic policy number,
//     posting the premium-earned journal entry per activation
//  4. mark the batch COMPLETED, or COMPLETED_WITH_ERRORS when some
//     members failed and remain QUEUED for the retry sweep
//  5. hand the activated records to the underwriter, best-effort
func (uc *UseCase) ProcessBatch(ctx context.Context, underwriter Underwriter, schedule string, windowStart time.Time) (*policy.PolicyBatch, error) {
	logger := log.FromContext(ctx)
	tracer := otel.FromContext(ctx)

	ctx, span := tracer.Start(ctx, "command.process_batch")
	defer span.End()

	batch, err := uc.BatchRepo.FindOpenForSchedule(ctx, schedule, windowStart)
	if err != nil {
		var nf apperr.NotFoundError
		if !errors.As(err, &nf) {
			otel.HandleSpanError(&span, "failed to find open batch", err)
			return nil, err
		}

		now := time.Now().UTC()
		batch, err = uc.BatchRepo.Create(ctx, &policy.PolicyBatch{
			ID:          idgen.New(),
			Schedule:    schedule,
			BatchNumber: batchNumberFor(schedule, windowStart),
			WindowStart: windowStart,
			Status:      policy.BatchOpen,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			otel.HandleSpanError(&span, "failed to create batch", err)
			return nil, err
		}
	}

	windowDuration, ok := constant.BatchWindowDuration[constant.BatchSchedule(schedule)]
	if !ok {
		windowDuration = 24 * time.Hour
	}

	windowBegin := windowStart.Add(-windowDuration)

	pending, err := uc.PolicyRepo.ListPendingIssuance(ctx, windowBegin, windowStart, policyBatchPageSize)
	if err != nil {
		otel.HandleSpanError(&span, "failed to list pending-issuance policies", err)
		return nil, err
	}

	for _, p := range pending {
		if _, err := uc.PolicyRepo.AssignToBatch(ctx, p.ID, batch.ID, p.Version); err != nil {
			if apperr.IsRetryableConflict(err) {
				continue
			}

			otel.HandleSpanError(&span, "failed to assign policy to batch", err)
			return nil, err
		}
	}

	// members includes policies claimed by a previous run of this same
	// batch that crashed mid-activation, so their numbers are minted
	// from the same stable sequence.
	members, err := uc.PolicyRepo.ListByBatchID(ctx, batch.ID)
	if err != nil {
		otel.HandleSpanError(&span, "failed to list batch members", err)
		return nil, err
	}

	if len(members) == 0 {
		logger.Infof("batch %s: no pending-issuance policies this run", batch.BatchNumber)
		return batch, nil
	}

	batch, err = uc.BatchRepo.Transition(ctx, batch.ID, batch.Version, policy.BatchProcessing, "", time.Now().UTC())
	if err != nil {
		otel.HandleSpanError(&span, "failed to transition batch to processing", err)
		return nil, err
	}

	activated, failures := uc.activateMembers(ctx, batch, members, windowStart)

	status := policy.BatchCompleted
	reason := ""

	if failures > 0 {
		status = policy.BatchCompletedWithErrors
		reason = fmt.Sprintf("%d of %d policies failed to activate", failures, len(members))
	}

	completed, err := uc.BatchRepo.Transition(ctx, batch.ID, batch.Version, status, reason, time.Now().UTC())
	if err != nil {
		otel.HandleSpanError(&span, "failed to close batch", err)
		return nil, err
	}

	uc.submitUnderwriterRecords(ctx, underwriter, completed, activated)

	return completed, nil
}

// activateMembers activates every still-QUEUED member of batch in
// ascending settlement order: deterministic number, coverage window
// from the batch's window start, premium-earned journal entry, rider
// notice. A member that fails stays QUEUED and is counted, never
// aborting the rest of the run.
func (uc *UseCase) activateMembers(ctx context.Context, batch *policy.PolicyBatch, members []*policy.Policy, windowStart time.Time) (activated []*policy.Policy, failures int) {
	logger := log.FromContext(ctx)

	seq := batchSequence(members)

	for _, member := range members {
		if member.Status != policy.StatusQueued {
			continue
		}

		number := policyNumberFor(batch.BatchNumber, seq[member.ID])

		effectiveDate := windowStart
		expiryDate := effectiveDate.AddDate(0, coverageDuration(member.Type), 0)

		p, err := uc.PolicyRepo.Activate(ctx, member.ID, member.Version, number, effectiveDate, expiryDate, freeLookEndsAt(effectiveDate))
		if err != nil {
			if apperr.IsRetryableConflict(err) {
				// another worker already activated it
				continue
			}

			failures++
			logger.Errorf("failed to activate policy %s: %v", log.RedactID(member.ID.String()), err)

			continue
		}

		if err := uc.postPolicyActivationJournalEntry(ctx, p.ID, p.PremiumAmount); err != nil {
			failures++
			logger.Errorf("failed to post activation journal entry for policy %s: %v", log.RedactID(p.ID.String()), err)

			continue
		}

		activated = append(activated, p)

		uc.notifyPolicyActive(ctx, p)
	}

	return activated, failures
}

// submitUnderwriterRecords hands the run's activated records to the
// insurer. Best-effort: activation has already committed, so a failed
// submission is logged and re-attempted by the next retry sweep rather
// than unwinding anything.
func (uc *UseCase) submitUnderwriterRecords(ctx context.Context, underwriter Underwriter, batch *policy.PolicyBatch, activated []*policy.Policy) {
	if underwriter == nil || len(activated) == 0 {
		return
	}

	records := make([]UnderwriterRecord, 0, len(activated))

	for _, p := range activated {
		records = append(records, UnderwriterRecord{
			PolicyID:      p.ID,
			PolicyNumber:  p.PolicyNumber,
			RiderID:       p.RiderID,
			PolicyType:    string(p.Type),
			PremiumMinor:  int64(p.PremiumAmount),
			EffectiveDate: p.EffectiveDate,
			ExpiryDate:    p.ExpiryDate,
		})
	}

	if err := underwriter.SubmitRecords(ctx, batch.BatchNumber, records); err != nil {
		log.FromContext(ctx).Errorf("failed to submit %d records for batch %s: %v", len(records), batch.BatchNumber, err)
	}
}

// RetryFailed re-runs activation for batches that previously failed or
// completed with errors and are still under the retry ceiling; only
// members still QUEUED are re-attempted, each under the same number the
// stable batch sequence gave it originally.
func (uc *UseCase) RetryFailed(ctx context.Context, underwriter Underwriter) ([]*policy.PolicyBatch, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.retry_failed_batches")
	defer span.End()

	retryable, err := uc.BatchRepo.ListRetryable(ctx, uc.Constants.MaxBatchRetries, policyBatchPageSize)
	if err != nil {
		otel.HandleSpanError(&span, "failed to list retryable batches", err)
		return nil, err
	}

	out := make([]*policy.PolicyBatch, 0, len(retryable))

	for _, b := range retryable {
		result, err := uc.retryOneBatch(ctx, underwriter, b)
		if err != nil {
			log.FromContext(ctx).Errorf("retry failed for batch %s: %v", log.RedactID(b.ID.String()), err)
			continue
		}

		out = append(out, result)
	}

	return out, nil
}

func (uc *UseCase) retryOneBatch(ctx context.Context, underwriter Underwriter, b *policy.PolicyBatch) (*policy.PolicyBatch, error) {
	members, err := uc.PolicyRepo.ListByBatchID(ctx, b.ID)
	if err != nil {
		return nil, err
	}

	remaining := 0

	for _, p := range members {
		if p.Status == policy.StatusQueued {
			remaining++
		}
	}

	if remaining == 0 {
		return uc.BatchRepo.Transition(ctx, b.ID, b.Version, policy.BatchCompleted, "", time.Now().UTC())
	}

	activated, failures := uc.activateMembers(ctx, b, members, b.WindowStart)

	status := policy.BatchCompleted
	reason := ""

	if failures > 0 {
		status = policy.BatchCompletedWithErrors
		reason = fmt.Sprintf("%d of %d retried policies failed to activate", failures, remaining)
	}

	completed, err := uc.BatchRepo.Transition(ctx, b.ID, b.Version, status, reason, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	uc.submitUnderwriterRecords(ctx, underwriter, completed, activated)

	return completed, nil
}

// freeLookEndsAt opens the cancellation window from a policy's
// effective date.
func freeLookEndsAt(effectiveDate time.Time) time.Time {
	return effectiveDate.AddDate(0, 0, constant.FreeLookDays)
}

// notifyPolicyActive generates p's certificate and sends the
// POLICY_ACTIVE notification. Best-effort: a rider lookup
// or delivery failure is logged and swallowed, never failing the
// batch run that already committed the activation.
func (uc *UseCase) notifyPolicyActive(ctx context.Context, p *policy.Policy) {
	if uc.Notifier.SMSPrimary == nil {
		return
	}

	r, err := uc.RiderRepo.Find(ctx, p.RiderID)
	if err != nil {
		log.FromContext(ctx).Warnf("failed to look up rider %s for policy-active notice: %v", log.RedactID(p.RiderID.String()), err)
		return
	}

	certificateURL := uc.generateCertificate(ctx, p)

	_, err = uc.SendNotification(ctx, p.RiderID, notification.ChannelSMS, notification.TemplatePolicyActive,
		RiderContact{PhoneE164: r.Phone}, map[string]string{
			"name":            r.Phone,
			"policy_number":   p.PolicyNumber,
			"start":           p.EffectiveDate.Format("2006-01-02"),
			"end":             p.ExpiryDate.Format("2006-01-02"),
			"certificate_url": certificateURL,
		}, notification.PriorityRoutine, nil)
	if err != nil {
		log.FromContext(ctx).Warnf("failed to send policy-active notification for policy %s: %v", log.RedactID(p.ID.String()), err)
	}
}
