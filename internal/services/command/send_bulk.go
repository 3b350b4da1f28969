package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/adapters/providers/sms"
	"github.com/bodaboda-insure/core/internal/constant"
	"github.com/bodaboda-insure/core/internal/domain/notification"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/pkg/idgen"
)

// BulkRecipient is one destination in a bulk SMS campaign.
type BulkRecipient struct {
	RiderID   uuid.UUID
	PhoneE164 string
}

// SendBulkSMS delivers one rendered message to many riders in a single
// campaign. The whole list goes to the primary SMS vendor first; if
// more than half of it fails there, the failed subset is re-sent
// through the secondary vendor and the results merged. Every recipient
// gets its own Notification row so delivery reports correlate per
// rider.
func (uc *UseCase) SendBulkSMS(ctx context.Context, recipients []BulkRecipient, tmpl notification.Template, vars map[string]string) (delivered, failed int, err error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.send_bulk_sms")
	defer span.End()

	logger := log.FromContext(ctx)

	if uc.Notifier.SMSPrimary == nil {
		return 0, 0, apperr.ValidationError{
			EntityType: "Notification",
			Message:    "no SMS provider configured",
		}
	}

	body, err := renderTemplate(tmpl, vars)
	if err != nil {
		otel.HandleSpanError(&span, "failed to render template", err)
		return 0, 0, err
	}

	now := time.Now().UTC()

	rows := make(map[string]*notification.Notification, len(recipients))
	phones := make([]string, 0, len(recipients))

	for _, r := range recipients {
		n, err := uc.NotificationRepo.Create(ctx, &notification.Notification{
			ID:               idgen.New(),
			RiderID:          r.RiderID,
			Template:         tmpl,
			Priority:         notification.PriorityRoutine,
			Status:           notification.StatusSending,
			AttemptedChannel: notification.ChannelSMS,
			NextAttemptAt:    now,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		if err != nil {
			otel.HandleSpanError(&span, "failed to create notification row", err)
			return 0, 0, err
		}

		rows[r.PhoneE164] = n
		phones = append(phones, r.PhoneE164)
	}

	results := uc.bulkSendVia(ctx, uc.Notifier.SMSPrimary, uc.Notifier.SMSPrimaryName, phones, body)

	var failedPhones []string

	for _, r := range results {
		if r.Err != nil {
			failedPhones = append(failedPhones, r.To)
		}
	}

	if len(failedPhones) > 0 && uc.Notifier.SMSSecondary != nil &&
		float64(len(failedPhones)) > constant.BulkFailoverThreshold*float64(len(phones)) {
		logger.Warnf("bulk sms: %d/%d failed on %s, re-sending failed subset via %s",
			len(failedPhones), len(phones), uc.Notifier.SMSPrimaryName, uc.Notifier.SMSSecondaryName)

		uc.Metrics.RecordFailover()

		retried := uc.bulkSendVia(ctx, uc.Notifier.SMSSecondary, uc.Notifier.SMSSecondaryName, failedPhones, body)

		byPhone := make(map[string]sms.BulkResult, len(retried))
		for _, r := range retried {
			byPhone[r.To] = r
		}

		for i, r := range results {
			if r.Err == nil {
				continue
			}

			if merged, ok := byPhone[r.To]; ok {
				results[i] = merged
			}
		}
	}

	for _, r := range results {
		n, ok := rows[r.To]
		if !ok {
			continue
		}

		status := notification.StatusDelivered
		if r.Err != nil {
			status = notification.StatusFailed
			failed++
		} else {
			delivered++
		}

		if _, err := uc.NotificationRepo.Transition(ctx, n.ID, n.Version, status, notification.ChannelSMS, r.MessageID, time.Time{}, time.Now().UTC()); err != nil {
			logger.Warnf("bulk sms: failed to record outcome for notification %s: %v", log.RedactID(n.ID.String()), err)
		}
	}

	return delivered, failed, nil
}

// bulkSendVia fans body out to phones through sender, using the
// vendor's native bulk call when it has one and a per-recipient loop
// otherwise. A transport-level bulk failure is expanded to one failed
// result per recipient so callers always see the full list.
func (uc *UseCase) bulkSendVia(ctx context.Context, sender sms.Sender, providerName string, phones []string, body string) []sms.BulkResult {
	if bulk, ok := sender.(sms.BulkSender); ok {
		results, err := bulk.SendBulk(ctx, phones, body)
		if err == nil {
			uc.recordBulkOutcomes(providerName, results)
			return results
		}

		results = make([]sms.BulkResult, 0, len(phones))
		for _, p := range phones {
			results = append(results, sms.BulkResult{To: p, Err: err})
		}

		uc.recordBulkOutcomes(providerName, results)

		return results
	}

	results := make([]sms.BulkResult, 0, len(phones))

	for _, p := range phones {
		id, err := sender.Send(ctx, p, body)
		results = append(results, sms.BulkResult{To: p, MessageID: id, Err: err})
	}

	uc.recordBulkOutcomes(providerName, results)

	return results
}

func (uc *UseCase) recordBulkOutcomes(providerName string, results []sms.BulkResult) {
	for _, r := range results {
		if r.Err != nil {
			uc.Metrics.RecordFailed(providerName)
		} else {
			uc.Metrics.RecordSent(providerName, 0)
		}
	}
}
