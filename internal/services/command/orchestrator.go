// File orchestrator.go implements the notification orchestrator:
// template render, per-rider quiet-hour deferral, and bounded-retry
// provider failover (primary vendor, then secondary, each retried up
// to Constants.MaxNotificationRetries with exponential backoff).
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/bodaboda-insure/core/internal/constant"
	"github.com/bodaboda-insure/core/internal/domain/notification"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/pkg/idgen"
)

// templateBodies holds each business event's rendered message.
// Variables are substituted with a simple {NAME} placeholder scheme
// rather than text/template, since every template here is a flat
// one-line SMS/WhatsApp/email body with no control flow.
var templateBodies = map[notification.Template]string{
	notification.TemplateDepositReceived:    "Asante {NAME}, we've received your deposit of KES {AMOUNT}. Your policy is being processed.",
	notification.TemplateDailyReminder:      "Hi {NAME}, daily payment {COUNT} of 30 received. Keep it up!",
	notification.TemplatePolicyActive:       "Congratulations {NAME}, your policy {POLICY_NUMBER} is now active, covering {START} to {END}.",
	notification.TemplatePaymentFailed:      "Hi {NAME}, your payment of KES {AMOUNT} could not be completed. Please try again.",
	notification.TemplatePolicyCancelled:    "Hi {NAME}, your policy {POLICY_NUMBER} has been cancelled. A refund of KES {REFUND_AMOUNT} is being processed.",
	notification.TemplateManualReviewNeeded: "Hi {NAME}, we're still confirming a recent payment. Our team will follow up if we need anything from you.",
}

// renderTemplate substitutes every {KEY} placeholder in tmpl's body
// with vars[key], failing with a NO_TEMPLATE validation error if tmpl
// has no registered body.
func renderTemplate(tmpl notification.Template, vars map[string]string) (string, error) {
	body, ok := templateBodies[tmpl]
	if !ok {
		return "", apperr.ValidationError{
			EntityType: "Notification",
			Code:       "NO_TEMPLATE",
			Message:    fmt.Sprintf("no template registered for %s", tmpl),
		}
	}

	for key, value := range vars {
		body = strings.ReplaceAll(body, "{"+strings.ToUpper(key)+"}", value)
	}

	return body, nil
}

// SendNotification renders tmpl, persists a Notification row, and
// either defers it (scheduled-for in the future, or quiet hours and
// priority != URGENT) or attempts delivery immediately.
func (uc *UseCase) SendNotification(ctx context.Context, riderID uuid.UUID, channel notification.Channel, tmpl notification.Template, contact RiderContact, vars map[string]string, priority notification.Priority, scheduledFor *time.Time) (*notification.Notification, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.send_notification")
	defer span.End()

	body, err := renderTemplate(tmpl, vars)
	if err != nil {
		otel.HandleSpanError(&span, "failed to render template", err)
		return nil, err
	}

	now := time.Now().UTC()

	status := notification.StatusQueued
	nextAttempt := now

	if uc.Suppression != nil {
		suppressed, err := uc.Suppression.IsSuppressed(ctx, string(channel), riderID)
		if err != nil {
			log.FromContext(ctx).Warnf("suppression check failed for rider %s, proceeding: %v", log.RedactID(riderID.String()), err)
		} else if suppressed {
			status = notification.StatusSkipped
		}
	}

	switch {
	case scheduledFor != nil && scheduledFor.After(now):
		nextAttempt = *scheduledFor
	case priority != notification.PriorityUrgent && uc.inQuietHours(now):
		status = notification.StatusDeferred
		nextAttempt = uc.nextQuietHoursEnd(now)
	}

	n := &notification.Notification{
		ID:               idgen.New(),
		RiderID:          riderID,
		Template:         tmpl,
		Priority:         priority,
		Status:           status,
		AttemptedChannel: channel,
		NextAttemptAt:    nextAttempt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := uc.NotificationRepo.Create(ctx, n)
	if err != nil {
		otel.HandleSpanError(&span, "failed to create notification", err)
		return nil, err
	}

	if created.Status != notification.StatusQueued || created.NextAttemptAt.After(now) {
		return created, nil
	}

	return uc.attemptDelivery(ctx, created, contact, body)
}

// ProcessDueNotifications sweeps every QUEUED-and-due or
// past-quiet-hours-DEFERRED notification and attempts delivery.
// resolveContact looks up the destination for a notification's rider;
// callers inject it since rider contact fields live outside this
// service's write model.
func (uc *UseCase) ProcessDueNotifications(ctx context.Context, limit int, resolveContact func(context.Context, uuid.UUID) (RiderContact, error)) (int, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.process_due_notifications")
	defer span.End()

	logger := log.FromContext(ctx)

	now := time.Now().UTC()

	due, err := uc.NotificationRepo.ListDue(ctx, now, limit)
	if err != nil {
		otel.HandleSpanError(&span, "failed to list due notifications", err)
		return 0, err
	}

	attempted := 0

	for _, n := range due {
		if now.Sub(n.CreatedAt) > constant.NotificationTTL {
			if _, err := uc.NotificationRepo.Transition(ctx, n.ID, n.Version, notification.StatusExpired, n.AttemptedChannel, "", time.Time{}, now); err != nil {
				logger.Warnf("failed to expire notification %s: %v", log.RedactID(n.ID.String()), err)
			}

			continue
		}

		contact, err := resolveContact(ctx, n.RiderID)
		if err != nil {
			logger.Warnf("failed to resolve contact for rider %s: %v", log.RedactID(n.RiderID.String()), err)
			continue
		}

		body, err := renderTemplate(n.Template, nil)
		if err != nil {
			logger.Warnf("notification %s: %v", log.RedactID(n.ID.String()), err)
			continue
		}

		if _, err := uc.attemptDelivery(ctx, n, contact, body); err != nil {
			logger.Warnf("delivery attempt failed for notification %s: %v", log.RedactID(n.ID.String()), err)
		}

		attempted++
	}

	return attempted, nil
}

// attemptDelivery runs the failover delivery algorithm: try the
// channel's primary provider with bounded exponential-backoff
// retries, then its secondary, recording the final outcome on n.
func (uc *UseCase) attemptDelivery(ctx context.Context, n *notification.Notification, contact RiderContact, body string) (*notification.Notification, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.attempt_delivery")
	defer span.End()

	primary, secondary := uc.Notifier.legs(n.AttemptedChannel)

	subject := ""
	if n.AttemptedChannel == notification.ChannelEmail {
		subject = subjectForTemplate(n.Template)
	}

	legs := []providerLeg{primary, secondary}

	var lastErr error

	lastLeg := ""

	for i, leg := range legs {
		if leg.name == "" || leg.send == nil {
			continue
		}

		if uc.ProviderHealth != nil {
			if bad, _ := uc.ProviderHealth.IsBad(ctx, leg.name); bad {
				lastErr = fmt.Errorf("provider %s marked unhealthy, skipping", leg.name)
				continue
			}
		}

		if i > 0 {
			uc.Metrics.RecordFailover()
		}

		lastLeg = leg.name

		started := time.Now()

		msgID, err := uc.retryProvider(ctx, leg, contact, subject, body)
		if err == nil {
			uc.Metrics.RecordSent(leg.name, time.Since(started))

			return uc.NotificationRepo.Transition(ctx, n.ID, n.Version, notification.StatusDelivered, n.AttemptedChannel, msgID, time.Time{}, time.Now().UTC())
		}

		lastErr = err

		if uc.ProviderHealth != nil {
			_ = uc.ProviderHealth.MarkBad(ctx, leg.name)
		}

		log.FromContext(ctx).Warnf("provider %s exhausted for notification %s (attempt %d/%d legs): %v", leg.name, log.RedactID(n.ID.String()), i+1, len(legs), err)
	}

	uc.Metrics.RecordFailed(lastLeg)

	otel.HandleSpanError(&span, "notification delivery exhausted both providers", lastErr)

	return uc.NotificationRepo.Transition(ctx, n.ID, n.Version, notification.StatusExhausted, n.AttemptedChannel, "", time.Time{}, time.Now().UTC())
}

// retryProvider attempts leg up to 1+MaxNotificationRetries times with
// base x 2^(attempt-1) backoff, stopping early on a
// PermanentUpstreamError.
func (uc *UseCase) retryProvider(ctx context.Context, leg providerLeg, contact RiderContact, subject, body string) (string, error) {
	maxRetries := uc.Constants.MaxNotificationRetries
	if maxRetries <= 0 {
		maxRetries = constant.NotificationMaxRetries
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = constant.NotificationRetryBaseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(maxRetries)), ctx)

	var msgID string

	attempt := 0

	err := backoff.Retry(func() error {
		attempt++
		if attempt > 1 {
			uc.Metrics.RecordRetry()
		}

		id, err := leg.send(ctx, contact, subject, body)
		if err != nil {
			var permanent apperr.PermanentUpstreamError
			if errors.As(err, &permanent) {
				return backoff.Permanent(err)
			}

			return err
		}

		msgID = id

		return nil
	}, bounded)

	if err != nil {
		if permanent, ok := err.(*backoff.PermanentError); ok {
			return "", permanent.Unwrap()
		}

		return "", err
	}

	return msgID, nil
}

// bounce kinds a vendor webhook may report; a hard bounce or a
// complaint puts the recipient on the channel's suppression list.
const (
	BounceHard      = "HARD"
	BounceComplaint = "COMPLAINT"
)

// HandleDeliveryReport ingests a provider delivery-status webhook,
// correlating by provider message id. A hard bounce or complaint also
// suppresses the recipient on that channel so future sends skip them.
func (uc *UseCase) HandleDeliveryReport(ctx context.Context, providerMessageID string, delivered bool, bounceKind string) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.handle_delivery_report")
	defer span.End()

	n, err := uc.NotificationRepo.FindByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		otel.HandleSpanError(&span, "failed to find notification by provider message id", err)
		return err
	}

	to := notification.StatusFailed
	if delivered {
		to = notification.StatusDelivered
	}

	if _, err := uc.NotificationRepo.Transition(ctx, n.ID, n.Version, to, n.AttemptedChannel, providerMessageID, time.Time{}, time.Now().UTC()); err != nil {
		return err
	}

	if uc.Suppression != nil && (bounceKind == BounceHard || bounceKind == BounceComplaint) {
		if err := uc.Suppression.Suppress(ctx, string(n.AttemptedChannel), n.RiderID, bounceKind); err != nil {
			log.FromContext(ctx).Warnf("failed to suppress rider %s on %s: %v", log.RedactID(n.RiderID.String()), n.AttemptedChannel, err)
		}
	}

	return nil
}

func subjectForTemplate(tmpl notification.Template) string {
	switch tmpl {
	case notification.TemplateDepositReceived:
		return "Deposit received"
	case notification.TemplateDailyReminder:
		return "Daily payment received"
	case notification.TemplatePolicyActive:
		return "Your policy is active"
	case notification.TemplatePaymentFailed:
		return "Payment could not be completed"
	case notification.TemplatePolicyCancelled:
		return "Policy cancelled"
	case notification.TemplateManualReviewNeeded:
		return "We're reviewing your payment"
	default:
		return "Notification"
	}
}

// inQuietHours reports whether t falls inside the configured quiet
// window, handling the midnight-wrapping case (e.g. 22:00-06:00).
func (uc *UseCase) inQuietHours(t time.Time) bool {
	loc := uc.Constants.QuietHoursZone
	if loc == nil {
		loc = time.UTC
	}

	start, end := uc.Constants.QuietHoursStart, uc.Constants.QuietHoursEnd
	if start == end {
		return false
	}

	hour := t.In(loc).Hour()

	if start < end {
		return hour >= start && hour < end
	}

	return hour >= start || hour < end
}

// nextQuietHoursEnd returns the next wall-clock quiet_hours_end at or
// after t, in UTC.
func (uc *UseCase) nextQuietHoursEnd(t time.Time) time.Time {
	loc := uc.Constants.QuietHoursZone
	if loc == nil {
		loc = time.UTC
	}

	local := t.In(loc)
	end := uc.Constants.QuietHoursEnd

	candidate := time.Date(local.Year(), local.Month(), local.Day(), end, 0, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}

	return candidate.UTC()
}
