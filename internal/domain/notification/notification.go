// Package notification models the rider-facing Notification entity
// and its delivery-channel abstractions: the orchestrator fails over
// across vendors, defers non-urgent sends across quiet hours, and
// retries on a bounded backoff schedule.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Channel enumerates the delivery channels. The orchestrator does not
// fail over between channels, only between the two vendors of one
// channel.
type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelEmail    Channel = "EMAIL"
)

// Priority distinguishes urgent (quiet-hours-exempt) from routine
// notifications.
type Priority string

const (
	PriorityUrgent  Priority = "URGENT"
	PriorityRoutine Priority = "ROUTINE"
)

// Status enumerates the Notification delivery lifecycle.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusDeferred  Status = "DEFERRED" // held for quiet hours
	StatusSending   Status = "SENDING"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
	StatusExhausted Status = "EXHAUSTED" // retries exhausted, no channel succeeded
	StatusExpired   Status = "EXPIRED"   // aged past the delivery TTL before any attempt succeeded
	StatusSkipped   Status = "SKIPPED"   // recipient suppressed (hard bounce or complaint on this channel)
)

// Template names a message template; bodies are rendered by the
// orchestrator from a per-template, per-language map.
type Template string

const (
	TemplateDepositReceived     Template = "DEPOSIT_RECEIVED"
	TemplateDailyReminder       Template = "DAILY_REMINDER"
	TemplatePolicyActive        Template = "POLICY_ACTIVE"
	TemplatePaymentFailed       Template = "PAYMENT_FAILED"
	TemplatePolicyCancelled     Template = "POLICY_CANCELLED"
	TemplateManualReviewNeeded  Template = "MANUAL_REVIEW_NEEDED"
)

// Notification is one message owed to a rider.
type Notification struct {
	ID               uuid.UUID
	RiderID          uuid.UUID
	Template         Template
	Priority         Priority
	Status           Status
	AttemptedChannel Channel
	AttemptCount     int
	NextAttemptAt    time.Time
	DeliveredAt      *time.Time
	ProviderMessageID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int64
}

// Repository is the persistence contract for Notification.
type Repository interface {
	Create(ctx context.Context, n *Notification) (*Notification, error)
	Find(ctx context.Context, id uuid.UUID) (*Notification, error)

	// ListDue returns notifications ready to attempt (QUEUED and due,
	// or DEFERRED past quiet hours), for the orchestrator's sweep.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Notification, error)

	Transition(ctx context.Context, id uuid.UUID, version int64, to Status, channel Channel, providerMessageID string, nextAttemptAt time.Time, now time.Time) (*Notification, error)

	// FindByProviderMessageID correlates an inbound delivery-report
	// webhook back to its Notification.
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (*Notification, error)
}
