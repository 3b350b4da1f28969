package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodaboda-insure/core/internal/domain/notification"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/pkg/idgen"
)

// phoneSelectiveSender fails only for the phones in failFor, letting
// bulk tests steer the failed fraction above or below the failover
// threshold.
type phoneSelectiveSender struct {
	failFor map[string]bool
	calls   int
}

func (s *phoneSelectiveSender) Send(_ context.Context, toE164, _ string) (string, error) {
	s.calls++

	if s.failFor[toE164] {
		return "", apperr.PermanentUpstreamError{Provider: "fake", Category: "rejected"}
	}

	return "msg-" + toE164, nil
}

func bulkRecipients(phones ...string) []BulkRecipient {
	out := make([]BulkRecipient, 0, len(phones))
	for _, p := range phones {
		out = append(out, BulkRecipient{RiderID: idgen.New(), PhoneE164: p})
	}

	return out
}

func TestSendBulkSMS_AllDeliveredOnPrimary(t *testing.T) {
	uc, notifications := newOrchestratorTestUseCase()
	uc.Metrics = NewDeliveryMetrics()
	uc.Notifier = Notifier{
		SMSPrimary:     &phoneSelectiveSender{},
		SMSPrimaryName: "twilio",
	}

	delivered, failed, err := uc.SendBulkSMS(context.Background(),
		bulkRecipients("+254700000001", "+254700000002", "+254700000003"),
		notification.TemplateDailyReminder, map[string]string{"name": "Juma", "count": "3"})
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	assert.Equal(t, 0, failed)

	for _, n := range notifications.rows {
		assert.Equal(t, notification.StatusDelivered, n.Status)
	}

	assert.Zero(t, uc.Metrics.Snapshot().Failovers)
}

func TestSendBulkSMS_MajorityFailureResendsFailedSubsetOnSecondary(t *testing.T) {
	uc, _ := newOrchestratorTestUseCase()
	uc.Metrics = NewDeliveryMetrics()

	primary := &phoneSelectiveSender{failFor: map[string]bool{
		"+254700000001": true,
		"+254700000002": true,
	}}
	secondary := &phoneSelectiveSender{}

	uc.Notifier = Notifier{
		SMSPrimary:       primary,
		SMSPrimaryName:   "twilio",
		SMSSecondary:     secondary,
		SMSSecondaryName: "africastalking",
	}

	delivered, failed, err := uc.SendBulkSMS(context.Background(),
		bulkRecipients("+254700000001", "+254700000002", "+254700000003"),
		notification.TemplatePolicyActive, map[string]string{"name": "Juma", "policy_number": "P-1", "start": "x", "end": "y"})
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	assert.Equal(t, 0, failed)

	assert.Equal(t, 2, secondary.calls, "only the failed subset goes to the secondary")

	snap := uc.Metrics.Snapshot()
	assert.Equal(t, int64(1), snap.Failovers)
}

func TestSendBulkSMS_MinorityFailureStaysOnPrimary(t *testing.T) {
	uc, _ := newOrchestratorTestUseCase()
	uc.Metrics = NewDeliveryMetrics()

	primary := &phoneSelectiveSender{failFor: map[string]bool{"+254700000001": true}}
	secondary := &phoneSelectiveSender{}

	uc.Notifier = Notifier{
		SMSPrimary:       primary,
		SMSPrimaryName:   "twilio",
		SMSSecondary:     secondary,
		SMSSecondaryName: "africastalking",
	}

	delivered, failed, err := uc.SendBulkSMS(context.Background(),
		bulkRecipients("+254700000001", "+254700000002", "+254700000003"),
		notification.TemplateDailyReminder, map[string]string{"name": "Juma", "count": "7"})
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 1, failed)

	assert.Zero(t, secondary.calls, "a below-threshold failure fraction must not fail over")
	assert.Zero(t, uc.Metrics.Snapshot().Failovers)
}
