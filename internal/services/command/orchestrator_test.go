package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodaboda-insure/core/internal/domain/notification"
	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/pkg/idgen"
)

func newOrchestratorTestUseCase() (*UseCase, *fakeNotificationRepo) {
	notifications := newFakeNotificationRepo()

	return &UseCase{
		NotificationRepo: notifications,
		Constants: Constants{
			MaxNotificationRetries: 2,
			QuietHoursStart:        22,
			QuietHoursEnd:          6,
			QuietHoursZone:         time.UTC,
		},
	}, notifications
}

func TestSendNotification_DeliversOnHealthyPrimary(t *testing.T) {
	uc, _ := newOrchestratorTestUseCase()
	uc.Notifier = Notifier{
		SMSPrimary:     &fakeSender{},
		SMSPrimaryName: "twilio",
	}
	// an empty quiet window keeps the outcome independent of the wall clock
	uc.Constants.QuietHoursStart, uc.Constants.QuietHoursEnd = 0, 0

	n, err := uc.SendNotification(context.Background(), idgen.New(), notification.ChannelSMS, notification.TemplateDepositReceived,
		RiderContact{PhoneE164: "+254712345678"}, map[string]string{"name": "Juma", "amount": "1048.00"}, notification.PriorityRoutine, nil)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDelivered, n.Status)
}

func TestSendNotification_FailsOverToSecondaryAfterPrimaryExhausted(t *testing.T) {
	uc, _ := newOrchestratorTestUseCase()
	uc.Notifier = Notifier{
		SMSPrimary:       &fakeSender{failures: 99},
		SMSPrimaryName:   "twilio",
		SMSSecondary:     &fakeSender{},
		SMSSecondaryName: "africastalking",
	}
	// an empty quiet window keeps the outcome independent of the wall clock
	uc.Constants.QuietHoursStart, uc.Constants.QuietHoursEnd = 0, 0

	n, err := uc.SendNotification(context.Background(), idgen.New(), notification.ChannelSMS, notification.TemplateDailyReminder,
		RiderContact{PhoneE164: "+254712345678"}, map[string]string{"name": "Juma", "count": "5"}, notification.PriorityRoutine, nil)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDelivered, n.Status)
}

func TestSendNotification_ExhaustsBothProviders(t *testing.T) {
	uc, _ := newOrchestratorTestUseCase()
	uc.Notifier = Notifier{
		SMSPrimary:       &fakeSender{failures: 99},
		SMSPrimaryName:   "twilio",
		SMSSecondary:     &fakeSender{failures: 99},
		SMSSecondaryName: "africastalking",
	}
	// an empty quiet window keeps the outcome independent of the wall clock
	uc.Constants.QuietHoursStart, uc.Constants.QuietHoursEnd = 0, 0

	n, err := uc.SendNotification(context.Background(), idgen.New(), notification.ChannelSMS, notification.TemplatePaymentFailed,
		RiderContact{PhoneE164: "+254712345678"}, map[string]string{"name": "Juma", "amount": "87.00"}, notification.PriorityRoutine, nil)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusExhausted, n.Status)
}

func TestSendNotification_StopsRetryingOnPermanentProviderError(t *testing.T) {
	uc, _ := newOrchestratorTestUseCase()
	sender := &fakeSender{permanent: apperr.PermanentUpstreamError{Provider: "twilio", Category: "invalid_number"}}
	uc.Notifier = Notifier{
		SMSPrimary:     sender,
		SMSPrimaryName: "twilio",
	}
	// an empty quiet window keeps the outcome independent of the wall clock
	uc.Constants.QuietHoursStart, uc.Constants.QuietHoursEnd = 0, 0

	_, err := uc.SendNotification(context.Background(), idgen.New(), notification.ChannelSMS, notification.TemplateDepositReceived,
		RiderContact{PhoneE164: "+254712345678"}, map[string]string{"name": "Juma", "amount": "1048.00"}, notification.PriorityRoutine, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, sender.calls, "a permanent upstream error must not be retried")
}

func TestSendNotification_RoutineDuringQuietHoursIsDeferred(t *testing.T) {
	uc, _ := newOrchestratorTestUseCase()
	uc.Notifier = Notifier{SMSPrimary: &fakeSender{}, SMSPrimaryName: "twilio"}

	// 23:00 UTC falls inside the 22:00-06:00 quiet window.
	quietNow := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	if !uc.inQuietHours(quietNow) {
		t.Fatal("test setup: expected 23:00 UTC to be inside quiet hours")
	}

	// SendNotification reads time.Now itself, so a window covering every
	// hour puts that read inside quiet hours.
	uc.Constants.QuietHoursStart, uc.Constants.QuietHoursEnd = 0, 24

	n, err := uc.SendNotification(context.Background(), idgen.New(), notification.ChannelSMS, notification.TemplateDepositReceived,
		RiderContact{PhoneE164: "+254712345678"}, map[string]string{"name": "Juma", "amount": "1048.00"}, notification.PriorityRoutine, nil)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDeferred, n.Status)
	assert.True(t, n.NextAttemptAt.After(time.Now().UTC()))
}

func TestRenderTemplate_MissingTemplateFails(t *testing.T) {
	_, err := renderTemplate(notification.Template("NOT_REGISTERED"), nil)
	require.Error(t, err)

	var ve apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "NO_TEMPLATE", ve.Code)
}

func TestInQuietHours_HandlesMidnightWrap(t *testing.T) {
	uc, _ := newOrchestratorTestUseCase()

	assert.True(t, uc.inQuietHours(time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)))
	assert.True(t, uc.inQuietHours(time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)))
	assert.False(t, uc.inQuietHours(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))
}
