package command

import (
	"context"
	"errors"

	"github.com/bodaboda-insure/core/internal/adapters/providers/email"
	"github.com/bodaboda-insure/core/internal/adapters/providers/sms"
	"github.com/bodaboda-insure/core/internal/adapters/providers/whatsapp"
	"github.com/bodaboda-insure/core/internal/domain/notification"
)

// RiderContact is the destination information the notifier needs for
// each channel — looked up once per notification attempt by the
// caller, since rider contact fields live outside this service's
// write model.
type RiderContact struct {
	PhoneE164 string
	Email     string
}

// errNoSecondary marks a channel with no configured fallback vendor;
// the orchestrator's retry loop treats it as "nothing left to try".
var errNoSecondary = errors.New("notifier: no secondary provider configured for this channel")

// sendFunc adapts every vendor's distinct Send signature to one shape
// the orchestrator's retry/failover loop can drive uniformly. subject
// is ignored by channels that have none (SMS, WhatsApp).
type sendFunc func(ctx context.Context, contact RiderContact, subject, body string) (providerMessageID string, err error)

// providerLeg names one vendor slot (primary or secondary) behind a
// channel, for provider-health cache keys and metrics.
type providerLeg struct {
	name string
	send sendFunc
}

// Notifier wires the primary/secondary vendor pair behind each
// delivery channel.
type Notifier struct {
	SMSPrimary, SMSSecondary           sms.Sender
	WhatsAppPrimary, WhatsAppSecondary whatsapp.Sender
	EmailPrimary, EmailSecondary       email.Sender

	SMSPrimaryName, SMSSecondaryName           string
	WhatsAppPrimaryName, WhatsAppSecondaryName string
	EmailPrimaryName, EmailSecondaryName       string
}

// legs returns channel's primary and secondary provider legs, in
// failover order. A nil secondary sender still returns a leg so the
// orchestrator's provider-health bookkeeping is uniform; its send
// func simply reports errNoSecondary.
func (n Notifier) legs(channel notification.Channel) (primary, secondary providerLeg) {
	switch channel {
	case notification.ChannelSMS:
		return providerLeg{
				name: n.SMSPrimaryName,
				send: func(ctx context.Context, c RiderContact, _, body string) (string, error) {
					return n.SMSPrimary.Send(ctx, c.PhoneE164, body)
				},
			}, providerLeg{
				name: n.SMSSecondaryName,
				send: func(ctx context.Context, c RiderContact, _, body string) (string, error) {
					if n.SMSSecondary == nil {
						return "", errNoSecondary
					}

					return n.SMSSecondary.Send(ctx, c.PhoneE164, body)
				},
			}
	case notification.ChannelWhatsApp:
		return providerLeg{
				name: n.WhatsAppPrimaryName,
				send: func(ctx context.Context, c RiderContact, _, body string) (string, error) {
					return n.WhatsAppPrimary.Send(ctx, c.PhoneE164, body)
				},
			}, providerLeg{
				name: n.WhatsAppSecondaryName,
				send: func(ctx context.Context, c RiderContact, _, body string) (string, error) {
					if n.WhatsAppSecondary == nil {
						return "", errNoSecondary
					}

					return n.WhatsAppSecondary.Send(ctx, c.PhoneE164, body)
				},
			}
	case notification.ChannelEmail:
		return providerLeg{
				name: n.EmailPrimaryName,
				send: func(ctx context.Context, c RiderContact, subject, body string) (string, error) {
					return n.EmailPrimary.Send(ctx, c.Email, subject, body)
				},
			}, providerLeg{
				name: n.EmailSecondaryName,
				send: func(ctx context.Context, c RiderContact, subject, body string) (string, error) {
					if n.EmailSecondary == nil {
						return "", errNoSecondary
					}

					return n.EmailSecondary.Send(ctx, c.Email, subject, body)
				},
			}
	default:
		return providerLeg{}, providerLeg{}
	}
}
