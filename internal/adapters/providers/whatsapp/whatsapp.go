// Package whatsapp implements the WhatsApp delivery channel via
// Twilio's WhatsApp Business API, which rides the same
// Programmable Messaging endpoint as SMS with a "whatsapp:" URI prefix
// on the to/from numbers.
package whatsapp

import (
	"context"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
)

// Sender is the capability contract for the WhatsApp channel.
type Sender interface {
	Send(ctx context.Context, toE164, body string) (providerMessageID string, err error)
}

// TwilioSender sends WhatsApp messages via Twilio.
type TwilioSender struct {
	client *twilio.RestClient
	from   string // Twilio WhatsApp-enabled sender, e.g. "+14155238886"
}

// NewTwilioSender returns a sender authenticated with accountSID/authToken.
func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioSender{client: client, from: from}
}

// Send implements Sender.
func (t *TwilioSender) Send(ctx context.Context, toE164, body string) (string, error) {
	tracer := otel.FromContext(ctx)
	_, span := tracer.Start(ctx, "whatsapp.twilio.send")
	defer span.End()

	params := &openapi.CreateMessageParams{}
	params.SetTo("whatsapp:" + toE164)
	params.SetFrom("whatsapp:" + t.from)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		otel.HandleSpanError(&span, "whatsapp send failed", err)
		return "", apperr.TransientUpstreamError{Provider: "twilio_whatsapp", Message: "send failed", Err: err}
	}

	if resp.ErrorCode != nil {
		return "", apperr.PermanentUpstreamError{Provider: "twilio_whatsapp", Category: "rejected", Message: *resp.ErrorMessage}
	}

	id := ""
	if resp.Sid != nil {
		id = *resp.Sid
	}

	return id, nil
}

var _ Sender = (*TwilioSender)(nil)
