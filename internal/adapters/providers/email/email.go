// Package email implements the email delivery channel via SendGrid's
// transactional mail API.
package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
)

// Sender is the capability contract for the email channel.
type Sender interface {
	Send(ctx context.Context, toAddress, subject, body string) (providerMessageID string, err error)
}

// SendGridSender sends transactional email via SendGrid.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

// NewSendGridSender returns a sender authenticated with apiKey, sending
// from fromEmail/fromName.
func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// Send implements Sender.
func (s *SendGridSender) Send(ctx context.Context, toAddress, subject, body string) (string, error) {
	tracer := otel.FromContext(ctx)
	_, span := tracer.Start(ctx, "email.sendgrid.send")
	defer span.End()

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail("", toAddress)
	message := mail.NewSingleEmail(from, subject, to, body, "")

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		otel.HandleSpanError(&span, "sendgrid transport error", err)
		return "", apperr.TransientUpstreamError{Provider: "sendgrid", Message: "transport error", Err: err}
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == 429:
		return "", apperr.TransientUpstreamError{Provider: "sendgrid", Message: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return "", apperr.PermanentUpstreamError{Provider: "sendgrid", Category: "rejected", Message: fmt.Sprintf("status %d: %s", resp.StatusCode, resp.Body)}
	}

	messageID := ""
	for _, v := range resp.Headers["X-Message-Id"] {
		messageID = v
	}

	return messageID, nil
}

var _ Sender = (*SendGridSender)(nil)
