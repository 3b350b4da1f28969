package sms

import (
	"context"
	"fmt"
	"strconv"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/bodaboda-insure/core/internal/platform/otel"
)

// TwilioSender sends SMS via the Twilio Programmable Messaging API.
type TwilioSender struct {
	client     *twilio.RestClient
	accountSID string
	from       string
}

// NewTwilioSender returns a sender authenticated with accountSID/authToken,
// sending from the given Twilio-provisioned number.
func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioSender{client: client, accountSID: accountSID, from: from}
}

// Send implements Sender.
func (t *TwilioSender) Send(ctx context.Context, toE164, body string) (string, error) {
	tracer := otel.FromContext(ctx)
	_, span := tracer.Start(ctx, "sms.twilio.send")
	defer span.End()

	params := &openapi.CreateMessageParams{}
	params.SetTo(toE164)
	params.SetFrom(t.from)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		otel.HandleSpanError(&span, "twilio send failed", err)
		return "", classify("twilio_sms", 0, err)
	}

	if resp.ErrorCode != nil {
		return "", classify("twilio_sms", 400, err)
	}

	id := ""
	if resp.Sid != nil {
		id = *resp.Sid
	}

	return id, nil
}

// SendBulk implements BulkSender. Twilio's Messaging API is
// one-message-per-call, so bulk is a per-recipient loop; a recipient
// failure lands in its BulkResult rather than aborting the rest.
func (t *TwilioSender) SendBulk(ctx context.Context, toE164 []string, body string) ([]BulkResult, error) {
	results := make([]BulkResult, 0, len(toE164))

	for _, to := range toE164 {
		id, err := t.Send(ctx, to, body)
		results = append(results, BulkResult{To: to, MessageID: id, Err: err})
	}

	return results, nil
}

// Balance implements BalanceReporter via the account balance resource.
func (t *TwilioSender) Balance(_ context.Context) (float64, string, error) {
	params := &openapi.FetchBalanceParams{}
	params.SetPathAccountSid(t.accountSID)

	resp, err := t.client.Api.FetchBalance(params)
	if err != nil {
		return 0, "", classify("twilio_sms", 0, err)
	}

	if resp.Balance == nil {
		return 0, "", classify("twilio_sms", 502, fmt.Errorf("balance missing from response"))
	}

	value, err := strconv.ParseFloat(*resp.Balance, 64)
	if err != nil {
		return 0, "", classify("twilio_sms", 502, err)
	}

	currency := ""
	if resp.Currency != nil {
		currency = *resp.Currency
	}

	return value, currency, nil
}

// Healthy implements HealthChecker: a balance probe doubles as the
// availability signal.
func (t *TwilioSender) Healthy(ctx context.Context) bool {
	_, _, err := t.Balance(ctx)
	return err == nil
}

var _ BulkSender = (*TwilioSender)(nil)
var _ HealthChecker = (*TwilioSender)(nil)
var _ BalanceReporter = (*TwilioSender)(nil)
