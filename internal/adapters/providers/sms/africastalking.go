package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bodaboda-insure/core/internal/platform/otel"
)

// AfricasTalkingSender sends SMS via Africa's Talking's REST API. The
// vendor ships no Go SDK, so this client is built directly on
// net/http.
type AfricasTalkingSender struct {
	Username   string
	APIKey     string
	From       string
	BaseURL    string
	HTTPClient *http.Client
}

// NewAfricasTalkingSender returns a sender for the given account.
func NewAfricasTalkingSender(username, apiKey, from string) *AfricasTalkingSender {
	return &AfricasTalkingSender{
		Username:   username,
		APIKey:     apiKey,
		From:       from,
		BaseURL:    "https://api.africastalking.com/version1/messaging",
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type atResponse struct {
	SMSMessageData struct {
		Recipients []struct {
			Number    string `json:"number"`
			MessageID string `json:"messageId"`
			Status    string `json:"status"`
			StatusCode int    `json:"statusCode"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// Send implements Sender.
func (a *AfricasTalkingSender) Send(ctx context.Context, toE164, body string) (string, error) {
	tracer := otel.FromContext(ctx)
	_, span := tracer.Start(ctx, "sms.africastalking.send")
	defer span.End()

	form := url.Values{
		"username": {a.Username},
		"to":       {toE164},
		"message":  {body},
		"from":     {a.From},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", classify("africas_talking", 0, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apiKey", a.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		otel.HandleSpanError(&span, "africa's talking transport error", err)
		return "", classify("africas_talking", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", classify("africas_talking", resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode))
	}

	var out atResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", classify("africas_talking", 0, err)
	}

	if len(out.SMSMessageData.Recipients) == 0 {
		return "", classify("africas_talking", 502, fmt.Errorf("empty recipients in response"))
	}

	recipient := out.SMSMessageData.Recipients[0]
	if recipient.StatusCode >= 400 {
		return "", classify("africas_talking", recipient.StatusCode, errors.New(recipient.Status))
	}

	return recipient.MessageID, nil
}

// SendBulk implements BulkSender. Africa's Talking accepts the whole
// recipient list in one comma-separated "to" field and reports a
// per-recipient status code back.
func (a *AfricasTalkingSender) SendBulk(ctx context.Context, toE164 []string, body string) ([]BulkResult, error) {
	tracer := otel.FromContext(ctx)
	_, span := tracer.Start(ctx, "sms.africastalking.send_bulk")
	defer span.End()

	form := url.Values{
		"username": {a.Username},
		"to":       {strings.Join(toE164, ",")},
		"message":  {body},
		"from":     {a.From},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, classify("africas_talking", 0, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apiKey", a.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		otel.HandleSpanError(&span, "africa's talking transport error", err)
		return nil, classify("africas_talking", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, classify("africas_talking", resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode))
	}

	var out atResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, classify("africas_talking", 0, err)
	}

	results := make([]BulkResult, 0, len(out.SMSMessageData.Recipients))

	for _, r := range out.SMSMessageData.Recipients {
		br := BulkResult{To: r.Number, MessageID: r.MessageID}
		if r.StatusCode >= 400 {
			br.Err = classify("africas_talking", r.StatusCode, errors.New(r.Status))
		}

		results = append(results, br)
	}

	return results, nil
}

type atBalanceResponse struct {
	UserData struct {
		Balance string `json:"balance"` // e.g. "KES 1234.50"
	} `json:"UserData"`
}

// Balance implements BalanceReporter via the account user endpoint.
func (a *AfricasTalkingSender) Balance(ctx context.Context) (float64, string, error) {
	endpoint := strings.Replace(a.BaseURL, "/messaging", "/user", 1) + "?username=" + url.QueryEscape(a.Username)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, "", classify("africas_talking", 0, err)
	}

	req.Header.Set("apiKey", a.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return 0, "", classify("africas_talking", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, "", classify("africas_talking", resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode))
	}

	var out atBalanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, "", classify("africas_talking", 0, err)
	}

	currency, amount, ok := strings.Cut(out.UserData.Balance, " ")
	if !ok {
		return 0, "", classify("africas_talking", 502, fmt.Errorf("unparseable balance %q", out.UserData.Balance))
	}

	value, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, "", classify("africas_talking", 502, err)
	}

	return value, currency, nil
}

// Healthy implements HealthChecker: a balance probe doubles as the
// availability signal, since the vendor exposes no dedicated ping.
func (a *AfricasTalkingSender) Healthy(ctx context.Context) bool {
	_, _, err := a.Balance(ctx)
	return err == nil
}

var _ BulkSender = (*AfricasTalkingSender)(nil)
var _ HealthChecker = (*AfricasTalkingSender)(nil)
var _ BalanceReporter = (*AfricasTalkingSender)(nil)
