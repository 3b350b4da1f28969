// Package sms implements the SMS delivery channel of the notification
// orchestrator, with two concrete vendors for failover: Twilio via its
// official SDK, and Africa's Talking over plain net/http since the
// vendor ships no Go SDK.
package sms

import (
	"context"

	"github.com/bodaboda-insure/core/internal/platform/apperr"
)

// Sender is the capability contract every SMS vendor implements.
type Sender interface {
	Send(ctx context.Context, toE164, body string) (providerMessageID string, err error)
}

// BulkResult is the per-recipient outcome of a bulk send.
type BulkResult struct {
	To        string
	MessageID string
	Err       error
}

// BulkSender is implemented by vendors whose API accepts many
// recipients in one call. Callers fall back to per-recipient Send when
// a vendor lacks it.
type BulkSender interface {
	Sender
	SendBulk(ctx context.Context, toE164 []string, body string) ([]BulkResult, error)
}

// HealthChecker reports a vendor's own availability signal, used to
// pre-skip a leg before its first attempt.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// BalanceReporter exposes the vendor account's remaining credit, for
// operational dashboards.
type BalanceReporter interface {
	Balance(ctx context.Context) (amount float64, currency string, err error)
}

// classify turns a vendor SDK error into the service's error taxonomy.
// Both vendor implementations funnel their raw errors through this so
// the notification orchestrator's retry/failover logic only ever sees
// apperr types.
func classify(provider string, statusCode int, err error) error {
	switch {
	case statusCode >= 500 || statusCode == 429:
		return apperr.TransientUpstreamError{Provider: provider, Message: "upstream error", Err: err}
	case statusCode >= 400:
		return apperr.PermanentUpstreamError{Provider: provider, Category: "rejected", Message: err.Error()}
	case err != nil:
		return apperr.TransientUpstreamError{Provider: provider, Message: "transport error", Err: err}
	default:
		return nil
	}
}
