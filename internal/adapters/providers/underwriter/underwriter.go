// Package underwriter hands each batch run's activated-policy records
// to the insurer's back office. Policy numbers and coverage windows are
// assigned by this service before submission, so the transfer is a
// one-way fact hand-off. No single insurer API is assumed, so this
// talks plain net/http against a configured base URL rather than a
// vendor SDK.
package underwriter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/internal/services/command"
)

// HTTPGateway is the production command.Underwriter, posting a batch's
// records as one request.
type HTTPGateway struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPGateway returns a gateway pointed at baseURL, authenticating
// with apiKey via a bearer token.
func NewHTTPGateway(baseURL, apiKey string) *HTTPGateway {
	return &HTTPGateway{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type submitRecordsBody struct {
	BatchNumber string       `json:"batch_number"`
	Records     []recordItem `json:"records"`
}

type recordItem struct {
	PolicyID      string `json:"policy_id"`
	PolicyNumber  string `json:"policy_number"`
	RiderID       string `json:"rider_id"`
	PolicyType    string `json:"policy_type"`
	PremiumMinor  int64  `json:"premium_minor"`
	EffectiveDate string `json:"effective_date"`
	ExpiryDate    string `json:"expiry_date"`
}

// SubmitRecords implements command.Underwriter.
func (g *HTTPGateway) SubmitRecords(ctx context.Context, batchNumber string, records []command.UnderwriterRecord) error {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "underwriter.submit_records")
	defer span.End()

	items := make([]recordItem, 0, len(records))

	for _, r := range records {
		items = append(items, recordItem{
			PolicyID:      r.PolicyID.String(),
			PolicyNumber:  r.PolicyNumber,
			RiderID:       r.RiderID.String(),
			PolicyType:    r.PolicyType,
			PremiumMinor:  r.PremiumMinor,
			EffectiveDate: r.EffectiveDate.Format(time.RFC3339),
			ExpiryDate:    r.ExpiryDate.Format(time.RFC3339),
		})
	}

	body, err := json.Marshal(submitRecordsBody{BatchNumber: batchNumber, Records: items})
	if err != nil {
		return apperr.InternalError{Message: "underwriter: marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/batches", bytes.NewReader(body))
	if err != nil {
		return apperr.InternalError{Message: "underwriter: build request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		otel.HandleSpanError(&span, "submit_records transport failure", err)
		return apperr.TransientUpstreamError{Provider: "underwriter", Message: "transport error", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return apperr.TransientUpstreamError{Provider: "underwriter", Message: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return apperr.PermanentUpstreamError{Provider: "underwriter", Category: "rejected", Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	return nil
}

var _ command.Underwriter = (*HTTPGateway)(nil)
