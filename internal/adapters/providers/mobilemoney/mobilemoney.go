// Package mobilemoney is the outbound push-payment gateway: a request
// goes out as accepted/rejected/pending, and settlement arrives later
// through a callback or a status poll. The provider is an opaque RPC
// boundary rather than a single named vendor, so this package talks
// plain net/http against a configured base URL instead of binding to
// one vendor's SDK.
package mobilemoney

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
	"github.com/bodaboda-insure/core/pkg/money"
)

// RequestStatus mirrors the provider's synchronous accept/reject response.
type RequestStatus string

const (
	RequestAccepted RequestStatus = "ACCEPTED"
	RequestRejected RequestStatus = "REJECTED"
	RequestPending  RequestStatus = "PENDING"

	// RequestSettled is PollStatus's terminal-success vocabulary: a
	// previously ACCEPTED push has cleared at the provider.
	RequestSettled RequestStatus = "SETTLED"
)

// RequestResult is the outcome of initiating or polling a push-payment
// request. ReceiptNumber is set only when Status is SETTLED: it is the
// provider's settlement receipt, distinct from the checkout-time
// ProviderReference.
type RequestResult struct {
	Status            RequestStatus
	ProviderReference string
	ReceiptNumber     string
	RejectReason      string
}

// CallbackPayload is the provider's asynchronous settlement notification.
type CallbackPayload struct {
	ProviderReference string
	Status            string // provider's own vocabulary; mapped by the caller
	ReceiptNumber     string // settlement receipt, present on success only
	Amount            money.Minor
	Phone             string
	RawBody           []byte
}

// Gateway is the capability contract every mobile-money client
// implements.
type Gateway interface {
	// RequestPayment initiates a customer-to-business push request for
	// amount against phone, tagged with idempotencyKey so the provider
	// can itself dedup a client-side retry.
	RequestPayment(ctx context.Context, phone string, amount money.Minor, idempotencyKey string) (RequestResult, error)

	// PollStatus re-queries a previously-initiated request by its
	// provider reference, for the reconciler's poll sweep.
	PollStatus(ctx context.Context, providerReference string) (RequestResult, error)
}

// HTTPGateway is the production Gateway, talking to the provider's REST
// API over plain net/http.
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
			Timeout: 15 * time.Second,
		},
	}
}

type requestPaymentBody struct {
	Phone          string `json:"phone"`
	AmountMinor    int64  `json:"amount_minor"`
	IdempotencyKey string `json:"idempotency_key"`
}

type requestPaymentResponse struct {
	Status            string `json:"status"`
	ProviderReference string `json:"provider_reference"`
	ReceiptNumber     string `json:"receipt_number"`
	RejectReason      string `json:"reject_reason"`
}

// RequestPayment implements Gateway.
func (g *HTTPGateway) RequestPayment(ctx context.Context, phone string, amount money.Minor, idempotencyKey string) (RequestResult, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "mobilemoney.request_payment")
	defer span.End()

	body, err := json.Marshal(requestPaymentBody{Phone: phone, AmountMinor: int64(amount), IdempotencyKey: idempotencyKey})
	if err != nil {
		return RequestResult{}, apperr.InternalError{Message: "mobilemoney: marshal request", Err: err}
	}

	resp, err := g.doJSON(ctx, http.MethodPost, "/v1/payment-requests", body)
	if err != nil {
		otel.HandleSpanError(&span, "request_payment transport failure", err)
		return RequestResult{}, classifyTransport(err)
	}
	defer resp.Body.Close()

	var out requestPaymentResponse
	if err := decodeResponse(resp, &out); err != nil {
		otel.HandleSpanError(&span, "request_payment decode failure", err)
		return RequestResult{}, err
	}

	return RequestResult{
		Status:            RequestStatus(out.Status),
		ProviderReference: out.ProviderReference,
		RejectReason:      out.RejectReason,
	}, nil
}

// PollStatus implements Gateway.
func (g *HTTPGateway) PollStatus(ctx context.Context, providerReference string) (RequestResult, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "mobilemoney.poll_status")
	defer span.End()

	resp, err := g.doJSON(ctx, http.MethodGet, "/v1/payment-requests/"+providerReference, nil)
	if err != nil {
		otel.HandleSpanError(&span, "poll_status transport failure", err)
		return RequestResult{}, classifyTransport(err)
	}
	defer resp.Body.Close()

	var out requestPaymentResponse
	if err := decodeResponse(resp, &out); err != nil {
		otel.HandleSpanError(&span, "poll_status decode failure", err)
		return RequestResult{}, err
	}

	return RequestResult{
		Status:            RequestStatus(out.Status),
		ProviderReference: out.ProviderReference,
		ReceiptNumber:     out.ReceiptNumber,
	}, nil
}

func (g *HTTPGateway) doJSON(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	return g.HTTPClient.Do(req)
}

func decodeResponse(resp *http.Response, out any) error {
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return apperr.TransientUpstreamError{Provider: "mobilemoney", Message: fmt.Sprintf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return apperr.PermanentUpstreamError{Provider: "mobilemoney", Category: "rejected", Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func classifyTransport(err error) error {
	return apperr.TransientUpstreamError{Provider: "mobilemoney", Message: "transport error", Err: err}
}

// ParseCallback decodes an inbound webhook body into a CallbackPayload.
// It is deliberately tolerant of unknown fields: the provider's webhook
// contract evolves independently of this service.
func ParseCallback(body []byte) (CallbackPayload, error) {
	var raw struct {
		ProviderReference string `json:"provider_reference"`
		Status            string `json:"status"`
		ReceiptNumber     string `json:"receipt_number"`
		AmountMinor       int64  `json:"amount_minor"`
		Phone             string `json:"phone"`
	}

	if err := json.Unmarshal(body, &raw); err != nil {
		return CallbackPayload{}, apperr.ValidationError{EntityType: "CallbackPayload", Message: "malformed callback body", Err: err}
	}

	return CallbackPayload{
		ProviderReference: raw.ProviderReference,
		Status:            raw.Status,
		ReceiptNumber:     raw.ReceiptNumber,
		Amount:            money.Minor(raw.AmountMinor),
		Phone:             raw.Phone,
		RawBody:           body,
	}, nil
}
