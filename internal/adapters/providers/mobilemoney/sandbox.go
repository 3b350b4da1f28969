package mobilemoney

import (
	"context"
	"sync"

	"github.com/bodaboda-insure/core/pkg/idgen"
	"github.com/bodaboda-insure/core/pkg/money"
)

// SandboxGateway is an in-memory Gateway for tests and local
// development: every request is ACCEPTED immediately and PollStatus
// always reports it settled, so the payment engine and its callers can
// be exercised without a live provider sandbox account.
type SandboxGateway struct {
	mu       sync.Mutex
	accepted map[string]money.Minor
}

// NewSandboxGateway returns an empty sandbox.
func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{accepted: make(map[string]money.Minor)}
}

// RequestPayment implements Gateway.
func (s *SandboxGateway) RequestPayment(ctx context.Context, phone string, amount money.Minor, idempotencyKey string) (RequestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := idgen.NewString()
	s.accepted[ref] = amount

	return RequestResult{Status: RequestAccepted, ProviderReference: ref}, nil
}

// PollStatus implements Gateway.
func (s *SandboxGateway) PollStatus(ctx context.Context, providerReference string) (RequestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accepted[providerReference]; !ok {
		return RequestResult{Status: RequestRejected}, nil
	}

	return RequestResult{
		Status:            RequestSettled,
		ProviderReference: providerReference,
		ReceiptNumber:     "SBX-RCPT-" + providerReference,
	}, nil
}

var _ Gateway = (*SandboxGateway)(nil)
var _ Gateway = (*HTTPGateway)(nil)
