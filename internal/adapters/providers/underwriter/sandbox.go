package underwriter

import (
	"context"

	"github.com/bodaboda-insure/core/internal/services/command"
)

// SandboxGateway is an in-memory command.Underwriter for tests and
// local development: every record hand-off is accepted immediately.
type SandboxGateway struct{}

// NewSandboxGateway returns a sandbox gateway.
func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{}
}

// SubmitRecords implements command.Underwriter.
func (s *SandboxGateway) SubmitRecords(_ context.Context, _ string, _ []command.UnderwriterRecord) error {
	return nil
}

var _ command.Underwriter = (*SandboxGateway)(nil)
