// File certificate.go renders the policy certificate: once a policy
// activates, a deterministic,
// PDF-free certificate document is rendered and pushed to object
// storage so the stored object's s3:// URL can ride along in the
// activation notification. No signed URL is generated.
package command

import (
	"context"
	"fmt"

	"github.com/bodaboda-insure/core/internal/domain/policy"
	"github.com/bodaboda-insure/core/internal/platform/log"
	"github.com/bodaboda-insure/core/internal/platform/otel"
)

// generateCertificate renders p's certificate text and stores it,
// returning the s3://bucket/key URL Storage.Put reports (not a signed
// URL) for the notification body. A nil
// Storage (e.g. in a unit test UseCase) is treated as "skip silently"
// rather than an error, since certificate delivery is best-effort.
func (uc *UseCase) generateCertificate(ctx context.Context, p *policy.Policy) string {
	if uc.Storage == nil {
		return ""
	}

	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "command.generate_certificate")
	defer span.End()

	body := fmt.Sprintf(
		"BODABODA RIDER MICRO-INSURANCE CERTIFICATE\nPolicy Number: %s\nRider ID: %s\nEffective: %s\nExpiry: %s\n",
		p.PolicyNumber, p.RiderID, p.EffectiveDate.Format("2006-01-02"), p.ExpiryDate.Format("2006-01-02"),
	)

	key := fmt.Sprintf("certificates/%s.txt", p.PolicyNumber)

	url, err := uc.Storage.Put(ctx, key, []byte(body), "text/plain")
	if err != nil {
		otel.HandleSpanError(&span, "failed to store policy certificate", err)
		log.FromContext(ctx).Warnf("failed to store certificate for policy %s: %v", log.RedactID(p.ID.String()), err)

		return ""
	}

	return url
}
