package port

import (
	"context"

	"governance_relayer/internal/domain/entity"
)

// AttestationFetcher performs a single lookup against the attestation service.
// It returns entity.ErrAttestationUnavailable while the message is not yet signed.
type AttestationFetcher interface {
	FetchAttestation(ctx context.Context, serviceBaseURL string, key entity.AttestationKey) ([]byte, error)
}

// AttestationWaiter waits, bounded, until an attestation becomes available.
type AttestationWaiter interface {
	WaitForAttestation(ctx context.Context, serviceBaseURL string, key entity.AttestationKey) (entity.Attestation, error)
}
