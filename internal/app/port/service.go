package port

import (
	"context"

	"governance_relayer/internal/domain/entity"
)

// GovernanceService runs governance actions against the registry's networks.
type GovernanceService interface {
	// Execute runs one action to completion. Preconditions are checked before any
	// transaction is sent.
	Execute(ctx context.Context, action entity.GovernanceAction) (*entity.ActionResult, error)
	// RecordDeployment stores a freshly deployed contract address and clears the queue.
	RecordDeployment(ctx context.Context, network, address string) error
	// RecoverAttestation re-derives the attestation of an already-mined transaction on
	// network and queues it there.
	RecoverAttestation(ctx context.Context, network, txHash string) (*entity.ActionResult, error)
	// ListNetworks returns every registry entry sorted by name.
	ListNetworks(ctx context.Context) ([]entity.NetworkDescriptor, error)
}

// RelayService carries attestations between the main and side networks on request.
type RelayService interface {
	// Relay submits the attestation to the counterpart network and returns the tx hash
	// without waiting for inclusion.
	Relay(ctx context.Context, req entity.RelayRequest) (string, error)
	// RelayEndOfVoting submits to the counterpart, then carries the message it emits back
	// to the main network and returns that second tx hash.
	RelayEndOfVoting(ctx context.Context, req entity.RelayRequest) (string, error)
}
