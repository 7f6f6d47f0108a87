package port

import (
	"context"

	"governance_relayer/internal/domain/entity"
)

// RegistryStore persists the network registry.
// Update and UpdateNetwork are atomic read-modify-write operations: the mutator sees the
// latest persisted state and its changes are written before the call returns. A mutator
// error aborts the write.
type RegistryStore interface {
	Load(ctx context.Context) (*entity.RegistryState, error)
	Save(ctx context.Context, state *entity.RegistryState) error
	Update(ctx context.Context, mutate func(state *entity.RegistryState) error) error
	UpdateNetwork(ctx context.Context, name string, mutate func(network *entity.NetworkDescriptor) error) error
	Close() error
}
