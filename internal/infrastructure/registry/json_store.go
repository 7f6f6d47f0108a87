package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"
	"governance_relayer/internal/pkg/utils"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var _ port.RegistryStore = (*jsonStore)(nil)

// jsonStore keeps the registry in the JSON file shared with the deployment scripts.
// Writers hold the registry lock on <path>.lock and replace the file by rename, so
// concurrent processes never interleave read-modify-write cycles.
type jsonStore struct {
	path   string
	lock   *registryLock
	logger port.Logger
}

// NewJSONStore creates a store over the registry file at path.
func NewJSONStore(path string, lockTimeout time.Duration, logger port.Logger) port.RegistryStore {
	return &jsonStore{
		path:   path,
		lock:   newRegistryLock(path+".lock", lockTimeout, logger),
		logger: logger,
	}
}

func (s *jsonStore) read() (*entity.RegistryState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, entity.ConfigError("registry file %s does not exist", s.path)
		}
		return nil, fmt.Errorf("failed to read registry file %s: %w", s.path, err)
	}
	state, err := DecodeState(data)
	if err != nil {
		return nil, fmt.Errorf("registry file %s: %w", s.path, err)
	}
	return state, nil
}

func (s *jsonStore) write(state *entity.RegistryState) error {
	data, err := EncodeState(state)
	if err != nil {
		return err
	}
	if err := utils.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}

// Load implements port.RegistryStore.
func (s *jsonStore) Load(ctx context.Context) (*entity.RegistryState, error) {
	release, err := s.lock.acquire(ctx, false)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.read()
}

// Save implements port.RegistryStore. It overwrites whatever is on disk.
func (s *jsonStore) Save(ctx context.Context, state *entity.RegistryState) error {
	release, err := s.lock.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer release()
	return s.write(state)
}

// Update implements port.RegistryStore.
func (s *jsonStore) Update(ctx context.Context, mutate func(state *entity.RegistryState) error) error {
	release, err := s.lock.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer release()

	state, err := s.read()
	if err != nil {
		return err
	}
	if err := mutate(state); err != nil {
		return err
	}
	return s.write(state)
}

// UpdateNetwork implements port.RegistryStore.
func (s *jsonStore) UpdateNetwork(ctx context.Context, name string, mutate func(network *entity.NetworkDescriptor) error) error {
	return s.Update(ctx, func(state *entity.RegistryState) error {
		network, ok := state.Network(name)
		if !ok {
			return entity.ConfigError("network %q is not in the registry", name)
		}
		return mutate(network)
	})
}

// Close implements port.RegistryStore.
func (s *jsonStore) Close() error {
	return s.lock.Close()
}

// DecodeState parses the registry file format.
func DecodeState(data []byte) (*entity.RegistryState, error) {
	var state entity.RegistryState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal registry: %w", err)
	}
	if state.Networks == nil {
		state.Networks = map[string]*entity.NetworkDescriptor{}
	}
	for name, n := range state.Networks {
		if n == nil {
			delete(state.Networks, name)
			continue
		}
		n.Name = name
	}
	return &state, nil
}

// EncodeState renders the registry in the indented layout the deployment scripts write.
// Empty queues are written as [] rather than null.
func EncodeState(state *entity.RegistryState) ([]byte, error) {
	if state == nil {
		return nil, errors.New("cannot encode a nil registry")
	}
	out := state.Clone()
	for _, n := range out.Networks {
		if n.PendingAttestations == nil {
			n.PendingAttestations = [][]byte{}
		}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal registry: %w", err)
	}
	return append(data, '\n'), nil
}
