package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"

	"github.com/cockroachdb/pebble"
)

var (
	wormholeKey   = []byte("wormhole")
	networkPrefix = []byte("network/")
)

func networkKey(name string) []byte {
	return append(append([]byte{}, networkPrefix...), name...)
}

// prefixUpperBound returns the smallest key greater than every key with the prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

var _ port.RegistryStore = (*pebbleStore)(nil)

// pebbleStore keeps the registry in an embedded pebble database, one key per network.
// pebble holds an exclusive lock on its directory while open, so the database is opened
// per operation under the registry lock on <dir>.lock. A long-running relay and manual
// CLI runs then take turns instead of shutting each other out.
type pebbleStore struct {
	dir    string
	lock   *registryLock
	logger port.Logger
}

// OpenPebbleStore creates (if needed) and checks the database in dir.
func OpenPebbleStore(ctx context.Context, dir string, lockTimeout time.Duration, logger port.Logger) (port.RegistryStore, error) {
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(dir)), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create pebble registry parent of %s: %w", dir, err)
	}
	s := &pebbleStore{
		dir:    dir,
		lock:   newRegistryLock(filepath.Clean(dir)+".lock", lockTimeout, logger),
		logger: logger,
	}
	if err := s.withDB(ctx, func(*pebble.DB) error { return nil }); err != nil {
		s.lock.Close()
		return nil, err
	}
	return s, nil
}

// withDB runs fn against the open database while holding the registry lock.
func (s *pebbleStore) withDB(ctx context.Context, fn func(db *pebble.DB) error) (err error) {
	release, err := s.lock.acquire(ctx, true)
	if err != nil {
		return err
	}
	defer release()

	db, err := pebble.Open(s.dir, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("failed to open pebble registry at %s: %w", s.dir, err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close pebble registry at %s: %w", s.dir, cerr)
		}
	}()
	return fn(db)
}

func readState(db *pebble.DB) (*entity.RegistryState, error) {
	state := &entity.RegistryState{Networks: map[string]*entity.NetworkDescriptor{}}

	value, closer, err := db.Get(wormholeKey)
	switch {
	case err == nil:
		err = json.Unmarshal(value, &state.Wormhole)
		closer.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode wormhole settings: %w", err)
		}
	case errors.Is(err, pebble.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to read wormhole settings: %w", err)
	}

	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: networkPrefix,
		UpperBound: prefixUpperBound(networkPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		name := string(bytes.TrimPrefix(iter.Key(), networkPrefix))
		var n entity.NetworkDescriptor
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			return nil, fmt.Errorf("failed to decode network %q: %w", name, err)
		}
		n.Name = name
		state.Networks[name] = &n
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("registry iteration failed: %w", err)
	}
	return state, nil
}

func getNetwork(db *pebble.DB, name string) (*entity.NetworkDescriptor, error) {
	value, closer, err := db.Get(networkKey(name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, entity.ConfigError("network %q is not in the registry", name)
		}
		return nil, fmt.Errorf("failed to read network %q: %w", name, err)
	}
	defer closer.Close()

	var n entity.NetworkDescriptor
	if err := json.Unmarshal(value, &n); err != nil {
		return nil, fmt.Errorf("failed to decode network %q: %w", name, err)
	}
	n.Name = name
	return &n, nil
}

func setNetwork(batch *pebble.Batch, n *entity.NetworkDescriptor) error {
	c := n.Clone()
	if c.PendingAttestations == nil {
		c.PendingAttestations = [][]byte{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode network %q: %w", n.Name, err)
	}
	return batch.Set(networkKey(n.Name), data, nil)
}

// writeState replaces the stored state with state, deleting networks it no longer names.
func writeState(db *pebble.DB, previous, state *entity.RegistryState) error {
	batch := db.NewBatch()
	defer batch.Close()

	wormhole, err := json.Marshal(state.Wormhole)
	if err != nil {
		return fmt.Errorf("failed to encode wormhole settings: %w", err)
	}
	if err := batch.Set(wormholeKey, wormhole, nil); err != nil {
		return err
	}

	names := make([]string, 0, len(state.Networks))
	for name := range state.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		n, _ := state.Network(name)
		if err := setNetwork(batch, n); err != nil {
			return err
		}
	}
	if previous != nil {
		for name := range previous.Networks {
			if _, ok := state.Networks[name]; !ok {
				if err := batch.Delete(networkKey(name), nil); err != nil {
					return err
				}
			}
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit registry: %w", err)
	}
	return nil
}

// Load implements port.RegistryStore.
func (s *pebbleStore) Load(ctx context.Context) (*entity.RegistryState, error) {
	var state *entity.RegistryState
	err := s.withDB(ctx, func(db *pebble.DB) error {
		var err error
		state, err = readState(db)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Save implements port.RegistryStore.
func (s *pebbleStore) Save(ctx context.Context, state *entity.RegistryState) error {
	if state == nil {
		return errors.New("cannot save a nil registry")
	}
	return s.withDB(ctx, func(db *pebble.DB) error {
		previous, err := readState(db)
		if err != nil {
			return err
		}
		return writeState(db, previous, state)
	})
}

// Update implements port.RegistryStore.
func (s *pebbleStore) Update(ctx context.Context, mutate func(state *entity.RegistryState) error) error {
	return s.withDB(ctx, func(db *pebble.DB) error {
		previous, err := readState(db)
		if err != nil {
			return err
		}
		next := previous.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		return writeState(db, previous, next)
	})
}

// UpdateNetwork implements port.RegistryStore. Only the named network's key is rewritten.
func (s *pebbleStore) UpdateNetwork(ctx context.Context, name string, mutate func(network *entity.NetworkDescriptor) error) error {
	return s.withDB(ctx, func(db *pebble.DB) error {
		n, err := getNetwork(db, name)
		if err != nil {
			return err
		}
		if err := mutate(n); err != nil {
			return err
		}
		n.Name = name

		batch := db.NewBatch()
		defer batch.Close()
		if err := setNetwork(batch, n); err != nil {
			return err
		}
		if err := batch.Commit(pebble.Sync); err != nil {
			return fmt.Errorf("failed to commit network %q: %w", name, err)
		}
		return nil
	})
}

// Close implements port.RegistryStore.
func (s *pebbleStore) Close() error {
	return s.lock.Close()
}
