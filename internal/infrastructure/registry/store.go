package registry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"
	"governance_relayer/internal/infrastructure/configloader"
)

// Open returns the registry store selected by cfg.Backend.
// A fresh pebble store is seeded from the JSON registry file when that file exists.
func Open(ctx context.Context, cfg configloader.RegistryConfig, logger port.Logger) (port.RegistryStore, error) {
	lockTimeout := configloader.Millis(cfg.LockTimeoutMs)

	switch cfg.Backend {
	case configloader.BackendJSON:
		logger.Debug("Using JSON registry", "path", cfg.Path)
		return NewJSONStore(cfg.Path, lockTimeout, logger), nil

	case configloader.BackendPebble:
		store, err := OpenPebbleStore(ctx, cfg.PebbleDir, lockTimeout, logger)
		if err != nil {
			return nil, err
		}
		if err := seedFromJSON(ctx, store, cfg, logger); err != nil {
			store.Close()
			return nil, err
		}
		logger.Debug("Using pebble registry", "dir", cfg.PebbleDir)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
}

var errAlreadySeeded = errors.New("registry already populated")

func populated(state *entity.RegistryState) bool {
	return len(state.Networks) > 0 || state.Wormhole.RestAddress != ""
}

func seedFromJSON(ctx context.Context, store port.RegistryStore, cfg configloader.RegistryConfig, logger port.Logger) error {
	current, err := store.Load(ctx)
	if err != nil || populated(current) {
		return err
	}
	if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
		return nil
	}

	source := NewJSONStore(cfg.Path, configloader.Millis(cfg.LockTimeoutMs), logger)
	defer source.Close()
	seed, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed pebble registry: %w", err)
	}

	// another process may have seeded it since the check above
	err = store.Update(ctx, func(state *entity.RegistryState) error {
		if populated(state) {
			return errAlreadySeeded
		}
		*state = *seed
		return nil
	})
	switch {
	case errors.Is(err, errAlreadySeeded):
		return nil
	case err != nil:
		return fmt.Errorf("failed to seed pebble registry: %w", err)
	}
	logger.Info("Seeded pebble registry from JSON file", "path", cfg.Path, "networks", len(seed.Networks))
	return nil
}
