package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

// registryLock serializes registry access within the process (mutex) and across
// processes (advisory file lock). Callers wait up to timeout for their turn.
type registryLock struct {
	mu      sync.Mutex
	file    *flock.Flock
	timeout time.Duration
	logger  port.Logger
}

func newRegistryLock(path string, timeout time.Duration, logger port.Logger) *registryLock {
	return &registryLock{
		file:    flock.New(path),
		timeout: timeout,
		logger:  logger,
	}
}

// acquire blocks until the lock is held and returns its release func.
// Running out of time yields entity.ErrTimedOut.
func (l *registryLock) acquire(ctx context.Context, exclusive bool) (func(), error) {
	l.mu.Lock()

	lockCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = l.file.TryLockContext(lockCtx, lockRetryDelay)
	} else {
		locked, err = l.file.TryRLockContext(lockCtx, lockRetryDelay)
	}
	if err != nil || !locked {
		l.mu.Unlock()
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: registry lock %s not acquired within %s", entity.ErrTimedOut, l.file.Path(), l.timeout)
		}
		return nil, fmt.Errorf("failed to lock registry %s: %w", l.file.Path(), err)
	}

	return func() {
		if err := l.file.Unlock(); err != nil {
			l.logger.Warn("Failed to release registry lock", "path", l.file.Path(), "error", err)
		}
		l.mu.Unlock()
	}, nil
}

func (l *registryLock) Close() error {
	return l.file.Close()
}
