package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"
	"governance_relayer/internal/infrastructure/configloader"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Attestation wait outcomes reported to metrics.
const (
	fetchOutcomeSuccess  = "success"
	fetchOutcomeTimedOut = "timed_out"
	fetchOutcomeError    = "error"
	fetchOutcomeCanceled = "canceled"
)

// attestationPollerImpl implements port.AttestationWaiter.
// It sleeps a fixed floor before the first lookup, then retries lookups that report
// the attestation as not yet signed with exponential backoff, bounded by maxWait.
type attestationPollerImpl struct {
	fetcher      port.AttestationFetcher
	metrics      port.Metrics
	logger       port.Logger
	initialDelay time.Duration
	interval     time.Duration
	maxInterval  time.Duration
	maxWait      time.Duration
}

// NewAttestationPoller creates a new attestation poller.
func NewAttestationPoller(
	fetcher port.AttestationFetcher,
	cfg configloader.AttestationConfig,
	metrics port.Metrics,
	logger port.Logger,
) port.AttestationWaiter {
	return &attestationPollerImpl{
		fetcher:      fetcher,
		metrics:      metrics,
		logger:       logger,
		initialDelay: configloader.Millis(cfg.InitialDelayMs),
		interval:     configloader.Millis(cfg.PollIntervalMs),
		maxInterval:  configloader.Millis(cfg.MaxIntervalMs),
		maxWait:      configloader.Millis(cfg.MaxWaitMs),
	}
}

// WaitForAttestation implements port.AttestationWaiter.
// Only entity.ErrAttestationUnavailable is retried; any other failure ends the wait.
// Running out of time yields entity.ErrTimedOut.
func (p *attestationPollerImpl) WaitForAttestation(ctx context.Context, serviceBaseURL string, key entity.AttestationKey) (entity.Attestation, error) {
	start := time.Now()
	p.logger.Info("Waiting for attestation", "key", key.String(), "initial_delay", p.initialDelay)

	timer := time.NewTimer(p.initialDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		p.metrics.AttestationFetched(fetchOutcomeCanceled, time.Since(start))
		return entity.Attestation{}, fmt.Errorf("attestation wait for %s aborted: %w", key, ctx.Err())
	case <-timer.C:
	}

	var (
		attempts int
		lastErr  error
	)
	policy := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool {
			return errors.Is(err, entity.ErrAttestationUnavailable)
		}).
		WithMaxRetries(-1).
		WithMaxDuration(p.maxWait).
		WithBackoff(p.interval, p.maxInterval).
		OnRetry(func(event failsafe.ExecutionEvent[[]byte]) {
			p.logger.Debug("Attestation not available yet, retrying", "key", key.String(), "attempt", event.Attempts())
		}).
		Build()

	vaa, err := failsafe.With[[]byte](policy).WithContext(ctx).Get(func() ([]byte, error) {
		attempts++
		b, fetchErr := p.fetcher.FetchAttestation(ctx, serviceBaseURL, key)
		lastErr = fetchErr
		return b, fetchErr
	})
	elapsed := time.Since(start)

	switch {
	case err == nil && lastErr == nil:
		p.metrics.AttestationFetched(fetchOutcomeSuccess, elapsed)
		p.logger.Info("Attestation available", "key", key.String(), "attempts", attempts, "elapsed", elapsed)
		return entity.Attestation{Key: key, Bytes: vaa}, nil

	case ctx.Err() != nil:
		p.metrics.AttestationFetched(fetchOutcomeCanceled, elapsed)
		return entity.Attestation{}, fmt.Errorf("attestation wait for %s aborted: %w", key, ctx.Err())

	case errors.Is(lastErr, entity.ErrAttestationUnavailable):
		p.metrics.AttestationFetched(fetchOutcomeTimedOut, elapsed)
		p.logger.Warn("Gave up waiting for attestation", "key", key.String(), "attempts", attempts, "elapsed", elapsed)
		return entity.Attestation{}, fmt.Errorf("%w: attestation %s not signed after %s (%d attempts): %w",
			entity.ErrTimedOut, key, elapsed.Round(time.Millisecond), attempts, lastErr)

	default:
		if lastErr == nil {
			lastErr = err
		}
		p.metrics.AttestationFetched(fetchOutcomeError, elapsed)
		p.logger.Error("Attestation lookup failed", "key", key.String(), "error", lastErr)
		return entity.Attestation{}, fmt.Errorf("failed to fetch attestation %s: %w", key, lastErr)
	}
}
