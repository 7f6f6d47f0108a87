package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration covers missing or undeployed networks and wrong roles.
	ErrConfiguration = errors.New("configuration error")
	// ErrChainUnreachable is returned when the RPC endpoint cannot be reached.
	ErrChainUnreachable = errors.New("chain unreachable")
	// ErrChainReverted is returned when a contract call reverts.
	ErrChainReverted = errors.New("transaction reverted")
	// ErrSequenceNotFound is returned when the receipt carries no bridge log.
	ErrSequenceNotFound = errors.New("sequence not found")
	// ErrAttestationUnavailable means the guardians have not signed the message yet.
	ErrAttestationUnavailable = errors.New("attestation not yet available")
	// ErrAttestationService means the attestation service failed or answered garbage.
	ErrAttestationService = errors.New("attestation service error")
	// ErrQueueEmpty is returned when there is no pending attestation to submit.
	ErrQueueEmpty = errors.New("no pending attestation")
	// ErrTimedOut is returned when a bounded wait expires.
	ErrTimedOut = errors.New("timed out")
)

// ConfigError builds an ErrConfiguration with a formatted message.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// ChainError describes a failed interaction with a chain.
type ChainError struct {
	Kind    error // ErrChainUnreachable, ErrChainReverted or ErrTimedOut
	Network string
	Method  string
	Reason  string
	Err     error
}

func (e *ChainError) Error() string {
	msg := fmt.Sprintf("%s: network %s", e.Kind, e.Network)
	if e.Method != "" {
		msg += fmt.Sprintf(", method %s", e.Method)
	}
	if e.Reason != "" {
		msg += fmt.Sprintf(": %s", e.Reason)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *ChainError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
