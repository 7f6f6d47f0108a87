package port

import (
	"time"
)

// Metrics records orchestrator and relay activity.
type Metrics interface {
	ActionCompleted(action string, err error)
	AttestationFetched(outcome string, wait time.Duration)
	PendingAttestations(network string, count int)
	RelayRequest(endpoint string, err error)
}
