package metrics

import (
	"net/http"
	"time"

	"governance_relayer/internal/app/port"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "govrelay"

// Outcomes recorded on counters.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var _ port.Metrics = (*Prometheus)(nil)

// Prometheus implements port.Metrics on a dedicated registry.
type Prometheus struct {
	registry        *prometheus.Registry
	actions         *prometheus.CounterVec
	fetches         *prometheus.CounterVec
	attestationWait prometheus.Histogram
	pending         *prometheus.GaugeVec
	relayRequests   *prometheus.CounterVec
}

// NewPrometheus registers the relay collectors on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "governance_actions_total",
			Help:      "Governance actions run, by action and outcome.",
		}, []string{"action", "outcome"}),
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attestation_fetches_total",
			Help:      "Attestation waits, by outcome.",
		}, []string{"outcome"}),
		attestationWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attestation_wait_seconds",
			Help:      "Time from the start of an attestation wait until it resolved.",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300, 600},
		}),
		pending: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_attestations",
			Help:      "Attestations queued on a network awaiting submission.",
		}, []string{"network"}),
		relayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_requests_total",
			Help:      "HTTP relay requests, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
	}
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}

// ActionCompleted implements port.Metrics.
func (p *Prometheus) ActionCompleted(action string, err error) {
	p.actions.WithLabelValues(action, outcome(err)).Inc()
}

// AttestationFetched implements port.Metrics.
func (p *Prometheus) AttestationFetched(result string, wait time.Duration) {
	p.fetches.WithLabelValues(result).Inc()
	p.attestationWait.Observe(wait.Seconds())
}

// PendingAttestations implements port.Metrics.
func (p *Prometheus) PendingAttestations(network string, count int) {
	p.pending.WithLabelValues(network).Set(float64(count))
}

// RelayRequest implements port.Metrics.
func (p *Prometheus) RelayRequest(endpoint string, err error) {
	p.relayRequests.WithLabelValues(endpoint, outcome(err)).Inc()
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Nop discards every observation. Used by the CLI, which exits before anything could scrape.
type Nop struct{}

func (Nop) ActionCompleted(string, error)            {}
func (Nop) AttestationFetched(string, time.Duration) {}
func (Nop) PendingAttestations(string, int)          {}
func (Nop) RelayRequest(string, error)               {}
