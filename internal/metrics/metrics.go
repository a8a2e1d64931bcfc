// Package metrics provides the Prometheus instrumentation for the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "compute_qms"

// Metrics holds every collector used by the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry              *prometheus.Registry
	admissionDecisions    *prometheus.CounterVec
	reconcileCorrections  *prometheus.CounterVec
	reconcileRuns         *prometheus.CounterVec
	tokenVolume           *prometheus.CounterVec
	contractRefills       prometheus.Counter
	infrastructureFailure *prometheus.CounterVec
}

// New creates the collectors and registers them on a private registry along with the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		admissionDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "admission",
				Name:      "decisions_total",
				Help:      "Total admission decisions by resource type and outcome",
			},
			[]string{"resource_type", "outcome"},
		),
		reconcileCorrections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "corrections_total",
				Help:      "Total usage counter corrections made by the reconciler",
			},
			[]string{"dimension"},
		),
		reconcileRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "runs_total",
				Help:      "Total reconciliation runs by result",
			},
			[]string{"result"},
		),
		tokenVolume: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tokens",
				Name:      "volume_total",
				Help:      "Total absolute token volume moved by transaction type",
			},
			[]string{"type"},
		),
		contractRefills: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "contracts",
				Name:      "refills_total",
				Help:      "Total contract refills performed",
			},
		),
		infrastructureFailure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "infrastructure",
				Name:      "failures_total",
				Help:      "Total infrastructure provider failures by operation",
			},
			[]string{"operation"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.admissionDecisions,
		m.reconcileCorrections,
		m.reconcileRuns,
		m.tokenVolume,
		m.contractRefills,
		m.infrastructureFailure,
	)

	return m
}

// Handler returns the HTTP handler that exposes the collected metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry that the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAdmission records an admission decision.
func (m *Metrics) ObserveAdmission(resourceType, outcome string) {
	if m == nil {
		return
	}
	m.admissionDecisions.WithLabelValues(resourceType, outcome).Inc()
}

// ObserveCorrection records a usage counter correction.
func (m *Metrics) ObserveCorrection(dimension string) {
	if m == nil {
		return
	}
	m.reconcileCorrections.WithLabelValues(dimension).Inc()
}

// ObserveReconcileRun records the result of a reconciliation run.
func (m *Metrics) ObserveReconcileRun(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.reconcileRuns.WithLabelValues(result).Inc()
}

// ObserveTokens records the absolute size of a token movement.
func (m *Metrics) ObserveTokens(transactionType string, amount int64) {
	if m == nil {
		return
	}
	if amount < 0 {
		amount = -amount
	}
	m.tokenVolume.WithLabelValues(transactionType).Add(float64(amount))
}

// ObserveRefill records a contract refill.
func (m *Metrics) ObserveRefill() {
	if m == nil {
		return
	}
	m.contractRefills.Inc()
}

// ObserveInfrastructureFailure records a failed provider call.
func (m *Metrics) ObserveInfrastructureFailure(operation string) {
	if m == nil {
		return
	}
	m.infrastructureFailure.WithLabelValues(operation).Inc()
}
