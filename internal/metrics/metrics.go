// Package metrics provides Prometheus metrics for topomap scan cycles,
// probes, persistence and summary generation. All collectors live on a
// private registry served by Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "topomap"

	subsystemScan     = "scan"
	subsystemRegistry = "registry"
	subsystemSummary  = "summary"
	subsystemStore    = "store"
)

// Outcome labels
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	probes         *prometheus.CounterVec
	probeDuration  *prometheus.HistogramVec
	enrichFailures *prometheus.CounterVec
	nodes          prometheus.Gauge
	state          prometheus.Gauge
	summaries      *prometheus.CounterVec
	snapshots      *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemScan,
		Name:      "cycles_total",
		Help:      "Scan cycles by mode and outcome",
	}, []string{"mode", "outcome"})

	m.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemScan,
		Name:      "cycle_duration_seconds",
		Help:      "Duration of complete scan cycles",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	m.probes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemScan,
		Name:      "probes_total",
		Help:      "Probes dispatched by phase and outcome",
	}, []string{"phase", "outcome"})

	m.probeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystemScan,
		Name:      "probe_duration_seconds",
		Help:      "Duration of individual probes by phase",
		Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"phase"})

	m.enrichFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemScan,
		Name:      "enrichment_failures_total",
		Help:      "Per-host enrichment failures by error code",
	}, []string{"code"})

	m.nodes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystemRegistry,
		Name:      "nodes",
		Help:      "Nodes currently in the topology registry",
	})

	m.state = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystemScan,
		Name:      "orchestrator_state",
		Help:      "Orchestrator state (0 idle, 1 running, 2 stopping)",
	})

	m.summaries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemSummary,
		Name:      "requests_total",
		Help:      "Summary generations by outcome",
	}, []string{"outcome"})

	m.snapshots = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystemStore,
		Name:      "snapshots_total",
		Help:      "Snapshot writes by outcome",
	}, []string{"outcome"})

	m.registry.MustRegister(
		m.cycles, m.cycleDuration, m.probes, m.probeDuration, m.enrichFailures,
		m.nodes, m.state, m.summaries, m.snapshots,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordCycle counts a finished cycle
func (m *Metrics) RecordCycle(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(mode, outcome).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// RecordProbe counts a probe for a phase ("sweep", "enrich", "trace")
func (m *Metrics) RecordProbe(phase, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(phase, outcome).Inc()
	m.probeDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordEnrichFailure counts a failed host enrichment by error code
func (m *Metrics) RecordEnrichFailure(code string) {
	if m == nil {
		return
	}
	m.enrichFailures.WithLabelValues(code).Inc()
}

// SetNodes sets the registry size
func (m *Metrics) SetNodes(n int) {
	if m == nil {
		return
	}
	m.nodes.Set(float64(n))
}

// SetState sets the orchestrator state gauge
func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}

// RecordSummary counts a summary generation
func (m *Metrics) RecordSummary(outcome string) {
	if m == nil {
		return
	}
	m.summaries.WithLabelValues(outcome).Inc()
}

// RecordSnapshot counts a snapshot write
func (m *Metrics) RecordSnapshot(outcome string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(outcome).Inc()
}
