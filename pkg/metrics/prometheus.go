// Package metrics exposes the engine's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metrics
type PrometheusMetrics struct {
	// Provider metrics
	RequestsTotal    *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec
	RetriesTotal     *prometheus.CounterVec

	// Token metrics
	TokensInputTotal  *prometheus.CounterVec
	TokensOutputTotal *prometheus.CounterVec

	// Cost metrics
	CostTotal *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitTransitionsTotal *prometheus.CounterVec

	// Run metrics
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	IterationsTotal *prometheus.CounterVec

	// Store metrics
	AllocationConflictsTotal prometheus.Counter
	MigrationsTotal          prometheus.Counter

	registry *prometheus.Registry
}

// NewPrometheusMetrics registers the metrics on reg. A nil reg gets a
// fresh registry, so several instances never collide.
func NewPrometheusMetrics(reg *prometheus.Registry) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bench_provider_requests_total",
				Help: "Provider calls by outcome kind",
			},
			[]string{"provider", "model", "kind"},
		),

		LatencyHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bench_provider_latency_seconds",
				Help:    "Provider call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),

		RetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bench_provider_retries_total",
				Help: "Provider call retries by reason",
			},
			[]string{"model", "reason"},
		),

		TokensInputTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bench_tokens_input_total",
				Help: "Total number of input tokens sent",
			},
			[]string{"provider", "model"},
		),

		TokensOutputTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bench_tokens_output_total",
				Help: "Total number of output tokens received",
			},
			[]string{"provider", "model"},
		),

		CostTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bench_cost_total",
				Help: "Total cost of provider calls",
			},
			[]string{"provider", "model", "currency"},
		),

		CircuitTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bench_circuit_transitions_total",
				Help: "Circuit breaker state changes by target state",
			},
			[]string{"model", "state"},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bench_runs_total",
				Help: "Runs by scenario type and final state",
			},
			[]string{"scenario_type", "state"},
		),

		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bench_run_duration_seconds",
				Help:    "Wall time of a run",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"scenario_type"},
		),

		IterationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bench_iterations_total",
				Help: "Iterations by outcome",
			},
			[]string{"scenario_type", "outcome"},
		),

		AllocationConflictsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bench_runid_conflicts_total",
				Help: "Run id claims lost to a concurrent writer",
			},
		),

		MigrationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bench_legacy_migrations_total",
				Help: "Legacy runs relocated to strict ids",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest records a provider call outcome
func (m *PrometheusMetrics) RecordRequest(provider, model, kind string) {
	m.RequestsTotal.WithLabelValues(provider, model, kind).Inc()
}

// RecordLatency records a latency metric
func (m *PrometheusMetrics) RecordLatency(provider, model string, duration time.Duration) {
	m.LatencyHistogram.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordTokens records token metrics
func (m *PrometheusMetrics) RecordTokens(provider, model string, inputTokens, outputTokens int) {
	if inputTokens > 0 {
		m.TokensInputTotal.WithLabelValues(provider, model).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.TokensOutputTotal.WithLabelValues(provider, model).Add(float64(outputTokens))
	}
}

// RecordCost records a cost metric
func (m *PrometheusMetrics) RecordCost(provider, model, currency string, cost float64) {
	if cost > 0 {
		m.CostTotal.WithLabelValues(provider, model, currency).Add(cost)
	}
}

// RecordRetry records a retry
func (m *PrometheusMetrics) RecordRetry(model, reason string) {
	m.RetriesTotal.WithLabelValues(model, reason).Inc()
}

// RecordCircuitTransition records a circuit breaker state change
func (m *PrometheusMetrics) RecordCircuitTransition(model, state string) {
	m.CircuitTransitionsTotal.WithLabelValues(model, state).Inc()
}

// RecordRun records a finished run
func (m *PrometheusMetrics) RecordRun(scenarioType, state string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(scenarioType, state).Inc()
	m.RunDuration.WithLabelValues(scenarioType).Observe(duration.Seconds())
}

// RecordIteration records one iteration outcome ("scored" or an error code)
func (m *PrometheusMetrics) RecordIteration(scenarioType, outcome string) {
	m.IterationsTotal.WithLabelValues(scenarioType, outcome).Inc()
}

// RecordAllocationConflict records a lost run id claim
func (m *PrometheusMetrics) RecordAllocationConflict() {
	m.AllocationConflictsTotal.Inc()
}

// RecordMigration records a relocated legacy run
func (m *PrometheusMetrics) RecordMigration() {
	m.MigrationsTotal.Inc()
}
