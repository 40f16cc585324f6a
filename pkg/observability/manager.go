// Package observability bundles the logger, metrics and tracer handed to
// the engine's components.
package observability

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/pkg/limiter"
	"github.com/snow-ghost/llmbench/pkg/logging"
	"github.com/snow-ghost/llmbench/pkg/metrics"
	"github.com/snow-ghost/llmbench/pkg/tracing"
)

// Manager manages all observability components
type Manager struct {
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
	logger  *logging.Logger
}

// Config holds observability configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	JaegerEndpoint string
	LogLevel       string
	LogFormat      string
	LogOutput      string
}

// NewManager creates a new observability manager
func NewManager(config Config) (*Manager, error) {
	tracer, err := tracing.NewTracer(tracing.Config{
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		JaegerEndpoint: config.JaegerEndpoint,
		Environment:    config.Environment,
	})
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:     config.LogLevel,
		Format:    config.LogFormat,
		Output:    config.LogOutput,
		AddCaller: true,
	})
	if err != nil {
		return nil, err
	}

	return &Manager{
		metrics: metrics.NewPrometheusMetrics(prometheus.NewRegistry()),
		tracer:  tracer,
		logger:  logger,
	}, nil
}

// NewNop returns a manager that logs and traces nothing. Metrics go to a
// private registry.
func NewNop() *Manager {
	return New(logging.NewNop(), metrics.NewPrometheusMetrics(nil), tracing.NewNoop())
}

// New assembles a manager from existing components
func New(logger *logging.Logger, m *metrics.PrometheusMetrics, tracer *tracing.Tracer) *Manager {
	return &Manager{metrics: m, tracer: tracer, logger: logger}
}

// GetMetrics returns the metrics instance
func (m *Manager) GetMetrics() *metrics.PrometheusMetrics {
	return m.metrics
}

// GetTracer returns the tracer instance
func (m *Manager) GetTracer() *tracing.Tracer {
	return m.tracer
}

// GetLogger returns the logger instance
func (m *Manager) GetLogger() *logging.Logger {
	return m.logger
}

// RetryHook returns a limiter hook that logs and counts retries of model.
func (m *Manager) RetryHook(model string) limiter.RetryHook {
	return func(attempt int, delay time.Duration, err error) {
		reason := string(core.GetCode(err))
		if reason == "" {
			reason = "unknown"
		}
		m.metrics.RecordRetry(model, reason)
		m.logger.LogRetry(context.Background(), model, reason, attempt, delay)
	}
}

// BreakerHook returns a limiter hook that logs and counts circuit breaker
// transitions.
func (m *Manager) BreakerHook() limiter.StateChangeFunc {
	return func(model string, from, to gobreaker.State) {
		m.metrics.RecordCircuitTransition(model, to.String())
		m.logger.LogCircuitBreaker(context.Background(), model, from.String(), to.String())
	}
}

// RecordProviderCall records the metrics of one finished provider call
func (m *Manager) RecordProviderCall(provider, model string, err error, duration time.Duration, inputTokens, outputTokens int, cost float64, currency string) {
	kind := "ok"
	if err != nil {
		kind = string(core.GetCode(err))
		switch {
		case kind != "":
		case errors.Is(err, context.DeadlineExceeded):
			kind = "deadline"
		default:
			kind = "canceled"
		}
	}
	m.metrics.RecordRequest(provider, model, kind)
	m.metrics.RecordLatency(provider, model, duration)
	if err == nil {
		m.metrics.RecordTokens(provider, model, inputTokens, outputTokens)
		m.metrics.RecordCost(provider, model, currency, cost)
	}
}

// Shutdown shuts down all observability components
func (m *Manager) Shutdown(ctx context.Context) error {
	if err := m.tracer.Shutdown(ctx); err != nil {
		return err
	}
	// stderr cannot be synced on some platforms
	_ = m.logger.Sync()
	return nil
}

type ctxKey int

const attemptKey ctxKey = iota

// WithAttempt adds the run attempt id to ctx
func WithAttempt(ctx context.Context, attemptID string) context.Context {
	return context.WithValue(ctx, attemptKey, attemptID)
}

// AttemptFromContext extracts the run attempt id from ctx
func AttemptFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(attemptKey).(string); ok {
		return id
	}
	return ""
}
