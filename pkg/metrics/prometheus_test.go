package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsIndependentRegistries(t *testing.T) {
	a := NewPrometheusMetrics(prometheus.NewRegistry())
	b := NewPrometheusMetrics(nil)

	a.RecordRequest("openrouter", "m", "ok")
	a.RecordRequest("openrouter", "m", "ok")
	b.RecordRequest("openrouter", "m", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(a.RequestsTotal.WithLabelValues("openrouter", "m", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.RequestsTotal.WithLabelValues("openrouter", "m", "ok")))
}

func TestRecordHelpers(t *testing.T) {
	m := NewPrometheusMetrics(nil)

	m.RecordTokens("p", "m", 10, 0)
	m.RecordCost("p", "m", "USD", 0)
	m.RecordRetry("m", "E_RATE_LIMITED")
	m.RecordRun("paradox", "completed", 3*time.Second)
	m.RecordIteration("paradox", "scored")
	m.RecordAllocationConflict()
	m.RecordMigration()
	m.RecordCircuitTransition("m", "open")

	assert.Equal(t, 10.0, testutil.ToFloat64(m.TokensInputTotal.WithLabelValues("p", "m")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.TokensOutputTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(m.CostTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("m", "E_RATE_LIMITED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("paradox", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AllocationConflictsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MigrationsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CircuitTransitionsTotal))
}
