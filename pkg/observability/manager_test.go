package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"

	"github.com/snow-ghost/llmbench/core"
)

func TestRetryHookCountsByCode(t *testing.T) {
	m := NewNop()
	hook := m.RetryHook("model-a")

	hook(1, time.Second, core.New(core.ERateLimited, "slow down"))
	hook(2, 2*time.Second, core.New(core.ERateLimited, "slow down"))
	hook(1, time.Second, errors.New("plain"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GetMetrics().RetriesTotal.WithLabelValues("model-a", "E_RATE_LIMITED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GetMetrics().RetriesTotal.WithLabelValues("model-a", "unknown")))
}

func TestBreakerHook(t *testing.T) {
	m := NewNop()
	m.BreakerHook()("openai/gpt-4o", gobreaker.StateClosed, gobreaker.StateOpen)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GetMetrics().CircuitTransitionsTotal.WithLabelValues("openai/gpt-4o", "open")))
}

func TestRecordProviderCall(t *testing.T) {
	m := NewNop()
	m.RecordProviderCall("openrouter", "m", nil, time.Second, 10, 5, 0.01, "USD")
	m.RecordProviderCall("openrouter", "m", core.New(core.EAuth, "bad key"), time.Second, 0, 0, 0, "")
	m.RecordProviderCall("openrouter", "m", context.Canceled, time.Second, 0, 0, 0, "")

	mm := m.GetMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.RequestsTotal.WithLabelValues("openrouter", "m", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.RequestsTotal.WithLabelValues("openrouter", "m", "E_AUTH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.RequestsTotal.WithLabelValues("openrouter", "m", "canceled")))
	assert.Equal(t, 10.0, testutil.ToFloat64(mm.TokensInputTotal.WithLabelValues("openrouter", "m")))
}

func TestAttemptContext(t *testing.T) {
	ctx := WithAttempt(context.Background(), "att-1")
	assert.Equal(t, "att-1", AttemptFromContext(ctx))
	assert.Empty(t, AttemptFromContext(context.Background()))
}
