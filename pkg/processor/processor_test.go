package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/llm/mock"
	"github.com/snow-ghost/llmbench/pkg/limiter"
	"github.com/snow-ghost/llmbench/pkg/observability"
	"github.com/snow-ghost/llmbench/pkg/providers"
	"github.com/snow-ghost/llmbench/pkg/registry"
	"github.com/snow-ghost/llmbench/pkg/runstore"
)

type invokerFunc func(ctx context.Context, req core.InvokeRequest) (string, error)

func (f invokerFunc) Invoke(ctx context.Context, req core.InvokeRequest) (string, error) {
	return f(ctx, req)
}

// countingInvoker numbers calls from 1 in the order they start.
func countingInvoker(fn func(ctx context.Context, call int) (string, error)) (core.Invoker, *atomic.Int32) {
	var calls atomic.Int32
	return invokerFunc(func(ctx context.Context, _ core.InvokeRequest) (string, error) {
		return fn(ctx, int(calls.Add(1)))
	}), &calls
}

func numericScenario() core.Scenario {
	return core.Scenario{
		ID:             "arith",
		Title:          "Arithmetic",
		Type:           core.ScenarioCapability,
		PromptTemplate: "What is 6*7? Reply with digits only.",
		Rules: core.ScoringRules{Text: &core.TextRules{
			Required:      []string{`^\d+$`},
			PassThreshold: 0.8,
		}},
	}
}

func choiceScenario() core.Scenario {
	return core.Scenario{
		ID:             "trolley",
		Title:          "Trolley",
		Type:           core.ScenarioParadox,
		PromptTemplate: "Pick one:\n{{OPTIONS}}",
		Rules: core.ScoringRules{Choice: &core.ChoiceRules{Options: []core.Option{
			{ID: 1, Label: "Pull", Description: "Pull the lever"},
			{ID: 2, Label: "Wait", Description: "Do nothing"},
		}}},
	}
}

func newStore(t *testing.T) *runstore.Store {
	t.Helper()
	s, err := runstore.New(t.TempDir())
	require.NoError(t, err)
	return s
}

type transitionLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *transitionLog) observe(_ context.Context, _ core.RunConfig, from, to core.RunState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, string(from)+"->"+string(to))
}

func (l *transitionLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.steps...)
}

func TestExecuteNumericRun(t *testing.T) {
	invoker, calls := countingInvoker(func(ctx context.Context, call int) (string, error) {
		return "42", nil
	})
	store := newStore(t)
	log := &transitionLog{}
	p := New(invoker, store, Config{Concurrency: 2}, WithStateObserver(log.observe))

	rec, err := p.Execute(context.Background(), core.NewRunConfig("gpt-4o", numericScenario(), 5))
	require.NoError(t, err)

	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, "gpt-4o-001", rec.RunID)
	require.NotNil(t, rec.Summary.TextSummary)
	assert.Equal(t, 5, rec.Summary.Total)
	assert.Equal(t, 100.0, rec.Summary.PassRate)
	assert.Equal(t, 1.0, rec.Summary.AverageScore)
	assert.Equal(t, []string{"pending->running", "running->completed"}, log.get())

	stored, err := store.Get(context.Background(), rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, rec.Summary.PassRate, stored.Summary.PassRate)
	assert.Len(t, stored.Responses, 5)
}

type safeSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *safeSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func TestExecuteRecoversFromRateLimits(t *testing.T) {
	rateLimited := core.New(core.ERateLimited, "429")
	provider := mock.New(mock.Fail(rateLimited), mock.Fail(rateLimited), mock.Text("42"))
	sl := &safeSleeper{}

	obs := observability.NewNop()
	retry := limiter.NewRetryManager(&limiter.RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Minute, BackoffFactor: 2}, limiter.WithSleep(sl.sleep))
	pm := limiter.NewProtectionManager(retry, nil, time.Second, limiter.WithRetryObserver(obs.RetryHook))
	reg := &registry.Registry{Models: []registry.ModelConfig{{ID: "bench/model", Provider: registry.ProviderMock}}}
	client := providers.NewClient(reg, providers.NewProviderFactory(),
		providers.WithProvider("bench/model", provider), providers.WithProtection(pm), providers.WithObservability(obs))

	p := New(client, newStore(t), Config{Concurrency: 1}, WithObservability(obs))
	rec, err := p.Execute(context.Background(), core.NewRunConfig("bench/model", numericScenario(), 1))
	require.NoError(t, err)

	assert.Equal(t, 3, provider.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sl.waits)
	require.Len(t, rec.Responses, 1)
	assert.True(t, rec.Responses[0].Succeeded())
	assert.Equal(t, 100.0, rec.Summary.PassRate)
}

func TestExecuteKeepsIterationOrder(t *testing.T) {
	const n = 8
	invoker, _ := countingInvoker(func(ctx context.Context, call int) (string, error) {
		time.Sleep(time.Duration(n-call) * 3 * time.Millisecond)
		return fmt.Sprint(call), nil
	})
	p := New(invoker, newStore(t), Config{Concurrency: n})

	rec, err := p.Execute(context.Background(), core.NewRunConfig("m", numericScenario(), n))
	require.NoError(t, err)

	require.Len(t, rec.Responses, n)
	seen := make(map[string]bool)
	for i, res := range rec.Responses {
		assert.Equal(t, i+1, res.Iteration)
		seen[res.Raw] = true
	}
	assert.Len(t, seen, n)
}

func TestExecuteRespectsConcurrencyCeiling(t *testing.T) {
	var inFlight, peak atomic.Int32
	invoker := invokerFunc(func(ctx context.Context, _ core.InvokeRequest) (string, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return "1", nil
	})
	p := New(invoker, newStore(t), Config{Concurrency: 2})

	_, err := p.Execute(context.Background(), core.NewRunConfig("m", numericScenario(), 10))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestExecuteRecordsTypedFailures(t *testing.T) {
	invoker, _ := countingInvoker(func(ctx context.Context, call int) (string, error) {
		switch call {
		case 2:
			return "", core.New(core.ETransientNetwork, "connection reset")
		case 4:
			return "", core.New(core.EEmptyResponse, "no content")
		}
		return "7", nil
	})
	p := New(invoker, newStore(t), Config{Concurrency: 1})

	rec, err := p.Execute(context.Background(), core.NewRunConfig("m", numericScenario(), 5))
	require.NoError(t, err)

	assert.Equal(t, 3, rec.Summary.Total)
	assert.Equal(t, 2, rec.Summary.ErrorCount)
	assert.Equal(t, 100.0, rec.Summary.PassRate)

	failed := rec.Responses[1]
	require.NotNil(t, failed.Failure)
	assert.Equal(t, core.ETransientNetwork, failed.Failure.Code)
	assert.Empty(t, failed.Raw)
	assert.Nil(t, failed.TextOutcome)
	assert.Equal(t, core.EEmptyResponse, rec.Responses[3].Failure.Code)
}

func TestExecuteFailsWhenNothingSucceeds(t *testing.T) {
	invoker, _ := countingInvoker(func(ctx context.Context, call int) (string, error) {
		return "", core.New(core.EEmptyResponse, "no content")
	})
	store := newStore(t)
	log := &transitionLog{}
	p := New(invoker, store, Config{Concurrency: 2}, WithStateObserver(log.observe))

	_, err := p.Execute(context.Background(), core.NewRunConfig("m", numericScenario(), 3))
	assert.True(t, core.IsCode(err, core.ERunFailed), "got %v", err)
	assert.Equal(t, []string{"pending->running", "running->failed"}, log.get())

	runs, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExecuteAbortsOnConfigurationErrors(t *testing.T) {
	for _, code := range []core.Code{core.EAuth, core.EQuota} {
		t.Run(string(code), func(t *testing.T) {
			invoker, calls := countingInvoker(func(ctx context.Context, call int) (string, error) {
				return "", core.New(code, "rejected")
			})
			store := newStore(t)
			p := New(invoker, store, Config{Concurrency: 1})

			_, err := p.Execute(context.Background(), core.NewRunConfig("m", numericScenario(), 5))
			assert.True(t, core.IsCode(err, code), "got %v", err)
			assert.Less(t, calls.Load(), int32(5))

			runs, err := store.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, runs)
		})
	}
}

func TestExecuteTimesOut(t *testing.T) {
	invoker, _ := countingInvoker(func(ctx context.Context, call int) (string, error) {
		if call == 1 {
			return "1", nil
		}
		<-ctx.Done()
		return "", ctx.Err()
	})
	store := newStore(t)
	log := &transitionLog{}
	p := New(invoker, store, Config{Concurrency: 2, RunTimeout: 50 * time.Millisecond}, WithStateObserver(log.observe))

	_, err := p.Execute(context.Background(), core.NewRunConfig("m", numericScenario(), 4))
	assert.True(t, core.IsCode(err, core.ETimeout), "got %v", err)
	assert.Equal(t, []string{"pending->running", "running->timed_out"}, log.get())

	runs, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs, "partial runs are never persisted")
}

func TestExecuteTimesOutWithUncooperativeInvoker(t *testing.T) {
	invoker := invokerFunc(func(ctx context.Context, _ core.InvokeRequest) (string, error) {
		time.Sleep(500 * time.Millisecond)
		return "1", nil
	})
	p := New(invoker, newStore(t), Config{Concurrency: 1, RunTimeout: 30 * time.Millisecond})

	start := time.Now()
	_, err := p.Execute(context.Background(), core.NewRunConfig("m", numericScenario(), 2))
	assert.True(t, core.IsCode(err, core.ETimeout), "got %v", err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestExecuteParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	invoker := invokerFunc(func(ctx context.Context, _ core.InvokeRequest) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	p := New(invoker, newStore(t), Config{Concurrency: 1})

	_, err := p.Execute(ctx, core.NewRunConfig("m", numericScenario(), 2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, core.IsCode(err, core.ECanceled), "got %v", err)
	assert.Equal(t, "RunError: the run was cancelled before it finished", core.PublicMessage(err))
}

func TestExecuteParentDeadlineIsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	invoker := invokerFunc(func(ctx context.Context, _ core.InvokeRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	p := New(invoker, newStore(t), Config{Concurrency: 1, RunTimeout: time.Minute})

	_, err := p.Execute(ctx, core.NewRunConfig("m", numericScenario(), 2))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, core.IsCode(err, core.ETimeout), "got %v", err)
}

func TestExecuteValidatesBeforeCalling(t *testing.T) {
	invoker, calls := countingInvoker(func(ctx context.Context, call int) (string, error) {
		return "1", nil
	})
	log := &transitionLog{}
	p := New(invoker, newStore(t), Config{MaxIterations: 20}, WithStateObserver(log.observe))

	tests := map[string]core.RunConfig{
		"too many iterations": core.NewRunConfig("m", numericScenario(), 21),
		"zero iterations":     core.NewRunConfig("m", numericScenario(), 0),
		"bad model name":      core.NewRunConfig("model name with spaces", numericScenario(), 1),
		"mismatched type": func() core.RunConfig {
			cfg := core.NewRunConfig("m", numericScenario(), 1)
			cfg.ScenarioType = core.ScenarioParadox
			return cfg
		}(),
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := p.Execute(context.Background(), cfg)
			assert.True(t, core.IsCode(err, core.EValidation), "got %v", err)
		})
	}
	assert.Zero(t, calls.Load())
	for _, step := range log.get() {
		assert.Equal(t, "pending->failed", step)
	}
}

func TestExecuteChoiceRun(t *testing.T) {
	var (
		mu      sync.Mutex
		prompts = map[string]bool{}
	)
	replies := []string{"{1} pull it", "{2} wait", "{1} then {2}", "I refuse to choose"}
	invoker, _ := countingInvoker(func(ctx context.Context, call int) (string, error) {
		return replies[call-1], nil
	})
	recording := invokerFunc(func(ctx context.Context, req core.InvokeRequest) (string, error) {
		mu.Lock()
		prompts[req.Prompt] = true
		mu.Unlock()
		return invoker.Invoke(ctx, req)
	})
	p := New(recording, newStore(t), Config{Concurrency: 1})

	rec, err := p.Execute(context.Background(), core.NewRunConfig("m", choiceScenario(), 4))
	require.NoError(t, err)

	require.Len(t, prompts, 1, "prompt is rendered once per run")
	for prompt := range prompts {
		assert.True(t, strings.Contains(prompt, "{1} **Pull**: Pull the lever"))
		assert.Equal(t, rec.Prompt, prompt)
	}

	sum := rec.Summary.ChoiceSummary
	require.NotNil(t, sum)
	assert.Equal(t, 2, sum.Options[0].Count)
	assert.Equal(t, 1, sum.Options[1].Count)
	assert.Equal(t, 1, sum.Undecided.Count)
	assert.Equal(t, 1, sum.AmbiguousCount)
	assert.Len(t, rec.Options, 2)
	assert.Nil(t, rec.Responses[3].OptionID)
}

func TestExecuteAppliesOptionOverrides(t *testing.T) {
	invoker, _ := countingInvoker(func(ctx context.Context, call int) (string, error) {
		return "{3} ask", nil
	})
	p := New(invoker, newStore(t), Config{})

	cfg := core.NewRunConfig("m", choiceScenario(), 2)
	cfg.OptionOverrides = []core.OptionOverride{
		{ID: 1, Description: "Act"},
		{ID: 2, Description: "Abstain"},
		{ID: 3, Description: "Delegate"},
	}
	rec, err := p.Execute(context.Background(), cfg)
	require.NoError(t, err)

	require.Len(t, rec.Options, 3)
	assert.Equal(t, "Delegate", rec.Options[2].Description)
	assert.Equal(t, 2, rec.Summary.Options[2].Count)
}
