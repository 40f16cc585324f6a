// Package processor executes benchmark runs: it fans a rendered prompt out
// to a model under a concurrency ceiling and a run deadline, scores every
// response, summarises the run and hands the record to the run store.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/pkg/limiter"
	"github.com/snow-ghost/llmbench/pkg/observability"
	"github.com/snow-ghost/llmbench/pkg/scoring"
	"github.com/snow-ghost/llmbench/pkg/stats"
	"github.com/snow-ghost/llmbench/pkg/tracing"
)

// Config bounds every run.
type Config struct {
	Concurrency   int
	RunTimeout    time.Duration
	MaxIterations int
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		Concurrency:   2,
		RunTimeout:    300 * time.Second,
		MaxIterations: 20,
	}
}

// Processor runs benchmark configurations.
type Processor struct {
	invoker   core.Invoker
	store     core.RunStore
	config    Config
	obs       *observability.Manager
	observers []StateObserver
	now       func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithStateObserver registers a callback for run state transitions.
func WithStateObserver(obs StateObserver) Option {
	return func(p *Processor) { p.observers = append(p.observers, obs) }
}

// WithObservability routes logs, metrics and spans through obs.
func WithObservability(obs *observability.Manager) Option {
	return func(p *Processor) { p.obs = obs }
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a processor. Zero config fields take DefaultConfig values.
func New(invoker core.Invoker, store core.RunStore, config Config, opts ...Option) *Processor {
	def := DefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = def.RunTimeout
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = def.MaxIterations
	}

	p := &Processor{
		invoker: invoker,
		store:   store,
		config:  config,
		obs:     observability.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.observers = append([]StateObserver{p.logTransition}, p.observers...)
	return p
}

// Execute runs cfg to completion and returns the persisted record. Nothing
// is persisted unless the run completes.
func (p *Processor) Execute(ctx context.Context, cfg core.RunConfig) (*core.RunRecord, error) {
	attemptID := uuid.NewString()
	ctx = observability.WithAttempt(ctx, attemptID)
	start := time.Now()
	r := newRun(cfg, p.observers)

	rec, err := p.execute(ctx, r, cfg)
	p.obs.GetMetrics().RecordRun(string(cfg.ScenarioType), string(r.State()), time.Since(start))
	return rec, err
}

func (p *Processor) execute(ctx context.Context, r *run, cfg core.RunConfig) (*core.RunRecord, error) {
	logger := p.obs.GetLogger().WithAttempt(observability.AttemptFromContext(ctx))

	if err := cfg.Validate(p.config.MaxIterations); err != nil {
		r.moveTo(ctx, core.RunFailed)
		return nil, err
	}
	prompt, options, err := scoring.RenderPrompt(cfg.PromptTemplate, cfg.Rules, cfg.OptionOverrides)
	if err != nil {
		r.moveTo(ctx, core.RunFailed)
		return nil, err
	}
	scorer := scoring.NewScorer(cfg.Rules)
	if options != nil {
		scorer = scorer.WithOptionCount(len(options))
	}

	r.moveTo(ctx, core.RunRunning)
	ctx, span := p.obs.GetTracer().StartRunSpan(ctx, cfg.ScenarioID, cfg.ModelName, cfg.IterationCount)
	defer span.End()
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		logger = logger.WithTraceID(ctx, traceID)
	}

	responses, err := p.dispatch(ctx, cfg, prompt, scorer)
	if err != nil {
		if core.IsCode(err, core.ETimeout) {
			r.moveTo(ctx, core.RunTimedOut)
		} else {
			r.moveTo(ctx, core.RunFailed)
		}
		tracing.RecordSpanError(span, err)
		return nil, err
	}

	summary := stats.Summarize(responses, cfg.Rules, options)
	if summary.Total == 0 {
		err := core.Newf(core.ERunFailed, "all %d iterations failed", cfg.IterationCount)
		r.moveTo(ctx, core.RunFailed)
		tracing.RecordSpanError(span, err)
		return nil, err
	}
	if summary.ChoiceSummary != nil && summary.AmbiguousCount > 0 {
		logger.Warn("Responses named more than one option", "scenario_id", cfg.ScenarioID, "ambiguous", summary.AmbiguousCount)
	}

	rec := &core.RunRecord{
		Timestamp:      p.now().UTC(),
		ModelName:      cfg.ModelName,
		ScenarioID:     cfg.ScenarioID,
		ScenarioType:   cfg.ScenarioType,
		Category:       cfg.Category,
		Prompt:         prompt,
		SystemPrompt:   cfg.SystemPrompt,
		IterationCount: cfg.IterationCount,
		Params:         cfg.Params,
		Options:        options,
		Summary:        summary,
		Responses:      responses,
	}
	if _, err := p.store.Create(ctx, rec); err != nil {
		r.moveTo(ctx, core.RunFailed)
		tracing.RecordSpanError(span, err)
		return nil, err
	}

	r.moveTo(ctx, core.RunCompleted)
	tracing.RecordRunSummary(span, rec.RunID, summary)
	tracing.RecordSpanSuccess(span)
	logger.Info("Run completed", "run_id", rec.RunID, "total", summary.Total, "errors", summary.ErrorCount)
	return rec, nil
}

// dispatch issues the iterations under the concurrency ceiling and the run
// deadline, returning the results in iteration order.
func (p *Processor) dispatch(ctx context.Context, cfg core.RunConfig, prompt string, scorer *scoring.Scorer) ([]core.IterationResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.config.RunTimeout)
	defer cancel()

	buf := newSlotBuffer(cfg.IterationCount)
	pool := limiter.NewPool(p.config.Concurrency)
	g, gctx := errgroup.WithContext(runCtx)
	req := core.InvokeRequest{
		Model:        cfg.ModelName,
		Prompt:       prompt,
		SystemPrompt: cfg.SystemPrompt,
		Params:       cfg.Params,
	}

	done := make(chan error, 1)
	go func() {
		for i := 1; i <= cfg.IterationCount; i++ {
			if err := pool.Acquire(gctx); err != nil {
				break
			}
			if gctx.Err() != nil {
				pool.Release()
				break
			}
			iteration := i
			g.Go(func() error {
				defer pool.Release()
				return p.iterate(gctx, cfg, iteration, req, scorer, buf)
			})
		}
		done <- g.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-runCtx.Done():
	}

	responses, complete := buf.close()
	switch {
	case complete && waitErr == nil:
		return responses, nil
	case ctx.Err() != nil:
		return nil, interrupted(ctx)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return nil, core.Newf(core.ETimeout, "run exceeded its %s deadline", p.config.RunTimeout)
	case waitErr != nil:
		return nil, waitErr
	default:
		return nil, core.New(core.ERunFailed, "run ended with missing iterations")
	}
}

// interrupted types the caller's own cancellation or deadline, keeping the
// context error as the cause.
func interrupted(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.Wrap(core.ETimeout, "caller deadline passed before the run finished", ctx.Err())
	}
	return core.Wrap(core.ECanceled, "run cancelled", ctx.Err())
}

// iterate performs one provider call. Configuration failures (E_AUTH,
// E_QUOTA) abort the batch; other failures become typed failure entries.
func (p *Processor) iterate(ctx context.Context, cfg core.RunConfig, i int, req core.InvokeRequest, scorer *scoring.Scorer, buf *slotBuffer) error {
	if ctx.Err() != nil {
		return nil
	}
	ctx, span := p.obs.GetTracer().StartIterationSpan(ctx, i)
	defer span.End()

	text, err := p.invoker.Invoke(ctx, req)
	if ctx.Err() != nil {
		// cancelled or timed out; the slot stays empty
		return nil
	}

	var res core.IterationResult
	if err != nil {
		tracing.RecordSpanError(span, err)
		code := core.GetCode(err)
		if code == "" {
			code = core.EProviderUnknown
		}
		p.obs.GetMetrics().RecordIteration(string(cfg.ScenarioType), string(code))
		if code == core.EAuth || code == core.EQuota {
			return err
		}
		p.obs.GetLogger().Warn("Iteration failed", "iteration", i, "model", cfg.ModelName, "code", string(code))
		res = scoring.Fail(i, err, p.now().UTC())
	} else {
		tracing.RecordSpanSuccess(span)
		p.obs.GetMetrics().RecordIteration(string(cfg.ScenarioType), "scored")
		res = scorer.Score(i, text, p.now().UTC())
	}

	tracing.RecordIterationOutcome(span, res)

	if !buf.put(i, res) {
		return fmt.Errorf("iteration %d result discarded", i)
	}
	return nil
}

func (p *Processor) logTransition(ctx context.Context, cfg core.RunConfig, from, to core.RunState) {
	p.obs.GetLogger().LogRunTransition(ctx, cfg.ScenarioID, cfg.ModelName, string(from), string(to))
}
