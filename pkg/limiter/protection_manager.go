package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/pkg/registry"
)

// DefaultCallTimeout bounds a single provider attempt.
const DefaultCallTimeout = 60 * time.Second

// ProtectionManager integrates rate limiting, retries, and circuit breaker.
// Every attempt waits on the model's rate limiter, passes the model's
// circuit breaker and runs under its own deadline; the retry manager
// decides whether a failed attempt is tried again.
type ProtectionManager struct {
	rateLimiter    *RateLimiter
	retryManager   *RetryManager
	circuitBreaker *CircuitBreakerManager
	callTimeout    time.Duration
	retryObserver  func(modelID string) RetryHook
}

// ProtectionOption configures a ProtectionManager.
type ProtectionOption func(*ProtectionManager)

// WithRetryObserver registers a factory of per-model retry hooks.
func WithRetryObserver(observer func(modelID string) RetryHook) ProtectionOption {
	return func(pm *ProtectionManager) { pm.retryObserver = observer }
}

// NewProtectionManager creates a new protection manager. Nil components are
// replaced with defaults.
func NewProtectionManager(retry *RetryManager, breakers *CircuitBreakerManager, callTimeout time.Duration, opts ...ProtectionOption) *ProtectionManager {
	if retry == nil {
		retry = NewRetryManager(DefaultRetryConfig())
	}
	if breakers == nil {
		breakers = NewCircuitBreakerManager(nil)
	}
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	pm := &ProtectionManager{
		rateLimiter:    NewRateLimiter(),
		retryManager:   retry,
		circuitBreaker: breakers,
		callTimeout:    callTimeout,
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

// ModelStats is the protection state of one model.
type ModelStats struct {
	Model       string        `json:"model"`
	Rate        RateStats     `json:"rate"`
	Breaker     BreakerStats  `json:"breaker"`
	Retry       RetryConfig   `json:"retry"`
	CallTimeout time.Duration `json:"call_timeout"`
}

// Execute runs fn with all protection mechanisms. tokens is the expected
// size of the request and weighs it against the model's token budget.
func (pm *ProtectionManager) Execute(ctx context.Context, model registry.ModelConfig, tokens int, fn func(ctx context.Context) error) error {
	var hook RetryHook
	if pm.retryObserver != nil {
		hook = pm.retryObserver(model.ID)
	}
	return pm.retryManager.ExecuteWithHook(ctx, func(ctx context.Context) error {
		return pm.attempt(ctx, model, tokens, fn)
	}, hook)
}

func (pm *ProtectionManager) attempt(ctx context.Context, model registry.ModelConfig, tokens int, fn func(ctx context.Context) error) error {
	if err := pm.rateLimiter.Wait(ctx, model, tokens); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.Wrap(core.ERateLimited, "local rate limit for "+model.ID, err)
	}

	return pm.circuitBreaker.Execute(ctx, model, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, pm.callTimeout)
		defer cancel()

		err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return core.Wrap(core.ETransientNetwork, "provider call exceeded its deadline", err)
		}
		return err
	})
}

// Snapshot returns the protection state of a model.
func (pm *ProtectionManager) Snapshot(model registry.ModelConfig) ModelStats {
	return ModelStats{
		Model:       model.ID,
		Rate:        pm.rateLimiter.Snapshot(model),
		Breaker:     pm.circuitBreaker.Snapshot(model),
		Retry:       pm.retryManager.Config(),
		CallTimeout: pm.callTimeout,
	}
}
