package limiter

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/snow-ghost/llmbench/core"
)

// RetryConfig holds retry configuration. MaxRetries counts retries after
// the first attempt, so a call is tried at most MaxRetries+1 times.
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries"`
	BaseDelay     time.Duration `json:"base_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	Jitter        bool          `json:"jitter"`
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:    5,
		BaseDelay:     2 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        false,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryHook observes a retry before its backoff wait.
type RetryHook func(attempt int, delay time.Duration, err error)

// RetryManager manages retry logic
type RetryManager struct {
	config  *RetryConfig
	sleep   SleepFunc
	onRetry RetryHook
}

// RetryOption configures a RetryManager.
type RetryOption func(*RetryManager)

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(sleep SleepFunc) RetryOption {
	return func(rm *RetryManager) { rm.sleep = sleep }
}

// WithRetryHook registers a hook called before every backoff wait.
func WithRetryHook(hook RetryHook) RetryOption {
	return func(rm *RetryManager) { rm.onRetry = hook }
}

// NewRetryManager creates a new retry manager
func NewRetryManager(config *RetryConfig, opts ...RetryOption) *RetryManager {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.BackoffFactor <= 0 {
		config.BackoffFactor = 2.0
	}
	rm := &RetryManager{config: config, sleep: sleepContext}
	for _, opt := range opts {
		opt(rm)
	}
	return rm
}

// Config returns the active configuration.
func (rm *RetryManager) Config() RetryConfig {
	return *rm.config
}

// Execute runs fn until it succeeds, fails with a non-retriable error, or
// the retry budget is spent. Only errors marked retriable by their
// core.Error are retried. Cancellation of ctx stops the loop immediately.
func (rm *RetryManager) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return rm.ExecuteWithHook(ctx, fn, nil)
}

// ExecuteWithHook is Execute with an additional retry hook for this call.
func (rm *RetryManager) ExecuteWithHook(ctx context.Context, fn func(ctx context.Context) error, hook RetryHook) error {
	var lastErr error

	for attempt := 0; attempt <= rm.config.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !core.IsRetriable(err) {
			return err
		}
		if attempt == rm.config.MaxRetries {
			break
		}

		delay := rm.calculateDelay(attempt)
		if rm.onRetry != nil {
			rm.onRetry(attempt+1, delay, err)
		}
		if hook != nil {
			hook(attempt+1, delay, err)
		}
		if err := rm.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Retry runs fn under rm and returns its value.
func Retry[T any](ctx context.Context, rm *RetryManager, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := rm.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// calculateDelay calculates the delay for the given attempt
func (rm *RetryManager) calculateDelay(attempt int) time.Duration {
	// Exponential backoff: baseDelay * (backoffFactor ^ attempt)
	delay := float64(rm.config.BaseDelay) * math.Pow(rm.config.BackoffFactor, float64(attempt))

	// Cap at max delay
	if rm.config.MaxDelay > 0 && delay > float64(rm.config.MaxDelay) {
		delay = float64(rm.config.MaxDelay)
	}

	if rm.config.Jitter {
		// Add ±25% jitter
		jitter := rand.Float64()*0.5 - 0.25
		delay = delay * (1 + jitter)
	}

	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
