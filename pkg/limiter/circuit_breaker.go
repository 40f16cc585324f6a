package limiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/pkg/registry"
	"github.com/sony/gobreaker"
)

// BreakerSettings controls when a model's breaker opens and how it probes
// the provider again.
type BreakerSettings struct {
	// HalfOpenProbes is the number of calls let through while half-open.
	HalfOpenProbes uint32        `json:"half_open_probes"`
	Interval       time.Duration `json:"interval"`
	OpenTimeout    time.Duration `json:"open_timeout"`
	MinRequests    uint32        `json:"min_requests"`
	FailureRatio   float64       `json:"failure_ratio"`
}

// DefaultBreakerSettings opens after at least 5 calls of which half failed.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		HalfOpenProbes: 3,
		Interval:       10 * time.Second,
		OpenTimeout:    30 * time.Second,
		MinRequests:    5,
		FailureRatio:   0.5,
	}
}

// settingsFor loosens the defaults for models with generous provider limits;
// their bursts of transient faults are usually short.
func settingsFor(mc registry.ModelConfig) BreakerSettings {
	s := DefaultBreakerSettings()
	if mc.MaxRPM > 5000 || mc.MaxTPM > 100000 {
		s.HalfOpenProbes = 5
		s.MinRequests = 10
		s.FailureRatio = 0.6
	}
	return s
}

// StateChangeFunc observes breaker transitions. name is the model id.
type StateChangeFunc func(name string, from, to gobreaker.State)

// BreakerStats is a point-in-time view of one model's breaker.
type BreakerStats struct {
	State               string          `json:"state"`
	Requests            uint32          `json:"requests"`
	Failures            uint32          `json:"failures"`
	ConsecutiveFailures uint32          `json:"consecutive_failures"`
	Settings            BreakerSettings `json:"settings"`
}

type breaker struct {
	cb       *gobreaker.CircuitBreaker
	settings BreakerSettings
}

// CircuitBreakerManager keeps one breaker per model id.
type CircuitBreakerManager struct {
	mu            sync.Mutex
	breakers      map[string]*breaker
	overrides     map[string]BreakerSettings
	onStateChange StateChangeFunc
}

// NewCircuitBreakerManager creates a manager reporting transitions to
// onStateChange, which may be nil.
func NewCircuitBreakerManager(onStateChange StateChangeFunc) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers:      make(map[string]*breaker),
		overrides:     make(map[string]BreakerSettings),
		onStateChange: onStateChange,
	}
}

// Configure replaces the settings of modelID and drops its current breaker.
func (cbm *CircuitBreakerManager) Configure(modelID string, s BreakerSettings) {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()
	cbm.overrides[modelID] = s
	delete(cbm.breakers, modelID)
}

func (cbm *CircuitBreakerManager) get(mc registry.ModelConfig) *breaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if b, ok := cbm.breakers[mc.ID]; ok {
		return b
	}

	s, ok := cbm.overrides[mc.ID]
	if !ok {
		s = settingsFor(mc)
	}
	b := &breaker{settings: s}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        mc.ID,
		MaxRequests: s.HalfOpenProbes,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= s.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		// Bad credentials or an empty completion say nothing about the
		// provider's availability.
		IsSuccessful: func(err error) bool {
			return err == nil || !core.IsRetriable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if cbm.onStateChange != nil {
				cbm.onStateChange(name, from, to)
			}
		},
	})
	cbm.breakers[mc.ID] = b
	return b
}

// Execute runs fn through the model's breaker. An open breaker is reported
// as a retriable transient fault so the caller backs off.
func (cbm *CircuitBreakerManager) Execute(ctx context.Context, mc registry.ModelConfig, fn func(ctx context.Context) error) error {
	_, err := cbm.get(mc).cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return core.Wrap(core.ETransientNetwork, "circuit breaker for "+mc.ID+" is open", err)
	}
	return err
}

// State returns the breaker state of the model.
func (cbm *CircuitBreakerManager) State(mc registry.ModelConfig) gobreaker.State {
	return cbm.get(mc).cb.State()
}

// Snapshot returns the counters of the model's breaker.
func (cbm *CircuitBreakerManager) Snapshot(mc registry.ModelConfig) BreakerStats {
	b := cbm.get(mc)
	counts := b.cb.Counts()
	return BreakerStats{
		State:               b.cb.State().String(),
		Requests:            counts.Requests,
		Failures:            counts.TotalFailures,
		ConsecutiveFailures: counts.ConsecutiveFailures,
		Settings:            b.settings,
	}
}
