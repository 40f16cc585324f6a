package limiter

import (
	"context"
	"sync"

	"github.com/snow-ghost/llmbench/pkg/registry"
	"golang.org/x/time/rate"
)

// RateStats describes the local limits applied to one model. Zero limits
// mean unlimited.
type RateStats struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	TokensPerMinute   int `json:"tokens_per_minute"`
	RequestBurst      int `json:"request_burst"`
	TokenBurst        int `json:"token_burst"`
}

// modelLimits pairs a request bucket with a token bucket.
type modelLimits struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
	stats    RateStats
}

// RateLimiter throttles calls per model from the registry's MaxRPM and
// MaxTPM. Models without either are not limited.
type RateLimiter struct {
	mu     sync.Mutex
	limits map[string]*modelLimits
}

// NewRateLimiter creates an empty limiter set.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limits: make(map[string]*modelLimits)}
}

func perMinute(n int) (*rate.Limiter, int) {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 1), 0
	}
	burst := max(1, n/10)
	return rate.NewLimiter(rate.Limit(float64(n)/60), burst), burst
}

func (rl *RateLimiter) get(mc registry.ModelConfig) *modelLimits {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limits[mc.ID]; ok {
		return l
	}
	l := &modelLimits{stats: RateStats{RequestsPerMinute: max(0, mc.MaxRPM), TokensPerMinute: max(0, mc.MaxTPM)}}
	l.requests, l.stats.RequestBurst = perMinute(mc.MaxRPM)
	l.tokens, l.stats.TokenBurst = perMinute(mc.MaxTPM)
	rl.limits[mc.ID] = l
	return l
}

// Wait blocks until the model may send one request of about tokens tokens.
// Requests larger than the token burst wait for a full burst.
func (rl *RateLimiter) Wait(ctx context.Context, mc registry.ModelConfig, tokens int) error {
	l := rl.get(mc)
	if err := l.requests.Wait(ctx); err != nil {
		return err
	}
	if l.stats.TokensPerMinute == 0 || tokens <= 0 {
		return nil
	}
	return l.tokens.WaitN(ctx, min(tokens, l.stats.TokenBurst))
}

// Allow reports whether one request could be sent right now, consuming it
// if so.
func (rl *RateLimiter) Allow(mc registry.ModelConfig) bool {
	return rl.get(mc).requests.Allow()
}

// Snapshot returns the limits applied to the model.
func (rl *RateLimiter) Snapshot(mc registry.ModelConfig) RateStats {
	return rl.get(mc).stats
}
