package stats

import (
	"math/rand/v2"
	"slices"

	"github.com/snow-ghost/llmbench/core"
)

const (
	DefaultResamples = 500

	// seedStream is the second PCG word; the caller's seed is the first.
	seedStream = 0x9e3779b97f4a7c15
)

// BootstrapConfig controls a bootstrap run. A nil Seed draws a fresh
// random seed; a fixed Seed makes the result bit-for-bit reproducible.
type BootstrapConfig struct {
	Resamples  int
	Confidence float64
	Seed       *uint64
}

// WithDefaults fills zero fields.
func (c BootstrapConfig) WithDefaults() BootstrapConfig {
	if c.Resamples <= 0 {
		c.Resamples = DefaultResamples
	}
	if c.Confidence == 0 {
		c.Confidence = DefaultConfidence
	}
	return c
}

// Seeded returns a config with an explicit seed.
func Seeded(seed uint64) BootstrapConfig {
	return BootstrapConfig{Seed: &seed}
}

// Interval is an empirical bootstrap interval around a point estimate.
type Interval struct {
	Estimate   float64 `json:"estimate"`
	Mean       float64 `json:"mean"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Confidence float64 `json:"confidence"`
	Resamples  int     `json:"resamples"`
}

func newRand(seed *uint64) *rand.Rand {
	if seed == nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(*seed, seedStream))
}

// Bootstrap resamples every group independently with replacement,
// evaluates statistic on each resample and returns the percentile interval.
// Groups are resampled in order, so a fixed seed fixes the whole sequence.
func Bootstrap[T any](groups [][]T, statistic func(groups [][]T) float64, cfg BootstrapConfig) (Interval, error) {
	cfg = cfg.WithDefaults()
	if len(groups) == 0 {
		return Interval{}, core.New(core.EInvalidInput, "bootstrap needs at least one group")
	}
	for i, g := range groups {
		if len(g) == 0 {
			return Interval{}, core.Newf(core.EInvalidInput, "bootstrap group %d is empty", i)
		}
	}
	if cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		return Interval{}, core.Newf(core.EInvalidInput, "confidence %v outside (0,1)", cfg.Confidence)
	}

	rng := newRand(cfg.Seed)
	resampled := make([][]T, len(groups))
	for i, g := range groups {
		resampled[i] = make([]T, len(g))
	}

	values := make([]float64, cfg.Resamples)
	sum := 0.0
	for b := range values {
		for i, g := range groups {
			for j := range resampled[i] {
				resampled[i][j] = g[rng.IntN(len(g))]
			}
		}
		values[b] = statistic(resampled)
		sum += values[b]
	}
	slices.Sort(values)

	alpha := 1 - cfg.Confidence
	lo := int(float64(cfg.Resamples) * alpha / 2)
	hi := min(int(float64(cfg.Resamples)*(1-alpha/2)), cfg.Resamples-1)

	return Interval{
		Estimate:   statistic(groups),
		Mean:       sum / float64(cfg.Resamples),
		Lower:      values[lo],
		Upper:      values[hi],
		Confidence: cfg.Confidence,
		Resamples:  cfg.Resamples,
	}, nil
}

// BootstrapCohensH bootstraps the signed Cohen's h between the success
// rates of two indicator samples.
func BootstrapCohensH(a, b []bool, cfg BootstrapConfig) (Interval, error) {
	return Bootstrap([][]bool{a, b}, func(g [][]bool) float64 {
		return CohensH(rate(g[0]), rate(g[1])).H
	}, cfg)
}

// BootstrapConsistency bootstraps the share of the most common decision.
func BootstrapConsistency[T comparable](decisions []T, cfg BootstrapConfig) (Interval, error) {
	return Bootstrap([][]T{decisions}, func(g [][]T) float64 {
		return modeShare(g[0])
	}, cfg)
}

func rate(xs []bool) float64 {
	if len(xs) == 0 {
		return 0
	}
	n := 0
	for _, x := range xs {
		if x {
			n++
		}
	}
	return float64(n) / float64(len(xs))
}

func modeShare[T comparable](xs []T) float64 {
	if len(xs) == 0 {
		return 0
	}
	counts := make(map[T]int, 4)
	best := 0
	for _, x := range xs {
		counts[x]++
		best = max(best, counts[x])
	}
	return float64(best) / float64(len(xs))
}
