// Package stats computes point and interval estimates over graded
// iterations. All functions are pure; randomised procedures take an
// explicit seed for reproducibility.
package stats

import (
	"math"

	"github.com/snow-ghost/llmbench/core"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultConfidence is used when a caller passes a zero confidence.
const DefaultConfidence = 0.95

// Proportion is a binomial proportion with its Wilson score interval.
// MarginOfError is the full interval width.
type Proportion struct {
	Proportion    float64 `json:"proportion"`
	Lower         float64 `json:"lower"`
	Upper         float64 `json:"upper"`
	MarginOfError float64 `json:"marginOfError"`
}

// Common two-sided critical values, kept exact so reported intervals match
// published tables.
var zTable = map[float64]float64{
	0.90:  1.645,
	0.95:  1.96,
	0.99:  2.576,
	0.999: 3.291,
}

// ZScore returns the two-sided standard normal critical value for the
// confidence level.
func ZScore(confidence float64) (float64, error) {
	if confidence == 0 {
		confidence = DefaultConfidence
	}
	if confidence <= 0 || confidence >= 1 || math.IsNaN(confidence) {
		return 0, core.Newf(core.EInvalidInput, "confidence %v outside (0,1)", confidence)
	}
	if z, ok := zTable[confidence]; ok {
		return z, nil
	}
	return distuv.UnitNormal.Quantile(1 - (1-confidence)/2), nil
}

// Wilson returns the Wilson score interval for successes out of total.
// total must be positive.
func Wilson(successes, total int, confidence float64) (Proportion, error) {
	if total <= 0 {
		return Proportion{}, core.Newf(core.EInvalidInput, "wilson interval needs total > 0, got %d", total)
	}
	if successes < 0 || successes > total {
		return Proportion{}, core.Newf(core.EInvalidInput, "successes %d outside [0,%d]", successes, total)
	}
	z, err := ZScore(confidence)
	if err != nil {
		return Proportion{}, err
	}

	n := float64(total)
	p := float64(successes) / n
	z2 := z * z

	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	margin := z * math.Sqrt(p*(1-p)/n+z2/(4*n*n)) / denom

	lower := math.Max(0, center-margin)
	upper := math.Min(1, center+margin)
	if successes == 0 {
		lower = 0
	}
	if successes == total {
		upper = 1
	}

	return Proportion{
		Proportion:    p,
		Lower:         lower,
		Upper:         upper,
		MarginOfError: 2 * margin,
	}, nil
}
