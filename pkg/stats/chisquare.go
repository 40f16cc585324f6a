package stats

import (
	"math"

	"github.com/snow-ghost/llmbench/core"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// MinExpectedFrequency is the smallest expected cell count for which
	// the chi-square approximation is trusted.
	MinExpectedFrequency = 5.0

	DefaultAlpha = 0.05
)

// Reasons a chi-square test was not run.
const (
	ReasonSampleTooSmall   = "sample too small: an expected cell frequency is below 5"
	ReasonTooFewCategories = "fewer than two categories observed"
)

// ChiSquareResult is a homogeneity test between two count distributions.
// When Valid is false the test was not run: ChiSquare is zero, PValue is
// nil and Reason explains why.
type ChiSquareResult struct {
	Valid            bool     `json:"valid"`
	Reason           string   `json:"reason,omitempty"`
	ChiSquare        float64  `json:"chiSquare"`
	PValue           *float64 `json:"pValue"`
	DegreesOfFreedom int      `json:"degreesOfFreedom"`
	Significant      bool     `json:"significant"`
	Alpha            float64  `json:"alpha"`
	MinExpected      float64  `json:"minExpected"`
}

// ChiSquare tests whether obs1 and obs2 are drawn from the same
// categorical distribution. Categories empty in both groups are dropped.
// A zero alpha uses DefaultAlpha.
func ChiSquare(obs1, obs2 []int, alpha float64) (ChiSquareResult, error) {
	if alpha == 0 {
		alpha = DefaultAlpha
	}
	if alpha <= 0 || alpha >= 1 {
		return ChiSquareResult{}, core.Newf(core.EInvalidInput, "alpha %v outside (0,1)", alpha)
	}
	if len(obs1) != len(obs2) {
		return ChiSquareResult{}, core.Newf(core.EInvalidInput, "category counts differ: %d vs %d", len(obs1), len(obs2))
	}

	var a, b []float64
	n1, n2 := 0.0, 0.0
	for i := range obs1 {
		if obs1[i] < 0 || obs2[i] < 0 {
			return ChiSquareResult{}, core.New(core.EInvalidInput, "observed counts must be non-negative")
		}
		if obs1[i] == 0 && obs2[i] == 0 {
			continue
		}
		a = append(a, float64(obs1[i]))
		b = append(b, float64(obs2[i]))
		n1 += float64(obs1[i])
		n2 += float64(obs2[i])
	}
	if n1 == 0 || n2 == 0 {
		return ChiSquareResult{}, core.New(core.EInvalidInput, "both groups need at least one observation")
	}

	res := ChiSquareResult{Alpha: alpha, DegreesOfFreedom: len(a) - 1}
	if len(a) < 2 {
		res.Reason = ReasonTooFewCategories
		return res, nil
	}

	total := n1 + n2
	exp1 := make([]float64, len(a))
	exp2 := make([]float64, len(a))
	res.MinExpected = math.Inf(1)
	for i := range a {
		col := a[i] + b[i]
		exp1[i] = col * n1 / total
		exp2[i] = col * n2 / total
		res.MinExpected = math.Min(res.MinExpected, math.Min(exp1[i], exp2[i]))
	}
	if res.MinExpected < MinExpectedFrequency {
		res.Reason = ReasonSampleTooSmall
		return res, nil
	}

	stat := 0.0
	for i := range a {
		stat += (a[i] - exp1[i]) * (a[i] - exp1[i]) / exp1[i]
		stat += (b[i] - exp2[i]) * (b[i] - exp2[i]) / exp2[i]
	}
	p := distuv.ChiSquared{K: float64(res.DegreesOfFreedom)}.Survival(stat)

	res.Valid = true
	res.ChiSquare = stat
	res.PValue = &p
	res.Significant = p < alpha
	return res, nil
}
