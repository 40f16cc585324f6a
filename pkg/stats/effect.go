package stats

import "math"

// EffectSize is Cohen's h between two proportions. H is signed (p1 - p2
// on the arcsine scale); Interpretation uses its magnitude.
type EffectSize struct {
	H              float64 `json:"h"`
	Magnitude      float64 `json:"magnitude"`
	Interpretation string  `json:"interpretation"`
}

// CohensH computes the effect size between p1 and p2. Inputs are clamped
// to [0,1].
func CohensH(p1, p2 float64) EffectSize {
	h := arcsine(p1) - arcsine(p2)
	return EffectSize{H: h, Magnitude: math.Abs(h), Interpretation: InterpretH(h)}
}

func arcsine(p float64) float64 {
	return 2 * math.Asin(math.Sqrt(math.Max(0, math.Min(1, p))))
}

// InterpretH labels |h| with Cohen's conventional thresholds.
func InterpretH(h float64) string {
	switch h = math.Abs(h); {
	case h >= 0.8:
		return "large"
	case h >= 0.5:
		return "medium"
	case h >= 0.2:
		return "small"
	default:
		return "negligible"
	}
}
