package profile

import "sort"

// Ranking is one model's place in a comparison.
type Ranking struct {
	Rank            int      `json:"rank"`
	ModelName       string   `json:"modelName"`
	OverallScore    float64  `json:"overallScore"`
	OverallStrength Strength `json:"overallStrength"`
	TestCount       int      `json:"testCount"`
}

// Rank orders profiles by overall score. Models without tests rank last;
// equal scores share a rank.
func Rank(profiles []Profile) []Ranking {
	out := make([]Ranking, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, Ranking{
			ModelName:       p.ModelName,
			OverallScore:    p.OverallScore,
			OverallStrength: p.OverallStrength,
			TestCount:       len(p.Tests),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.TestCount == 0) != (b.TestCount == 0) {
			return b.TestCount == 0
		}
		if a.OverallScore != b.OverallScore {
			return a.OverallScore > b.OverallScore
		}
		return a.ModelName < b.ModelName
	})
	for i := range out {
		out[i].Rank = i + 1
		if i > 0 && out[i].OverallScore == out[i-1].OverallScore && (out[i].TestCount == 0) == (out[i-1].TestCount == 0) {
			out[i].Rank = out[i-1].Rank
		}
	}
	return out
}
