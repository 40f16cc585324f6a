// Package profile aggregates capability runs into per-model strength
// profiles and ranks models against each other.
package profile

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/snow-ghost/llmbench/core"
)

// Strength is a qualitative label for a normalised score.
type Strength string

const (
	Strong     Strength = "Strong"
	Developing Strength = "Developing"
	Weak       Strength = "Weak"

	// DefaultCategory applies to scenarios without a category.
	DefaultCategory = "General"

	areaCount = 3
)

// Classify maps a score in [0,1] to a strength label.
func Classify(score float64) Strength {
	switch {
	case score >= 0.8:
		return Strong
	case score >= 0.6:
		return Developing
	default:
		return Weak
	}
}

// TestSummary is the compact result of one capability run.
type TestSummary struct {
	RunID        string   `json:"runId"`
	ScenarioID   string   `json:"scenarioId"`
	Title        string   `json:"title"`
	Category     string   `json:"category"`
	AverageScore float64  `json:"averageScore"`
	PassRate     float64  `json:"passRate"`
	Strength     Strength `json:"strength"`
}

// CategoryScore averages the tests of one category.
type CategoryScore struct {
	Category     string   `json:"category"`
	AverageScore float64  `json:"averageScore"`
	Strength     Strength `json:"strength"`
	TestCount    int      `json:"testCount"`
}

// Profile is a model's strength across capability tests.
type Profile struct {
	ModelName         string          `json:"modelName"`
	Timestamp         time.Time       `json:"timestamp"`
	OverallScore      float64         `json:"overallScore"`
	OverallStrength   Strength        `json:"overallStrength"`
	Tests             []TestSummary   `json:"tests"`
	CategoryBreakdown []CategoryScore `json:"categoryBreakdown"`
	StrongestAreas    []TestSummary   `json:"strongestAreas"`
	WeakestAreas      []TestSummary   `json:"weakestAreas"`
}

// Build aggregates runs of model. Runs without a text summary are
// ignored; scenarios supply titles and categories.
func Build(model string, runs []*core.RunRecord, scenarios []core.Scenario, now time.Time) Profile {
	byID := make(map[string]core.Scenario, len(scenarios))
	for _, s := range scenarios {
		byID[s.ID] = s
	}

	p := Profile{
		ModelName:         model,
		Timestamp:         now.UTC(),
		OverallStrength:   Weak,
		Tests:             []TestSummary{},
		CategoryBreakdown: []CategoryScore{},
		StrongestAreas:    []TestSummary{},
		WeakestAreas:      []TestSummary{},
	}

	for _, run := range runs {
		if run == nil || run.Summary.TextSummary == nil {
			continue
		}
		p.Tests = append(p.Tests, summarizeRun(run, byID[run.ScenarioID]))
	}
	if len(p.Tests) == 0 {
		return p
	}

	sort.SliceStable(p.Tests, func(i, j int) bool {
		if p.Tests[i].AverageScore != p.Tests[j].AverageScore {
			return p.Tests[i].AverageScore > p.Tests[j].AverageScore
		}
		return p.Tests[i].ScenarioID < p.Tests[j].ScenarioID
	})

	total := 0.0
	categories := make(map[string][]float64)
	var order []string
	for _, t := range p.Tests {
		total += t.AverageScore
		if _, seen := categories[t.Category]; !seen {
			order = append(order, t.Category)
		}
		categories[t.Category] = append(categories[t.Category], t.AverageScore)
	}
	p.OverallScore = total / float64(len(p.Tests))
	p.OverallStrength = Classify(p.OverallScore)

	for _, name := range order {
		scores := categories[name]
		avg := mean(scores)
		p.CategoryBreakdown = append(p.CategoryBreakdown, CategoryScore{
			Category:     name,
			AverageScore: avg,
			Strength:     Classify(avg),
			TestCount:    len(scores),
		})
	}
	sort.SliceStable(p.CategoryBreakdown, func(i, j int) bool {
		return p.CategoryBreakdown[i].AverageScore > p.CategoryBreakdown[j].AverageScore
	})

	strongest := p.Tests[:min(areaCount, len(p.Tests))]
	p.StrongestAreas = append(p.StrongestAreas, strongest...)
	taken := make(map[string]bool, len(strongest))
	for _, t := range strongest {
		taken[t.ScenarioID] = true
	}
	for i := len(p.Tests) - 1; i >= 0 && len(p.WeakestAreas) < areaCount; i-- {
		if !taken[p.Tests[i].ScenarioID] {
			p.WeakestAreas = append(p.WeakestAreas, p.Tests[i])
		}
	}
	return p
}

func summarizeRun(run *core.RunRecord, scenario core.Scenario) TestSummary {
	title := scenario.Title
	if title == "" {
		title = run.ScenarioID
	}
	category := scenario.Category
	if category == "" {
		category = run.Category
	}
	if category == "" {
		category = DefaultCategory
	}
	return TestSummary{
		RunID:        run.RunID,
		ScenarioID:   run.ScenarioID,
		Title:        title,
		Category:     category,
		AverageScore: run.Summary.AverageScore,
		PassRate:     run.Summary.PassRate,
		Strength:     Classify(run.Summary.AverageScore),
	}
}

// FilterCapabilities keeps capability scenarios, restricted to categories
// (case-insensitive) when any are given.
func FilterCapabilities(scenarios []core.Scenario, categories []string) []core.Scenario {
	wanted := make(map[string]bool)
	for _, c := range categories {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			wanted[c] = true
		}
	}

	var out []core.Scenario
	for _, s := range scenarios {
		if s.Type != core.ScenarioCapability {
			continue
		}
		if len(wanted) == 0 || wanted[strings.ToLower(strings.TrimSpace(s.Category))] {
			out = append(out, s)
		}
	}
	return out
}

// LatestRuns loads the newest capability run of model for every scenario.
func LatestRuns(ctx context.Context, store core.RunStore, model string) ([]*core.RunRecord, error) {
	metas, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var runs []*core.RunRecord
	for _, m := range metas {
		if m.ModelName != model || seen[m.ScenarioID] {
			continue
		}
		if m.ScenarioType != "" && m.ScenarioType != core.ScenarioCapability {
			continue
		}
		rec, err := store.Get(ctx, m.RunID)
		if err != nil {
			return nil, err
		}
		if rec.Summary.TextSummary == nil {
			continue
		}
		seen[m.ScenarioID] = true
		runs = append(runs, rec)
	}
	return runs, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
