package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/pkg/runstore"
)

func textRun(id, scenario string, avg float64) *core.RunRecord {
	return &core.RunRecord{
		RunID:        id,
		ModelName:    "m",
		ScenarioID:   scenario,
		ScenarioType: core.ScenarioCapability,
		Summary: core.RunSummary{
			Total:       1,
			TextSummary: &core.TextSummary{AverageScore: avg, PassRate: avg * 100},
		},
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Strong, Classify(0.8))
	assert.Equal(t, Strong, Classify(1))
	assert.Equal(t, Developing, Classify(0.6))
	assert.Equal(t, Developing, Classify(0.79))
	assert.Equal(t, Weak, Classify(0.59))
	assert.Equal(t, Weak, Classify(0))
}

func TestBuild(t *testing.T) {
	scenarios := []core.Scenario{
		{ID: "a", Title: "Alpha", Category: "math"},
		{ID: "b", Title: "Beta", Category: "math"},
		{ID: "c", Title: "Gamma", Category: "logic"},
	}
	runs := []*core.RunRecord{
		textRun("m-001", "a", 1.0),
		textRun("m-002", "b", 0.6),
		textRun("m-003", "c", 0.2),
		textRun("m-004", "d", 0.9),
		textRun("m-005", "e", 0.4),
		{RunID: "m-006", ScenarioID: "p", Summary: core.RunSummary{ChoiceSummary: &core.ChoiceSummary{}}},
	}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	p := Build("m", runs, scenarios, now)

	require.Len(t, p.Tests, 5)
	assert.InDelta(t, 0.62, p.OverallScore, 1e-9)
	assert.Equal(t, Developing, p.OverallStrength)
	assert.Equal(t, now, p.Timestamp)

	assert.Equal(t, []string{"a", "d", "b", "e", "c"}, ids(p.Tests))
	assert.Equal(t, "d", p.Tests[1].Title, "unknown scenarios fall back to their id")
	assert.Equal(t, DefaultCategory, p.Tests[1].Category)

	assert.Equal(t, []string{"a", "d", "b"}, ids(p.StrongestAreas))
	assert.Equal(t, []string{"c", "e"}, ids(p.WeakestAreas), "weakest never repeats a strongest area")

	require.Len(t, p.CategoryBreakdown, 3)
	assert.Equal(t, "math", p.CategoryBreakdown[0].Category)
	assert.InDelta(t, 0.8, p.CategoryBreakdown[0].AverageScore, 1e-9)
	assert.Equal(t, 2, p.CategoryBreakdown[0].TestCount)
	assert.Equal(t, DefaultCategory, p.CategoryBreakdown[1].Category)
	assert.InDelta(t, 0.65, p.CategoryBreakdown[1].AverageScore, 1e-9)
	assert.Equal(t, "logic", p.CategoryBreakdown[2].Category)
	assert.Equal(t, Weak, p.CategoryBreakdown[2].Strength)
}

func TestBuildEmpty(t *testing.T) {
	p := Build("m", nil, nil, time.Now())
	assert.Equal(t, Weak, p.OverallStrength)
	assert.Zero(t, p.OverallScore)
	assert.NotNil(t, p.Tests)
	assert.Empty(t, p.StrongestAreas)
}

func TestFilterCapabilities(t *testing.T) {
	scenarios := []core.Scenario{
		{ID: "a", Type: core.ScenarioCapability, Category: "Math"},
		{ID: "b", Type: core.ScenarioCapability, Category: "logic"},
		{ID: "p", Type: core.ScenarioParadox, Category: "math"},
	}
	assert.Equal(t, []string{"a", "b"}, scenarioIDs(FilterCapabilities(scenarios, nil)))
	assert.Equal(t, []string{"a"}, scenarioIDs(FilterCapabilities(scenarios, []string{" math ", ""})))
}

func TestRank(t *testing.T) {
	profiles := []Profile{
		{ModelName: "low", OverallScore: 0.3, Tests: make([]TestSummary, 2)},
		{ModelName: "none", Tests: []TestSummary{}},
		{ModelName: "high", OverallScore: 0.9, Tests: make([]TestSummary, 3)},
		{ModelName: "tie", OverallScore: 0.3, Tests: make([]TestSummary, 1)},
	}
	ranks := Rank(profiles)

	require.Len(t, ranks, 4)
	assert.Equal(t, "high", ranks[0].ModelName)
	assert.Equal(t, 1, ranks[0].Rank)
	assert.Equal(t, "low", ranks[1].ModelName)
	assert.Equal(t, 2, ranks[1].Rank)
	assert.Equal(t, "tie", ranks[2].ModelName)
	assert.Equal(t, 2, ranks[2].Rank)
	assert.Equal(t, "none", ranks[3].ModelName)
	assert.Equal(t, 4, ranks[3].Rank)
}

func TestLatestRuns(t *testing.T) {
	store, err := runstore.New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	put := func(model, scenario string, avg float64, at time.Time) {
		rec := textRun("", scenario, avg)
		rec.ModelName = model
		rec.Timestamp = at
		_, err := store.Create(ctx, rec)
		require.NoError(t, err)
	}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	put("m", "a", 0.2, base)
	put("m", "a", 0.9, base.Add(time.Hour))
	put("m", "b", 0.5, base)
	put("other", "a", 1.0, base)

	runs, err := LatestRuns(ctx, store, "m")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].ScenarioID)
	assert.Equal(t, 0.9, runs[0].Summary.AverageScore)
	assert.Equal(t, "b", runs[1].ScenarioID)
}

func ids(tests []TestSummary) []string {
	out := make([]string, len(tests))
	for i, t := range tests {
		out[i] = t.ScenarioID
	}
	return out
}

func scenarioIDs(scenarios []core.Scenario) []string {
	out := make([]string, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ID
	}
	return out
}
