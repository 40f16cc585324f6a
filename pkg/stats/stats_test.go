package stats

import (
	"math"
	"testing"
	"time"

	"github.com/snow-ghost/llmbench/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWilsonBounds(t *testing.T) {
	zero, err := Wilson(0, 10, 0.95)
	require.NoError(t, err)
	assert.Equal(t, 0.0, zero.Lower)
	assert.Equal(t, 0.0, zero.Proportion)
	assert.Greater(t, zero.Upper, 0.0)

	all, err := Wilson(10, 10, 0.95)
	require.NoError(t, err)
	assert.Equal(t, 1.0, all.Upper)
	assert.Less(t, all.Lower, 1.0)

	half, err := Wilson(5, 10, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, half.Proportion, 1e-12)
	assert.InDelta(t, 0.2366, half.Lower, 1e-4)
	assert.InDelta(t, 0.7634, half.Upper, 1e-4)
	assert.InDelta(t, half.Upper-half.Lower, half.MarginOfError, 1e-9)
}

func TestWilsonInvalidInput(t *testing.T) {
	_, err := Wilson(0, 0, 0.95)
	assert.True(t, core.IsCode(err, core.EInvalidInput))

	_, err = Wilson(11, 10, 0.95)
	assert.True(t, core.IsCode(err, core.EInvalidInput))

	_, err = Wilson(1, 10, 1.5)
	assert.True(t, core.IsCode(err, core.EInvalidInput))
}

func TestZScore(t *testing.T) {
	z, err := ZScore(0.95)
	require.NoError(t, err)
	assert.Equal(t, 1.96, z)

	z, err = ZScore(0)
	require.NoError(t, err)
	assert.Equal(t, 1.96, z)

	z, err = ZScore(0.8)
	require.NoError(t, err)
	assert.InDelta(t, 1.2816, z, 1e-4)
}

func TestZScoreTabledLevels(t *testing.T) {
	for confidence, want := range map[float64]float64{0.90: 1.645, 0.95: 1.96, 0.99: 2.576, 0.999: 3.291} {
		z, err := ZScore(confidence)
		require.NoError(t, err)
		assert.Equal(t, want, z, "confidence %v", confidence)
	}

	z, err := ZScore(0.98)
	require.NoError(t, err)
	assert.InDelta(t, 2.3263, z, 1e-4, "untabled levels use the normal quantile")
}

func TestBootstrapSeededIsReproducible(t *testing.T) {
	a := []bool{true, true, false, true, false, true, true, false, true, true}
	b := []bool{false, false, true, false, false, true, false, false, true, false}

	first, err := BootstrapCohensH(a, b, Seeded(42))
	require.NoError(t, err)
	second, err := BootstrapCohensH(a, b, Seeded(42))
	require.NoError(t, err)

	assert.Equal(t, math.Float64bits(first.Lower), math.Float64bits(second.Lower))
	assert.Equal(t, math.Float64bits(first.Upper), math.Float64bits(second.Upper))
	assert.Equal(t, first, second)
	assert.Equal(t, DefaultResamples, first.Resamples)
	assert.LessOrEqual(t, first.Lower, first.Upper)
	assert.InDelta(t, CohensH(0.7, 0.3).H, first.Estimate, 1e-12)

	other, err := BootstrapCohensH(a, b, Seeded(43))
	require.NoError(t, err)
	assert.NotEqual(t, first.Mean, other.Mean)
}

func TestBootstrapRejectsEmptyGroups(t *testing.T) {
	_, err := BootstrapCohensH(nil, []bool{true}, BootstrapConfig{})
	assert.True(t, core.IsCode(err, core.EInvalidInput))

	_, err = Bootstrap([][]int{}, func([][]int) float64 { return 0 }, BootstrapConfig{})
	assert.True(t, core.IsCode(err, core.EInvalidInput))
}

func TestBootstrapConsistency(t *testing.T) {
	unanimous := []int{2, 2, 2, 2, 2}
	iv, err := BootstrapConsistency(unanimous, BootstrapConfig{Resamples: 200, Seed: ptr(uint64(1))})
	require.NoError(t, err)
	assert.Equal(t, 1.0, iv.Estimate)
	assert.Equal(t, 1.0, iv.Lower)
	assert.Equal(t, 1.0, iv.Upper)

	split := []int{1, 2, 1, 2, 0, 1}
	iv, err = BootstrapConsistency(split, BootstrapConfig{Resamples: 200, Seed: ptr(uint64(1))})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, iv.Estimate, 1e-12)
	assert.GreaterOrEqual(t, iv.Lower, 1.0/3.0)
	assert.LessOrEqual(t, iv.Upper, 1.0)
}

func TestCohensH(t *testing.T) {
	assert.Equal(t, 0.0, CohensH(0.5, 0.5).H)
	assert.Equal(t, "negligible", CohensH(0.5, 0.5).Interpretation)

	e := CohensH(0.9, 0.1)
	assert.InDelta(t, 1.8546, e.H, 1e-4)
	assert.Equal(t, "large", e.Interpretation)

	rev := CohensH(0.1, 0.9)
	assert.InDelta(t, -e.H, rev.H, 1e-12)
	assert.Equal(t, e.Magnitude, rev.Magnitude)

	assert.Equal(t, "small", InterpretH(0.3))
	assert.Equal(t, "medium", InterpretH(-0.6))
}

func TestChiSquareSmallSampleIsInvalid(t *testing.T) {
	res, err := ChiSquare([]int{2, 1}, []int{1, 3}, 0.05)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Nil(t, res.PValue)
	assert.Equal(t, ReasonSampleTooSmall, res.Reason)
	assert.Equal(t, 0.0, res.ChiSquare)
	assert.Less(t, res.MinExpected, MinExpectedFrequency)
}

func TestChiSquareValid(t *testing.T) {
	res, err := ChiSquare([]int{30, 10, 0}, []int{10, 30, 0}, 0)
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.NotNil(t, res.PValue)
	assert.Equal(t, 1, res.DegreesOfFreedom)
	assert.InDelta(t, 20.0, res.ChiSquare, 1e-9)
	assert.Less(t, *res.PValue, 0.001)
	assert.True(t, res.Significant)
	assert.Equal(t, DefaultAlpha, res.Alpha)

	same, err := ChiSquare([]int{20, 20}, []int{20, 20}, 0.05)
	require.NoError(t, err)
	require.True(t, same.Valid)
	assert.InDelta(t, 1.0, *same.PValue, 1e-9)
	assert.False(t, same.Significant)
}

func TestChiSquareInvalidInput(t *testing.T) {
	_, err := ChiSquare([]int{1, 2}, []int{1}, 0.05)
	assert.True(t, core.IsCode(err, core.EInvalidInput))

	_, err = ChiSquare([]int{0, 0}, []int{3, 4}, 0.05)
	assert.True(t, core.IsCode(err, core.EInvalidInput))

	res, err := ChiSquare([]int{10, 0}, []int{12, 0}, 0.05)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonTooFewCategories, res.Reason)
}

func textResult(i int, score float64, passed bool) core.IterationResult {
	return core.IterationResult{
		Iteration:   i,
		Raw:         "x",
		Timestamp:   time.Now(),
		TextOutcome: &core.TextOutcome{Score: score, Passed: passed},
	}
}

func choiceResult(i int, id *int, ambiguous bool) core.IterationResult {
	return core.IterationResult{
		Iteration:     i,
		Timestamp:     time.Now(),
		ChoiceOutcome: &core.ChoiceOutcome{OptionID: id, Ambiguous: ambiguous},
	}
}

func failed(i int) core.IterationResult {
	return core.IterationResult{Iteration: i, Failure: &core.IterationFailure{Code: core.ETransientNetwork}}
}

func ptr[T any](v T) *T { return &v }

func TestSummarizeText(t *testing.T) {
	responses := []core.IterationResult{
		textResult(1, 1, true),
		textResult(2, 0.5, false),
		failed(3),
		textResult(4, 1, true),
		textResult(5, 0, false),
	}
	s := SummarizeText(responses, 0.8)
	require.NotNil(t, s.TextSummary)
	assert.Nil(t, s.ChoiceSummary)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, 2, s.PassCount)
	assert.InDelta(t, 50.0, s.PassRate, 1e-12)
	assert.InDelta(t, 0.625, s.AverageScore, 1e-12)
	assert.Equal(t, 0.0, s.MinScore)
	assert.Equal(t, 1.0, s.MaxScore)
	assert.Equal(t, 0.8, s.PassThreshold)

	empty := SummarizeText([]core.IterationResult{failed(1)}, 0.8)
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, 0.0, empty.PassRate)
}

func TestSummarizeChoice(t *testing.T) {
	options := []core.Option{{ID: 1, Label: "A"}, {ID: 2, Label: "B"}, {ID: 3, Label: "C"}}
	responses := []core.IterationResult{
		choiceResult(1, ptr(1), false),
		choiceResult(2, ptr(1), true),
		choiceResult(3, nil, false),
		choiceResult(4, ptr(3), false),
		failed(5),
	}
	s := SummarizeChoice(responses, options)
	require.NotNil(t, s.ChoiceSummary)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, 2, s.Options[0].Count)
	assert.InDelta(t, 50.0, s.Options[0].Percentage, 1e-12)
	assert.Equal(t, 0, s.Options[1].Count)
	assert.Equal(t, 1, s.Options[2].Count)
	assert.Equal(t, 1, s.Undecided.Count)
	assert.InDelta(t, 25.0, s.Undecided.Percentage, 1e-12)
	assert.Equal(t, 1, s.AmbiguousCount)

	assert.Equal(t, []int{2, 0, 1, 1}, ChoiceCounts(s))
	assert.Equal(t, []int{1, 1, 0, 3}, Decisions(responses))
}

func TestCompareRuns(t *testing.T) {
	options := []core.Option{{ID: 1, Label: "A"}, {ID: 2, Label: "B"}}
	var ra, rb []core.IterationResult
	for i := 1; i <= 20; i++ {
		ra = append(ra, choiceResult(i, ptr(1+i%4/3), false))
		rb = append(rb, choiceResult(i, ptr(2-i%4/3), false))
	}
	a := &core.RunRecord{RunID: "a-001", ScenarioType: core.ScenarioParadox, Responses: ra, Summary: SummarizeChoice(ra, options)}
	b := &core.RunRecord{RunID: "b-001", ScenarioType: core.ScenarioParadox, Responses: rb, Summary: SummarizeChoice(rb, options)}

	cmp, err := CompareRuns(a, b, CompareConfig{Bootstrap: Seeded(7)})
	require.NoError(t, err)
	require.Len(t, cmp.Options, 2)
	assert.Equal(t, 15, a.Summary.Options[0].Count)
	assert.True(t, cmp.ChiSquare.Valid)
	assert.True(t, cmp.ChiSquare.Significant)
	assert.Equal(t, "large", cmp.Options[0].Effect.Interpretation)
	require.NotNil(t, cmp.Options[0].HCI)
	assert.Greater(t, cmp.Options[0].HCI.Lower, 0.0)

	text := &core.RunRecord{ScenarioType: core.ScenarioCapability}
	_, err = CompareRuns(a, text, CompareConfig{})
	assert.True(t, core.IsCode(err, core.EInvalidInput))
}

func TestCompareTextRuns(t *testing.T) {
	var ra, rb []core.IterationResult
	for i := 1; i <= 10; i++ {
		ra = append(ra, textResult(i, 1, true))
		rb = append(rb, textResult(i, 0, i <= 5))
	}
	a := &core.RunRecord{RunID: "a-001", ScenarioType: core.ScenarioCapability, Responses: ra, Summary: SummarizeText(ra, 0.8)}
	b := &core.RunRecord{RunID: "b-001", ScenarioType: core.ScenarioCapability, Responses: rb, Summary: SummarizeText(rb, 0.8)}

	cmp, err := CompareRuns(a, b, CompareConfig{Bootstrap: Seeded(3)})
	require.NoError(t, err)
	require.NotNil(t, cmp.PassRateA)
	assert.Equal(t, 1.0, cmp.PassRateA.Proportion)
	assert.Equal(t, 0.5, cmp.PassRateB.Proportion)
	assert.False(t, cmp.ChiSquare.Valid)
	require.NotNil(t, cmp.PassEffect)
	assert.InDelta(t, math.Pi/2, cmp.PassEffect.H, 1e-9)
}
