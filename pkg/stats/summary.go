package stats

import (
	"math"

	"github.com/snow-ghost/llmbench/core"
)

// Summarize derives the run summary for the rules' variant. options is the
// resolved option list of a choice run and is ignored for text runs.
func Summarize(responses []core.IterationResult, rules core.ScoringRules, options []core.Option) core.RunSummary {
	switch rules.Kind() {
	case core.ScenarioCapability:
		return SummarizeText(responses, rules.Text.PassThreshold)
	case core.ScenarioParadox:
		if len(options) == 0 {
			options = rules.Choice.Options
		}
		return SummarizeChoice(responses, options)
	default:
		return core.RunSummary{Total: countScored(responses), ErrorCount: countFailed(responses)}
	}
}

// SummarizeText aggregates deterministic-text iterations. Failed
// iterations are excluded from every statistic.
func SummarizeText(responses []core.IterationResult, threshold float64) core.RunSummary {
	sum := core.RunSummary{TextSummary: &core.TextSummary{PassThreshold: threshold}}
	total := 0.0
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range responses {
		if !r.Succeeded() || r.TextOutcome == nil {
			if !r.Succeeded() {
				sum.ErrorCount++
			}
			continue
		}
		sum.Total++
		total += r.Score
		lo = math.Min(lo, r.Score)
		hi = math.Max(hi, r.Score)
		if r.Passed {
			sum.PassCount++
		}
	}
	if sum.Total == 0 {
		return sum
	}
	n := float64(sum.Total)
	sum.AverageScore = total / n
	sum.MinScore = lo
	sum.MaxScore = hi
	sum.PassRate = float64(sum.PassCount) / n * 100
	return sum
}

// SummarizeChoice tallies option selections and undecided iterations.
func SummarizeChoice(responses []core.IterationResult, options []core.Option) core.RunSummary {
	cs := &core.ChoiceSummary{Options: make([]core.OptionTally, len(options))}
	index := make(map[int]int, len(options))
	for i, opt := range options {
		cs.Options[i] = core.OptionTally{ID: opt.ID, Label: opt.Label}
		index[opt.ID] = i
	}

	sum := core.RunSummary{ChoiceSummary: cs}
	for _, r := range responses {
		if !r.Succeeded() || r.ChoiceOutcome == nil {
			if !r.Succeeded() {
				sum.ErrorCount++
			}
			continue
		}
		sum.Total++
		if r.Ambiguous {
			cs.AmbiguousCount++
		}
		i, ok := -1, false
		if r.OptionID != nil {
			i, ok = index[*r.OptionID]
		}
		if !ok {
			cs.Undecided.Count++
			continue
		}
		cs.Options[i].Count++
	}

	for i := range cs.Options {
		cs.Options[i].Percentage = percent(cs.Options[i].Count, sum.Total)
	}
	cs.Undecided.Percentage = percent(cs.Undecided.Count, sum.Total)
	return sum
}

// ChoiceCounts returns per-option counts followed by the undecided count,
// the category vector used for chi-square comparisons.
func ChoiceCounts(s core.RunSummary) []int {
	if s.ChoiceSummary == nil {
		return nil
	}
	out := make([]int, 0, len(s.Options)+1)
	for _, o := range s.Options {
		out = append(out, o.Count)
	}
	return append(out, s.Undecided.Count)
}

// Decisions returns the chosen option id of each scored iteration, 0 for
// undecided.
func Decisions(responses []core.IterationResult) []int {
	var out []int
	for _, r := range responses {
		if !r.Succeeded() || r.ChoiceOutcome == nil {
			continue
		}
		if r.OptionID == nil {
			out = append(out, 0)
			continue
		}
		out = append(out, *r.OptionID)
	}
	return out
}

// Passes returns the pass indicator of each scored text iteration.
func Passes(responses []core.IterationResult) []bool {
	var out []bool
	for _, r := range responses {
		if r.Succeeded() && r.TextOutcome != nil {
			out = append(out, r.Passed)
		}
	}
	return out
}

func percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}

func countScored(responses []core.IterationResult) int {
	n := 0
	for _, r := range responses {
		if r.Succeeded() {
			n++
		}
	}
	return n
}

func countFailed(responses []core.IterationResult) int {
	return len(responses) - countScored(responses)
}
