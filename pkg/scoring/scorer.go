// Package scoring grades model responses deterministically. Every function
// here is pure: identical inputs always produce identical outcomes.
package scoring

import (
	"time"

	"github.com/snow-ghost/llmbench/core"
)

// Scorer grades responses for one run's rules.
type Scorer struct {
	text   *TextMatcher
	choice *ChoiceParser
}

// NewScorer compiles rules. The rules must already be valid.
func NewScorer(rules core.ScoringRules) *Scorer {
	s := &Scorer{}
	switch {
	case rules.Text != nil:
		s.text = CompileText(*rules.Text)
	case rules.Choice != nil:
		s.choice = NewChoiceParser(rules.Choice.N())
	}
	return s
}

// WithOptionCount returns a scorer for a choice run whose resolved option
// list differs in size from the scenario's.
func (s *Scorer) WithOptionCount(n int) *Scorer {
	if s.choice == nil {
		return s
	}
	return &Scorer{choice: NewChoiceParser(n)}
}

// Score grades raw as iteration i. Exactly one outcome shape is set.
func (s *Scorer) Score(iteration int, raw string, at time.Time) core.IterationResult {
	res := core.IterationResult{Iteration: iteration, Raw: raw, Timestamp: at}
	switch {
	case s.text != nil:
		out := s.text.Score(raw)
		res.TextOutcome = &out
	case s.choice != nil:
		out := s.choice.Parse(raw)
		res.ChoiceOutcome = &out
	}
	return res
}

// Fail builds the typed failure entry for iteration i.
func Fail(iteration int, err error, at time.Time) core.IterationResult {
	code := core.GetCode(err)
	if code == "" {
		code = core.EProviderUnknown
	}
	return core.IterationResult{
		Iteration: iteration,
		Timestamp: at,
		Failure: &core.IterationFailure{
			Code:    code,
			Message: core.PublicMessage(err),
		},
	}
}
