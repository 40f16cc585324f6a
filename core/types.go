package core

import (
	"encoding/json"
	"time"
)

// ScenarioType fixes which scoring variant a scenario uses.
type ScenarioType string

const (
	ScenarioCapability ScenarioType = "capability" // deterministic-text scoring
	ScenarioParadox    ScenarioType = "paradox"    // discrete-choice scoring
)

// Params are the provider-agnostic generation parameters of a run.
type Params struct {
	Temperature      float64 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	TopP             float64 `json:"top_p" yaml:"top_p" validate:"gte=0,lte=1"`
	MaxTokens        int     `json:"max_tokens" yaml:"max_tokens" validate:"gte=1,lte=4000"`
	FrequencyPenalty float64 `json:"frequency_penalty" yaml:"frequency_penalty" validate:"gte=0,lte=2"`
	PresencePenalty  float64 `json:"presence_penalty" yaml:"presence_penalty" validate:"gte=0,lte=2"`
	Seed             *int64  `json:"seed,omitempty" yaml:"seed,omitempty" validate:"omitempty,gte=0"`
}

// DefaultParams returns the parameters applied when a run specifies none.
func DefaultParams() Params {
	return Params{
		Temperature: 1.0,
		TopP:        1.0,
		MaxTokens:   1000,
	}
}

// Normalize fills an unset token budget with the default. Other fields are
// left for validation to judge.
func (p Params) Normalize() Params {
	if p.MaxTokens == 0 {
		p.MaxTokens = DefaultParams().MaxTokens
	}
	return p
}

// Option is one selectable answer of a discrete-choice scenario.
type Option struct {
	ID          int    `json:"id" yaml:"id"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
}

// OptionOverride replaces the description of one option for a single run.
type OptionOverride struct {
	ID          int    `json:"id" yaml:"id" validate:"gte=1,lte=4"`
	Description string `json:"description" yaml:"description" validate:"max=1000"`
}

// Scenario is a resolved capability or paradox definition, already
// validated by the catalog that produced it.
type Scenario struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Type           ScenarioType `json:"type"`
	Category       string       `json:"category,omitempty"`
	PromptTemplate string       `json:"promptTemplate"`
	Rules          ScoringRules `json:"rules"`
}

// RunState is the lifecycle state of one run.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunTimedOut  RunState = "timed_out"
)

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunTimedOut
}

// TextOutcome is the graded result of a deterministic-text iteration.
type TextOutcome struct {
	Score            float64  `json:"score"`
	Passed           bool     `json:"passed"`
	MatchedRequired  []string `json:"matchedRequired"`
	MissingRequired  []string `json:"missingRequired"`
	MatchedForbidden []string `json:"matchedForbidden"`
}

// ChoiceOutcome is the extracted decision of a discrete-choice iteration.
// OptionID is nil when the response is undecided.
type ChoiceOutcome struct {
	DecisionToken *string `json:"decisionToken"`
	OptionID      *int    `json:"optionId"`
	Explanation   string  `json:"explanation"`
	Ambiguous     bool    `json:"ambiguous"`
}

// Undecided reports whether no valid option token was found.
func (c *ChoiceOutcome) Undecided() bool {
	return c.OptionID == nil
}

// IterationFailure records why an iteration produced no gradable text.
type IterationFailure struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// IterationResult is one entry of a run's responses. Exactly one of
// TextOutcome, ChoiceOutcome or Failure is set.
type IterationResult struct {
	Iteration int       `json:"iteration"`
	Raw       string    `json:"raw"`
	Timestamp time.Time `json:"timestamp"`

	*TextOutcome
	*ChoiceOutcome

	Failure *IterationFailure `json:"error,omitempty"`
}

// Succeeded reports whether the iteration was scored.
func (r IterationResult) Succeeded() bool {
	return r.Failure == nil
}

// Tally is a count with its share of the scored iterations, in percent.
type Tally struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// OptionTally is the selection count of one option.
type OptionTally struct {
	ID    int    `json:"id"`
	Label string `json:"label,omitempty"`
	Tally
}

// TextSummary aggregates deterministic-text iterations. PassRate is a
// percentage.
type TextSummary struct {
	AverageScore  float64 `json:"averageScore"`
	MinScore      float64 `json:"minScore"`
	MaxScore      float64 `json:"maxScore"`
	PassCount     int     `json:"passCount"`
	PassRate      float64 `json:"passRate"`
	PassThreshold float64 `json:"passThreshold"`
}

// ChoiceSummary aggregates discrete-choice iterations.
type ChoiceSummary struct {
	Options        []OptionTally `json:"options"`
	Undecided      Tally         `json:"undecided"`
	AmbiguousCount int           `json:"ambiguousCount"`
}

// RunSummary is derived from a run's responses and never edited by hand.
// Total counts scored iterations; failed iterations only count towards
// ErrorCount.
type RunSummary struct {
	Total      int `json:"total"`
	ErrorCount int `json:"errorCount"`

	*TextSummary
	*ChoiceSummary
}

// RunRecord is the persisted document of one completed run.
type RunRecord struct {
	RunID          string            `json:"runId"`
	Timestamp      time.Time         `json:"timestamp"`
	ModelName      string            `json:"modelName"`
	ScenarioID     string            `json:"scenarioId"`
	ScenarioType   ScenarioType      `json:"scenarioType"`
	Category       string            `json:"category,omitempty"`
	Prompt         string            `json:"prompt"`
	SystemPrompt   string            `json:"systemPrompt,omitempty"`
	IterationCount int               `json:"iterationCount"`
	Params         Params            `json:"params"`
	Options        []Option          `json:"options,omitempty"`
	Summary        RunSummary        `json:"summary"`
	Responses      []IterationResult `json:"responses"`
	Insights       []json.RawMessage `json:"insights,omitempty"`
}

// Meta returns the listing entry for the record.
func (r *RunRecord) Meta() RunMeta {
	return RunMeta{
		RunID:          r.RunID,
		Timestamp:      r.Timestamp,
		ModelName:      r.ModelName,
		ScenarioID:     r.ScenarioID,
		ScenarioType:   r.ScenarioType,
		IterationCount: r.IterationCount,
	}
}

// RunMeta is the lightweight listing view of a stored run.
type RunMeta struct {
	RunID          string       `json:"runId"`
	Timestamp      time.Time    `json:"timestamp"`
	ModelName      string       `json:"modelName"`
	ScenarioID     string       `json:"scenarioId"`
	ScenarioType   ScenarioType `json:"scenarioType,omitempty"`
	IterationCount int          `json:"iterationCount"`
}
