package core

import (
	"fmt"
	"regexp"
)

const (
	MinOptions = 2
	MaxOptions = 4

	// DefaultPassThreshold applies when a capability does not set one.
	DefaultPassThreshold = 0.8
)

// TextRules grade a response by required and forbidden regex patterns.
// Patterns match case-sensitively unless IgnoreCase is set.
type TextRules struct {
	Required      []string `json:"required" yaml:"required"`
	Forbidden     []string `json:"forbidden,omitempty" yaml:"forbidden,omitempty"`
	PassThreshold float64  `json:"pass_threshold" yaml:"pass_threshold"`
	IgnoreCase    bool     `json:"ignore_case,omitempty" yaml:"ignore_case,omitempty"`
}

// ChoiceRules extract one of len(Options) decision tokens from a response.
type ChoiceRules struct {
	Options []Option `json:"options" yaml:"options"`
}

// N returns the option count.
func (c *ChoiceRules) N() int {
	return len(c.Options)
}

// ScoringRules holds exactly one scoring variant.
type ScoringRules struct {
	Text   *TextRules   `json:"text,omitempty" yaml:"text,omitempty"`
	Choice *ChoiceRules `json:"choice,omitempty" yaml:"choice,omitempty"`
}

// Kind returns the scenario type implied by the populated variant, or ""
// when the rules are malformed.
func (r ScoringRules) Kind() ScenarioType {
	switch {
	case r.Text != nil && r.Choice == nil:
		return ScenarioCapability
	case r.Choice != nil && r.Text == nil:
		return ScenarioParadox
	default:
		return ""
	}
}

// Validate checks the rules are well-formed.
func (r ScoringRules) Validate() error {
	switch r.Kind() {
	case ScenarioCapability:
		return r.Text.validate()
	case ScenarioParadox:
		return r.Choice.validate()
	default:
		return New(EValidation, "scoring rules must define exactly one of text or choice")
	}
}

func (t *TextRules) validate() error {
	if t.PassThreshold < 0 || t.PassThreshold > 1 {
		return Newf(EValidation, "pass threshold %v outside [0,1]", t.PassThreshold)
	}
	for _, group := range [][]string{t.Required, t.Forbidden} {
		for _, p := range group {
			if _, err := regexp.Compile(p); err != nil {
				return Wrap(EValidation, fmt.Sprintf("invalid pattern %q", p), err)
			}
		}
	}
	return nil
}

func (c *ChoiceRules) validate() error {
	n := c.N()
	if n < MinOptions || n > MaxOptions {
		return Newf(EValidation, "choice scenarios need %d to %d options, got %d", MinOptions, MaxOptions, n)
	}
	for i, opt := range c.Options {
		if opt.ID != i+1 {
			return Newf(EValidation, "option ids must be sequential from 1, got %d at position %d", opt.ID, i+1)
		}
	}
	return nil
}

// ApplyOverrides returns the option list for a run. When overrides are
// given they define the option set; labels are kept from the base options
// where the id exists.
func ApplyOverrides(base []Option, overrides []OptionOverride) ([]Option, error) {
	if len(overrides) == 0 {
		out := make([]Option, len(base))
		copy(out, base)
		return out, nil
	}
	if len(overrides) < MinOptions || len(overrides) > MaxOptions {
		return nil, Newf(EValidation, "option overrides need %d to %d entries, got %d", MinOptions, MaxOptions, len(overrides))
	}

	seen := make(map[int]OptionOverride, len(overrides))
	for _, o := range overrides {
		if o.ID < 1 || o.ID > len(overrides) {
			return nil, Newf(EValidation, "option override ids must be sequential from 1, got %d", o.ID)
		}
		if _, dup := seen[o.ID]; dup {
			return nil, Newf(EValidation, "duplicate option override id %d", o.ID)
		}
		seen[o.ID] = o
	}

	out := make([]Option, len(overrides))
	for id := 1; id <= len(overrides); id++ {
		opt := Option{ID: id, Label: fmt.Sprintf("Option %d", id)}
		if id <= len(base) {
			opt.Label = base[id-1].Label
		}
		opt.Description = seen[id].Description
		out[id-1] = opt
	}
	return out, nil
}
