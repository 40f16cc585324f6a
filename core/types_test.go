package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterationResultJSONShape(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	text := IterationResult{
		Iteration: 1,
		Raw:       "42",
		Timestamp: ts,
		TextOutcome: &TextOutcome{
			Score:            1,
			Passed:           true,
			MatchedRequired:  []string{`^\d+$`},
			MissingRequired:  []string{},
			MatchedForbidden: []string{},
		},
	}
	b, err := json.Marshal(text)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.Equal(t, 1.0, fields["score"])
	assert.Equal(t, true, fields["passed"])
	assert.Contains(t, fields, "matchedRequired")
	assert.NotContains(t, fields, "optionId")
	assert.NotContains(t, fields, "error")

	undecided := IterationResult{
		Iteration:     2,
		Raw:           "no idea",
		Timestamp:     ts,
		ChoiceOutcome: &ChoiceOutcome{Explanation: ""},
	}
	b, err = json.Marshal(undecided)
	require.NoError(t, err)
	fields = nil
	require.NoError(t, json.Unmarshal(b, &fields))
	require.Contains(t, fields, "optionId")
	assert.Nil(t, fields["optionId"])
	assert.NotContains(t, fields, "score")

	var back IterationResult
	require.NoError(t, json.Unmarshal(b, &back))
	require.NotNil(t, back.ChoiceOutcome)
	assert.True(t, back.Undecided())
	assert.Nil(t, back.TextOutcome)
}

func TestFailureEntryHasNoOutcome(t *testing.T) {
	failed := IterationResult{
		Iteration: 3,
		Timestamp: time.Now().UTC(),
		Failure:   &IterationFailure{Code: EEmptyResponse, Message: "empty"},
	}
	b, err := json.Marshal(failed)
	require.NoError(t, err)

	var back IterationResult
	require.NoError(t, json.Unmarshal(b, &back))
	assert.False(t, back.Succeeded())
	assert.Nil(t, back.TextOutcome)
	assert.Nil(t, back.ChoiceOutcome)
	assert.Equal(t, EEmptyResponse, back.Failure.Code)
}

func TestRunRecordRoundTrip(t *testing.T) {
	seed := int64(7)
	rec := RunRecord{
		RunID:          "gpt-4o-001",
		Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ModelName:      "gpt-4o",
		ScenarioID:     "trolley",
		ScenarioType:   ScenarioParadox,
		Prompt:         "choose",
		IterationCount: 1,
		Params:         Params{Temperature: 0.5, TopP: 1, MaxTokens: 100, Seed: &seed},
		Options:        []Option{{ID: 1, Label: "A"}, {ID: 2, Label: "B"}},
		Summary: RunSummary{
			Total: 1,
			ChoiceSummary: &ChoiceSummary{
				Options:   []OptionTally{{ID: 1, Tally: Tally{Count: 1, Percentage: 100}}, {ID: 2}},
				Undecided: Tally{},
			},
		},
		Responses: []IterationResult{{Iteration: 1, Raw: "{1}", ChoiceOutcome: &ChoiceOutcome{}}},
		Insights:  []json.RawMessage{json.RawMessage(`{"note":"x"}`)},
	}

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"top_p":1`)
	assert.Contains(t, string(b), `"undecided":{"count":0,"percentage":0}`)

	var got RunRecord
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, rec.RunID, got.RunID)
	assert.Equal(t, rec.Params, got.Params)
	assert.Equal(t, rec.Options, got.Options)
	require.NotNil(t, got.Summary.ChoiceSummary)
	assert.Nil(t, got.Summary.TextSummary)
	assert.Equal(t, 1, got.Summary.Options[0].Count)
	assert.JSONEq(t, `{"note":"x"}`, string(got.Insights[0]))
	assert.Equal(t, "gpt-4o-001", got.Meta().RunID)
}

func TestScoringRulesValidate(t *testing.T) {
	tests := []struct {
		name  string
		rules ScoringRules
		code  Code
	}{
		{"text ok", ScoringRules{Text: &TextRules{Required: []string{"a"}, PassThreshold: 0.8}}, ""},
		{"choice ok", ScoringRules{Choice: &ChoiceRules{Options: []Option{{ID: 1}, {ID: 2}, {ID: 3}}}}, ""},
		{"both", ScoringRules{Text: &TextRules{}, Choice: &ChoiceRules{}}, EValidation},
		{"neither", ScoringRules{}, EValidation},
		{"bad regex", ScoringRules{Text: &TextRules{Required: []string{"("}}}, EValidation},
		{"threshold", ScoringRules{Text: &TextRules{PassThreshold: 1.5}}, EValidation},
		{"one option", ScoringRules{Choice: &ChoiceRules{Options: []Option{{ID: 1}}}}, EValidation},
		{"five options", ScoringRules{Choice: &ChoiceRules{Options: []Option{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}}}, EValidation},
		{"gap in ids", ScoringRules{Choice: &ChoiceRules{Options: []Option{{ID: 1}, {ID: 3}}}}, EValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rules.Validate()
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestRunConfigValidate(t *testing.T) {
	scenario := Scenario{
		ID:             "number-only",
		Type:           ScenarioCapability,
		PromptTemplate: "Reply with a number",
		Rules:          ScoringRules{Text: &TextRules{Required: []string{`^\d+$`}, PassThreshold: 0.8}},
	}

	cfg := NewRunConfig("openai/gpt-4o", scenario, 5)
	require.NoError(t, cfg.Validate(20))

	tooMany := cfg
	tooMany.IterationCount = 21
	assert.True(t, IsCode(tooMany.Validate(20), EValidation))

	zero := cfg
	zero.IterationCount = 0
	assert.True(t, IsCode(zero.Validate(20), EValidation))

	badModel := cfg
	badModel.ModelName = "gpt 4o; rm"
	assert.True(t, IsCode(badModel.Validate(20), EValidation))

	badParams := cfg
	badParams.Params.Temperature = 3
	assert.True(t, IsCode(badParams.Validate(20), EValidation))

	mismatch := cfg
	mismatch.ScenarioType = ScenarioParadox
	assert.True(t, IsCode(mismatch.Validate(20), EValidation))

	overrides := cfg
	overrides.OptionOverrides = []OptionOverride{{ID: 1, Description: "x"}, {ID: 2, Description: "y"}}
	assert.True(t, IsCode(overrides.Validate(20), EValidation))
}

func TestApplyOverrides(t *testing.T) {
	base := []Option{{ID: 1, Label: "Pull", Description: "a"}, {ID: 2, Label: "Wait", Description: "b"}}

	same, err := ApplyOverrides(base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, same)

	got, err := ApplyOverrides(base, []OptionOverride{{ID: 2, Description: "two"}, {ID: 1, Description: "one"}, {ID: 3, Description: "three"}})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, Option{ID: 1, Label: "Pull", Description: "one"}, got[0])
	assert.Equal(t, Option{ID: 3, Label: "Option 3", Description: "three"}, got[2])

	_, err = ApplyOverrides(base, []OptionOverride{{ID: 1}, {ID: 3}})
	assert.True(t, IsCode(err, EValidation))

	_, err = ApplyOverrides(base, []OptionOverride{{ID: 1}, {ID: 1}})
	assert.True(t, IsCode(err, EValidation))
}

func TestErrorFormatting(t *testing.T) {
	err := Wrap(ERateLimited, "provider throttled", assert.AnError)
	assert.Equal(t, "E_RATE_LIMITED: provider throttled: "+assert.AnError.Error(), err.Error())
	assert.True(t, IsRetriable(err))
	assert.ErrorIs(t, err, assert.AnError)

	auth := New(EAuth, "bad key sk-123")
	assert.False(t, IsRetriable(auth))
	assert.Equal(t, CategoryProvider, auth.Code.Category())
	assert.NotContains(t, PublicMessage(auth), "sk-123")
	assert.Equal(t, "StorageError: the run identifier is not valid", PublicMessage(New(EPathEscape, "/etc/passwd")))
}

func TestParamsNormalize(t *testing.T) {
	p := Params{Temperature: 0.2}.Normalize()
	assert.Equal(t, 1000, p.MaxTokens)
	assert.Equal(t, 0.2, p.Temperature)

	p = Params{MaxTokens: 64}.Normalize()
	assert.Equal(t, 64, p.MaxTokens)
}
