package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	modelNamePattern  = regexp.MustCompile(`(?i)^[a-z0-9\-_/:.]+$`)
	scenarioIDPattern = regexp.MustCompile(`(?i)^[a-z0-9_-]+$`)
)

// RunConfig is the immutable input of one run.
type RunConfig struct {
	ModelName       string           `json:"modelName" validate:"required,max=200,modelname"`
	ScenarioID      string           `json:"scenarioId" validate:"required,max=100,scenarioid"`
	ScenarioType    ScenarioType     `json:"scenarioType" validate:"oneof=capability paradox"`
	Category        string           `json:"category,omitempty"`
	PromptTemplate  string           `json:"promptTemplate" validate:"required"`
	SystemPrompt    string           `json:"systemPrompt,omitempty" validate:"max=2000"`
	IterationCount  int              `json:"iterationCount" validate:"gte=1"`
	Params          Params           `json:"params"`
	Rules           ScoringRules     `json:"rules"`
	OptionOverrides []OptionOverride `json:"optionOverrides,omitempty" validate:"omitempty,dive"`
}

// NewRunConfig builds a config for scenario with default parameters.
func NewRunConfig(model string, scenario Scenario, iterations int) RunConfig {
	return RunConfig{
		ModelName:      model,
		ScenarioID:     scenario.ID,
		ScenarioType:   scenario.Type,
		Category:       scenario.Category,
		PromptTemplate: scenario.PromptTemplate,
		IterationCount: iterations,
		Params:         DefaultParams(),
		Rules:          scenario.Rules,
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("modelname", func(fl validator.FieldLevel) bool {
			return modelNamePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("scenarioid", func(fl validator.FieldLevel) bool {
			return scenarioIDPattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Validate rejects a malformed config before any provider call.
// maxIterations <= 0 disables the upper bound.
func (c RunConfig) Validate(maxIterations int) error {
	if err := structValidator().Struct(c); err != nil {
		return Wrap(EValidation, describeValidation(err), err)
	}
	if maxIterations > 0 && c.IterationCount > maxIterations {
		return Newf(EValidation, "iteration count %d exceeds maximum %d", c.IterationCount, maxIterations)
	}
	if err := c.Rules.Validate(); err != nil {
		return err
	}
	if c.Rules.Kind() != c.ScenarioType {
		return Newf(EValidation, "scenario type %q does not match its scoring rules", c.ScenarioType)
	}
	if len(c.OptionOverrides) > 0 {
		if c.ScenarioType != ScenarioParadox {
			return New(EValidation, "option overrides only apply to paradox scenarios")
		}
		if _, err := ApplyOverrides(c.Rules.Choice.Options, c.OptionOverrides); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStruct runs tag validation on any value using the shared
// validator.
func ValidateStruct(v any) error {
	if err := structValidator().Struct(v); err != nil {
		return Wrap(EValidation, describeValidation(err), err)
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid configuration"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
