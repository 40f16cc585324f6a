package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/llmbench/core"
)

type rawEvaluation struct {
	Required      []string `json:"required" yaml:"required"`
	Forbidden     []string `json:"forbidden" yaml:"forbidden"`
	PassThreshold *float64 `json:"pass_threshold" yaml:"pass_threshold"`
	IgnoreCase    bool     `json:"ignore_case" yaml:"ignore_case"`
}

type rawCapability struct {
	ID             string         `json:"id" yaml:"id"`
	Title          string         `json:"title" yaml:"title"`
	Type           string         `json:"type" yaml:"type"`
	Category       string         `json:"category" yaml:"category"`
	PromptTemplate string         `json:"promptTemplate" yaml:"promptTemplate"`
	Evaluation     *rawEvaluation `json:"evaluation" yaml:"evaluation"`
}

type rawParadox struct {
	ID             string        `json:"id" yaml:"id"`
	Title          string        `json:"title" yaml:"title"`
	Type           string        `json:"type" yaml:"type"`
	Category       string        `json:"category" yaml:"category"`
	PromptTemplate string        `json:"promptTemplate" yaml:"promptTemplate"`
	Options        []core.Option `json:"options" yaml:"options"`

	// binary schema predating options
	Group1Default *string `json:"group1Default" yaml:"group1Default"`
	Group2Default *string `json:"group2Default" yaml:"group2Default"`
}

// decodeList parses a top-level list as YAML when the file has a YAML
// extension and as JSON otherwise.
func decodeList[T any](path string, data []byte) ([]T, error) {
	var items []T
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &items); err != nil {
			return nil, core.Wrap(core.EValidation, fmt.Sprintf("%s must contain a list of scenarios", filepath.Base(path)), err)
		}
	default:
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return nil, core.Newf(core.EValidation, "%s must contain a list of scenarios", filepath.Base(path))
		}
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, core.Wrap(core.EValidation, fmt.Sprintf("invalid JSON in %s", filepath.Base(path)), err)
		}
	}
	return items, nil
}

func decodeCapabilities(path string, data []byte) ([]core.Scenario, error) {
	items, err := decodeList[rawCapability](path, data)
	if err != nil {
		return nil, err
	}
	out := make([]core.Scenario, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		s, err := item.normalize()
		if err != nil {
			return nil, core.Wrap(core.EValidation, fmt.Sprintf("invalid capability entry %d", i+1), err)
		}
		if seen[s.ID] {
			return nil, core.Newf(core.EValidation, "duplicate capability id %q", s.ID)
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out, nil
}

func decodeParadoxes(path string, data []byte) ([]core.Scenario, error) {
	items, err := decodeList[rawParadox](path, data)
	if err != nil {
		return nil, err
	}
	out := make([]core.Scenario, 0, len(items))
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		s, err := item.normalize()
		if err != nil {
			return nil, core.Wrap(core.EValidation, fmt.Sprintf("invalid paradox entry %d", i+1), err)
		}
		if seen[s.ID] {
			return nil, core.Newf(core.EValidation, "duplicate paradox id %q", s.ID)
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out, nil
}

func (c rawCapability) normalize() (core.Scenario, error) {
	if c.ID == "" || c.Title == "" || c.PromptTemplate == "" {
		return core.Scenario{}, core.New(core.EValidation, "id, title and promptTemplate are required")
	}
	if c.Type != "" && c.Type != string(core.ScenarioCapability) {
		return core.Scenario{}, core.Newf(core.EValidation, "unexpected type %q", c.Type)
	}
	if c.Evaluation == nil {
		return core.Scenario{}, core.New(core.EValidation, "evaluation is required")
	}

	required, err := trimPatterns(c.Evaluation.Required)
	if err != nil {
		return core.Scenario{}, err
	}
	if len(required) == 0 {
		return core.Scenario{}, core.New(core.EValidation, "at least one required pattern is needed")
	}
	forbidden, err := trimPatterns(c.Evaluation.Forbidden)
	if err != nil {
		return core.Scenario{}, err
	}

	threshold := core.DefaultPassThreshold
	if c.Evaluation.PassThreshold != nil {
		threshold = *c.Evaluation.PassThreshold
	}
	if threshold <= 0 || threshold > 1 {
		return core.Scenario{}, core.Newf(core.EValidation, "pass_threshold %v outside (0,1]", threshold)
	}

	s := core.Scenario{
		ID:             c.ID,
		Title:          c.Title,
		Type:           core.ScenarioCapability,
		Category:       c.Category,
		PromptTemplate: c.PromptTemplate,
		Rules: core.ScoringRules{Text: &core.TextRules{
			Required:      required,
			Forbidden:     forbidden,
			PassThreshold: threshold,
			IgnoreCase:    c.Evaluation.IgnoreCase,
		}},
	}
	return s, s.Rules.Validate()
}

func (p rawParadox) normalize() (core.Scenario, error) {
	if p.ID == "" || p.Title == "" || p.PromptTemplate == "" {
		return core.Scenario{}, core.New(core.EValidation, "id, title and promptTemplate are required")
	}

	var options []core.Option
	switch {
	case p.Options != nil:
		options = append(options, p.Options...)
	case p.Group1Default != nil && p.Group2Default != nil:
		options = []core.Option{
			{ID: 1, Label: "Option 1", Description: *p.Group1Default},
			{ID: 2, Label: "Option 2", Description: *p.Group2Default},
		}
	default:
		return core.Scenario{}, core.New(core.EValidation, "options or group1Default/group2Default are required")
	}

	s := core.Scenario{
		ID:             p.ID,
		Title:          p.Title,
		Type:           core.ScenarioParadox,
		Category:       p.Category,
		PromptTemplate: p.PromptTemplate,
		Rules:          core.ScoringRules{Choice: &core.ChoiceRules{Options: options}},
	}
	return s, s.Rules.Validate()
}

func trimPatterns(patterns []string) ([]string, error) {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, core.New(core.EValidation, "patterns must be non-empty")
		}
		out = append(out, p)
	}
	return out, nil
}
