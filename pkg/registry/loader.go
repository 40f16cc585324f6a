package registry

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/llmbench/core"
)

// DefaultOpenRouterBaseURL is the OpenAI-compatible OpenRouter endpoint.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// Loader handles loading model configurations
type Loader struct {
	configPath string
}

// NewLoader creates a new configuration loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// LoadRegistry loads the model registry from the configuration file. A
// missing file yields the default registry.
func (l *Loader) LoadRegistry() (*Registry, error) {
	if l.configPath == "" {
		return GetDefaultRegistry(), nil
	}

	data, err := os.ReadFile(l.configPath)
	if errors.Is(err, os.ErrNotExist) {
		return GetDefaultRegistry(), nil
	}
	if err != nil {
		return nil, core.Wrap(core.EInvalidInput, fmt.Sprintf("read models file %s", l.configPath), err)
	}

	return LoadRegistryFromBytes(data)
}

// LoadRegistryFromBytes loads registry from byte data
func LoadRegistryFromBytes(data []byte) (*Registry, error) {
	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, core.Wrap(core.EInvalidInput, "parse models file", err)
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	return &registry, nil
}

// Validate checks ids are unique and providers are known. Failures carry
// E_VALIDATION.
func (r *Registry) Validate() error {
	seen := make(map[string]bool, len(r.Models))
	check := func(m ModelConfig) error {
		switch m.Provider {
		case ProviderOpenAI, ProviderOpenRouter, ProviderAnthropic, ProviderMock:
		default:
			return core.Newf(core.EValidation, "model %q: unknown provider %q", m.ID, m.Provider)
		}
		return nil
	}
	for _, m := range r.Models {
		if m.ID == "" {
			return core.New(core.EValidation, "model entry without id")
		}
		if seen[m.ID] {
			return core.Newf(core.EValidation, "duplicate model id %q", m.ID)
		}
		seen[m.ID] = true
		if err := check(m); err != nil {
			return err
		}
	}
	if r.Fallback != nil {
		return check(*r.Fallback)
	}
	return nil
}

// GetDefaultRegistry routes every model through OpenRouter, which accepts
// "vendor/model" names directly.
func GetDefaultRegistry() *Registry {
	return &Registry{
		Models: []ModelConfig{
			{
				ID:        "openai/gpt-4o-mini",
				Provider:  ProviderOpenRouter,
				BaseURL:   DefaultOpenRouterBaseURL,
				APIKeyEnv: "OPENROUTER_API_KEY",
				Pricing: Pricing{
					Currency:    "USD",
					InputPer1K:  0.00015,
					OutputPer1K: 0.0006,
				},
				Tags: []string{"general", "fast"},
			},
			{
				ID:        "anthropic/claude-3.5-sonnet",
				Provider:  ProviderOpenRouter,
				BaseURL:   DefaultOpenRouterBaseURL,
				APIKeyEnv: "OPENROUTER_API_KEY",
				Pricing: Pricing{
					Currency:    "USD",
					InputPer1K:  0.003,
					OutputPer1K: 0.015,
				},
				Tags: []string{"general", "advanced"},
			},
		},
		Fallback: &ModelConfig{
			Provider:  ProviderOpenRouter,
			BaseURL:   DefaultOpenRouterBaseURL,
			APIKeyEnv: "OPENROUTER_API_KEY",
			Pricing:   Pricing{Currency: "USD"},
		},
	}
}
