package registry

// Provider names understood by the provider factory.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderMock       = "mock"
)

// Pricing represents pricing information for a model
type Pricing struct {
	Currency    string  `json:"currency" yaml:"currency"`
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// ModelConfig represents configuration for a model
type ModelConfig struct {
	ID        string   `json:"id" yaml:"id"`                           // name used in run configs, e.g. "openai/gpt-4o-mini"
	Model     string   `json:"model,omitempty" yaml:"model,omitempty"` // upstream model name when it differs from ID
	Provider  string   `json:"provider" yaml:"provider"`               // openai|openrouter|anthropic|mock
	BaseURL   string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKeyEnv string   `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Pricing   Pricing  `json:"pricing" yaml:"pricing"`
	MaxRPM    int      `json:"max_rpm,omitempty" yaml:"max_rpm,omitempty"` // requests per minute
	MaxTPM    int      `json:"max_tpm,omitempty" yaml:"max_tpm,omitempty"` // tokens per minute
	Tags      []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// UpstreamModel returns the model name sent to the provider.
func (m ModelConfig) UpstreamModel() string {
	if m.Model != "" {
		return m.Model
	}
	return m.ID
}

// Registry represents the model registry
type Registry struct {
	Models []ModelConfig `json:"models" yaml:"models"`

	// Fallback is used for model names that have no explicit entry.
	Fallback *ModelConfig `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// FindModel finds a model by ID in the registry
func (r *Registry) FindModel(modelID string) *ModelConfig {
	for i := range r.Models {
		if r.Models[i].ID == modelID {
			m := r.Models[i]
			return &m
		}
	}
	return nil
}

// Resolve returns the explicit entry for modelID or, when none exists, a
// copy of the fallback entry bound to modelID.
func (r *Registry) Resolve(modelID string) (ModelConfig, bool) {
	if m := r.FindModel(modelID); m != nil {
		return *m, true
	}
	if r.Fallback == nil {
		return ModelConfig{}, false
	}
	m := *r.Fallback
	m.ID = modelID
	m.Model = ""
	return m, true
}

// GetModelsByProvider returns all models for a specific provider
func (r *Registry) GetModelsByProvider(provider string) []ModelConfig {
	var models []ModelConfig
	for _, model := range r.Models {
		if model.Provider == provider {
			models = append(models, model)
		}
	}
	return models
}

// GetModelsByTag returns all models with a specific tag
func (r *Registry) GetModelsByTag(tag string) []ModelConfig {
	var models []ModelConfig
	for _, model := range r.Models {
		for _, modelTag := range model.Tags {
			if modelTag == tag {
				models = append(models, model)
				break
			}
		}
	}
	return models
}

// SetBaseURL points every entry of provider that has no custom endpoint at
// baseURL, the fallback included.
func (r *Registry) SetBaseURL(provider, baseURL string) {
	apply := func(m *ModelConfig) {
		if m.Provider == provider && (m.BaseURL == "" || m.BaseURL == DefaultOpenRouterBaseURL) {
			m.BaseURL = baseURL
		}
	}
	for i := range r.Models {
		apply(&r.Models[i])
	}
	if r.Fallback != nil {
		apply(r.Fallback)
	}
}
