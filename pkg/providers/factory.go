package providers

import (
	"net/http"
	"os"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/llm/mock"
	"github.com/snow-ghost/llmbench/pkg/registry"
)

// DefaultProviderFactory implements ProviderFactory
type DefaultProviderFactory struct {
	app        AppIdentity
	httpClient *http.Client
	getenv     func(string) string
}

// FactoryOption configures the factory
type FactoryOption func(*DefaultProviderFactory)

// WithAppIdentity sets the attribution headers sent to OpenRouter
func WithAppIdentity(app AppIdentity) FactoryOption {
	return func(f *DefaultProviderFactory) { f.app = app }
}

// WithHTTPClient sets the HTTP client shared by every provider
func WithHTTPClient(c *http.Client) FactoryOption {
	return func(f *DefaultProviderFactory) { f.httpClient = c }
}

// WithEnv replaces os.Getenv for API key lookup
func WithEnv(getenv func(string) string) FactoryOption {
	return func(f *DefaultProviderFactory) { f.getenv = getenv }
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(opts ...FactoryOption) *DefaultProviderFactory {
	f := &DefaultProviderFactory{getenv: os.Getenv}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateProviderFromConfig creates a provider instance from model configuration
func (f *DefaultProviderFactory) CreateProviderFromConfig(mc registry.ModelConfig) (Provider, error) {
	if mc.Provider == registry.ProviderMock {
		return mock.New(), nil
	}

	apiKey := ""
	if mc.APIKeyEnv != "" {
		apiKey = f.getenv(mc.APIKeyEnv)
	}
	if apiKey == "" {
		return nil, core.Newf(core.EAuth, "no API key configured for %s (set %s)", mc.ID, mc.APIKeyEnv)
	}

	switch mc.Provider {
	case registry.ProviderOpenAI:
		return NewOpenAIProvider(mc.BaseURL, apiKey, f.httpClient), nil
	case registry.ProviderOpenRouter:
		return NewOpenRouterProvider(mc.BaseURL, apiKey, f.app, f.httpClient), nil
	case registry.ProviderAnthropic:
		return NewAnthropicProvider(mc.BaseURL, apiKey, f.httpClient), nil
	default:
		return nil, core.Newf(core.EProviderUnknown, "unsupported provider %q", mc.Provider)
	}
}

// GetSupportedProviders returns a list of supported provider types
func (f *DefaultProviderFactory) GetSupportedProviders() []string {
	return []string{
		registry.ProviderOpenAI,
		registry.ProviderOpenRouter,
		registry.ProviderAnthropic,
		registry.ProviderMock,
	}
}
