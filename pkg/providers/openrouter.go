package providers

import (
	"context"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/snow-ghost/llmbench/pkg/llm"
	"github.com/snow-ghost/llmbench/pkg/registry"
)

// AppIdentity is reported to OpenRouter for attribution.
type AppIdentity struct {
	Name    string // X-Title
	BaseURL string // HTTP-Referer
}

// OpenRouterProvider implements the Provider interface for OpenRouter (OpenAI-compatible)
type OpenRouterProvider struct {
	client *openai.Client
}

// NewOpenRouterProvider creates a new OpenRouter provider. httpClient may
// be nil.
func NewOpenRouterProvider(baseURL, apiKey string, app AppIdentity, httpClient *http.Client) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = registry.DefaultOpenRouterBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	withHeaders := *httpClient
	withHeaders.Transport = &headerTransport{base: base, headers: app.headers()}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	config.HTTPClient = &withHeaders

	return &OpenRouterProvider{client: openai.NewClientWithConfig(config)}
}

// Chat performs chat completion using OpenRouter (OpenAI-compatible API)
func (p *OpenRouterProvider) Chat(ctx context.Context, mc registry.ModelConfig, req llm.ChatRequest) (llm.ChatResponse, error) {
	return chatCompletion(ctx, p.client, registry.ProviderOpenRouter, mc, req)
}

func (a AppIdentity) headers() map[string]string {
	h := make(map[string]string, 2)
	if a.BaseURL != "" {
		h["HTTP-Referer"] = a.BaseURL
	}
	if a.Name != "" {
		h["X-Title"] = a.Name
	}
	return h
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		clone.Header.Set(k, v)
	}
	return t.base.RoundTrip(clone)
}
