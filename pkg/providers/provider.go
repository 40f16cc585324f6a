// Package providers talks to hosted chat-completion APIs and turns their
// failures into typed errors.
package providers

import (
	"context"

	"github.com/snow-ghost/llmbench/pkg/llm"
	"github.com/snow-ghost/llmbench/pkg/registry"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Chat performs one chat completion. Implementations return raw
	// transport errors or typed core errors; Classify normalises both.
	Chat(ctx context.Context, mc registry.ModelConfig, req llm.ChatRequest) (llm.ChatResponse, error)
}

// ProviderFactory creates provider instances
type ProviderFactory interface {
	CreateProviderFromConfig(mc registry.ModelConfig) (Provider, error)
}
