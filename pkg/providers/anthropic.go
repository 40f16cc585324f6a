package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/snow-ghost/llmbench/pkg/llm"
	"github.com/snow-ghost/llmbench/pkg/registry"
)

// DefaultAnthropicBaseURL is used when a model config names no base URL.
const DefaultAnthropicBaseURL = "https://api.anthropic.com"

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 1000
)

// AnthropicProvider talks to the Messages API directly.
type AnthropicProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

type anthropicTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesRequest struct {
	Model       string          `json:"model"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Messages    []anthropicTurn `json:"messages"`
	Temperature float32         `json:"temperature"`
	TopP        float32         `json:"top_p,omitempty"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessagesResponse struct {
	ID         string           `json:"id"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// text concatenates the text blocks; tool and thinking blocks are skipped.
func (r *anthropicMessagesResponse) text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func (r *anthropicMessagesResponse) usage() llm.Usage {
	return llm.Usage{
		PromptTokens:     r.Usage.InputTokens,
		CompletionTokens: r.Usage.OutputTokens,
		TotalTokens:      r.Usage.InputTokens + r.Usage.OutputTokens,
	}
}

// NewAnthropicProvider creates a provider for baseURL. httpClient may be
// nil; per-call deadlines come from the caller's context.
func NewAnthropicProvider(baseURL, apiKey string, httpClient *http.Client) *AnthropicProvider {
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AnthropicProvider{
		client:  httpClient,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// toAnthropic moves system turns into the top-level system field and clamps
// temperature to the API's [0, 1] range.
func toAnthropic(mc registry.ModelConfig, req llm.ChatRequest) anthropicMessagesRequest {
	out := anthropicMessagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: min(req.Temperature, 1),
		TopP:        req.TopP,
		Messages:    make([]anthropicTurn, 0, len(req.Messages)),
	}
	if out.Model == "" {
		out.Model = mc.UpstreamModel()
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = anthropicMaxTokens
	}

	var system []string
	for _, msg := range req.Messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		out.Messages = append(out.Messages, anthropicTurn{Role: msg.Role, Content: msg.Content})
	}
	out.System = strings.Join(system, "\n\n")
	return out
}

// Chat sends one Messages API call.
func (p *AnthropicProvider) Chat(ctx context.Context, mc registry.ModelConfig, req llm.ChatRequest) (llm.ChatResponse, error) {
	body, err := json.Marshal(toAnthropic(mc, req))
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("encode anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("build anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return llm.ChatResponse{}, newHTTPError(resp)
	}

	var out anthropicMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return llm.ChatResponse{}, fmt.Errorf("decode anthropic response: %w", err)
	}

	text := out.text()
	if strings.TrimSpace(text) == "" {
		return llm.ChatResponse{}, emptyResponse(out.StopReason)
	}

	return llm.ChatResponse{
		Text:         text,
		Usage:        out.usage(),
		Model:        mc.ID,
		Provider:     registry.ProviderAnthropic,
		FinishReason: out.StopReason,
		RequestID:    out.ID,
	}, nil
}
