package providers

import (
	"context"
	"math"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/snow-ghost/llmbench/pkg/llm"
	"github.com/snow-ghost/llmbench/pkg/registry"
)

// DefaultOpenAIBaseURL is used when a model config names no base URL.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider implements the Provider interface for OpenAI-compatible APIs
type OpenAIProvider struct {
	client *openai.Client
	name   string
}

// NewOpenAIProvider creates a new OpenAI provider. httpClient may be nil.
func NewOpenAIProvider(baseURL, apiKey string, httpClient *http.Client) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL
	if httpClient != nil {
		config.HTTPClient = httpClient
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		name:   registry.ProviderOpenAI,
	}
}

// Chat performs chat completion using OpenAI API
func (p *OpenAIProvider) Chat(ctx context.Context, mc registry.ModelConfig, req llm.ChatRequest) (llm.ChatResponse, error) {
	return chatCompletion(ctx, p.client, p.name, mc, req)
}

func chatCompletion(ctx context.Context, client *openai.Client, providerName string, mc registry.ModelConfig, req llm.ChatRequest) (llm.ChatResponse, error) {
	response, err := client.CreateChatCompletion(ctx, toOpenAIRequest(mc, req))
	if err != nil {
		return llm.ChatResponse{}, err
	}

	text, finish := extractText(response)
	if text == "" {
		return llm.ChatResponse{}, emptyResponse(finish)
	}

	return llm.ChatResponse{
		Text: text,
		Usage: llm.Usage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
		},
		Model:        mc.ID,
		Provider:     providerName,
		FinishReason: finish,
		RequestID:    response.ID,
	}, nil
}

// nonZero keeps explicit zeros on the wire: go-openai omits zero values,
// which providers read as "use the default".
func nonZero(v float32) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return v
}

func toOpenAIRequest(mc registry.ModelConfig, req llm.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
			Name:    msg.Name,
		}
	}

	model := req.Model
	if model == "" {
		model = mc.UpstreamModel()
	}

	return openai.ChatCompletionRequest{
		Model:            model,
		Messages:         messages,
		Temperature:      nonZero(req.Temperature),
		TopP:             nonZero(req.TopP),
		MaxTokens:        req.MaxTokens,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Seed:             req.Seed,
	}
}

// extractText picks the reply text: the first choice's content, then its
// refusal, then the first other choice with content. The finish reason of
// the first choice explains an empty result.
func extractText(response openai.ChatCompletionResponse) (text, finishReason string) {
	if len(response.Choices) == 0 {
		return "", ""
	}

	first := response.Choices[0]
	finishReason = string(first.FinishReason)
	if s := strings.TrimSpace(first.Message.Content); s != "" {
		return first.Message.Content, finishReason
	}
	if s := strings.TrimSpace(first.Message.Refusal); s != "" {
		return first.Message.Refusal, finishReason
	}
	for _, choice := range response.Choices[1:] {
		if strings.TrimSpace(choice.Message.Content) != "" {
			return choice.Message.Content, string(choice.FinishReason)
		}
	}
	return "", finishReason
}
