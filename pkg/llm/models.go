// Package llm holds the provider-neutral chat wire types shared by the
// provider implementations and the invoking client.
package llm

import "github.com/snow-ghost/llmbench/core"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Empty reports whether the provider returned no usage at all.
func (u Usage) Empty() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model            string            `json:"model"`
	Messages         []Message         `json:"messages"`
	Temperature      float32           `json:"temperature"`
	TopP             float32           `json:"top_p"`
	MaxTokens        int               `json:"max_tokens,omitempty"`
	FrequencyPenalty float32           `json:"frequency_penalty,omitempty"`
	PresencePenalty  float32           `json:"presence_penalty,omitempty"`
	Seed             *int              `json:"seed,omitempty"`
	Caller           string            `json:"caller,omitempty"` // run attempt id, recorded in the ledger
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	Text         string `json:"text"`
	Usage        Usage  `json:"usage"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	FinishReason string `json:"finish_reason"`
	RequestID    string `json:"request_id,omitempty"`
}

// NewChatRequest builds the chat request for one benchmark prompt. A system
// prompt, when present, becomes the leading system message.
func NewChatRequest(req core.InvokeRequest) ChatRequest {
	var messages []Message
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: req.Prompt})

	out := ChatRequest{
		Model:            req.Model,
		Messages:         messages,
		Temperature:      float32(req.Params.Temperature),
		TopP:             float32(req.Params.TopP),
		MaxTokens:        req.Params.MaxTokens,
		FrequencyPenalty: float32(req.Params.FrequencyPenalty),
		PresencePenalty:  float32(req.Params.PresencePenalty),
	}
	if req.Params.Seed != nil {
		seed := int(*req.Params.Seed)
		out.Seed = &seed
	}
	return out
}

// Texts returns the message contents in order, for token estimation.
func (r ChatRequest) Texts() []string {
	texts := make([]string, len(r.Messages))
	for i, m := range r.Messages {
		texts[i] = m.Content
	}
	return texts
}
