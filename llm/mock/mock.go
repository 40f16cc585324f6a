// Package mock provides a scripted chat provider for tests and dry runs.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/snow-ghost/llmbench/pkg/llm"
	"github.com/snow-ghost/llmbench/pkg/registry"
)

// DefaultText is returned when no script is configured.
const DefaultText = "{1}\nmock response"

// Step is one scripted reply.
type Step struct {
	Text         string
	Err          error
	Delay        time.Duration // waits before replying, honouring ctx
	FinishReason string
	Usage        llm.Usage
}

// Text scripts a successful reply.
func Text(s string) Step { return Step{Text: s, FinishReason: "stop"} }

// Fail scripts a failed call.
func Fail(err error) Step { return Step{Err: err} }

// Responder computes a reply from the call number (1-based) and request.
type Responder func(call int, req llm.ChatRequest) Step

// Provider replays its script in order and repeats the last step once the
// script is exhausted. It is safe for concurrent use.
type Provider struct {
	mu        sync.Mutex
	script    []Step
	responder Responder
	requests  []llm.ChatRequest
}

// New returns a provider replaying steps.
func New(steps ...Step) *Provider {
	return &Provider{script: steps}
}

// WithResponder returns a provider whose replies are computed per call.
func WithResponder(fn Responder) *Provider {
	return &Provider{responder: fn}
}

// Chat implements the provider contract.
func (p *Provider) Chat(ctx context.Context, mc registry.ModelConfig, req llm.ChatRequest) (llm.ChatResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	call := len(p.requests)
	step := p.next(call, req)
	p.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return llm.ChatResponse{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}
	if step.Err != nil {
		return llm.ChatResponse{}, step.Err
	}

	return llm.ChatResponse{
		Text:         step.Text,
		Usage:        step.Usage,
		Model:        mc.ID,
		Provider:     registry.ProviderMock,
		FinishReason: step.FinishReason,
	}, nil
}

func (p *Provider) next(call int, req llm.ChatRequest) Step {
	if p.responder != nil {
		return p.responder(call, req)
	}
	switch {
	case len(p.script) == 0:
		return Text(DefaultText)
	case call <= len(p.script):
		return p.script[call-1]
	default:
		return p.script[len(p.script)-1]
	}
}

// Calls returns the number of Chat calls so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Requests returns a copy of every request received.
func (p *Provider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.ChatRequest(nil), p.requests...)
}
