package core

import (
	"context"
	"encoding/json"
)

// InvokeRequest is one prompt sent to a model.
type InvokeRequest struct {
	Model        string
	Prompt       string
	SystemPrompt string
	Params       Params
}

// Invoker sends one request to a model provider and returns the response
// text. Failures are *Error values with provider codes; retry is the
// invoker's concern.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (string, error)
}

// RunStore persists run records under strict identifiers.
type RunStore interface {
	Create(ctx context.Context, rec *RunRecord) (string, error)
	Get(ctx context.Context, runID string) (*RunRecord, error)
	List(ctx context.Context) ([]RunMeta, error)
	AppendInsight(ctx context.Context, runID string, insight json.RawMessage) error
}

// ScenarioSource resolves scenario definitions by id.
type ScenarioSource interface {
	Scenario(ctx context.Context, id string) (Scenario, error)
}
