package providers

import (
	"context"
	"sync"
	"time"

	"github.com/snow-ghost/llmbench/core"
	"github.com/snow-ghost/llmbench/pkg/accounting"
	"github.com/snow-ghost/llmbench/pkg/cost"
	"github.com/snow-ghost/llmbench/pkg/limiter"
	"github.com/snow-ghost/llmbench/pkg/llm"
	"github.com/snow-ghost/llmbench/pkg/observability"
	"github.com/snow-ghost/llmbench/pkg/registry"
	"github.com/snow-ghost/llmbench/pkg/tokens"
	"github.com/snow-ghost/llmbench/pkg/tracing"
)

// Client invokes models by name. Every attempt passes the model's rate
// limiter and circuit breaker under its own deadline; rate-limit and
// transient failures are retried with backoff, everything else returns at
// once.
type Client struct {
	registry   *registry.Registry
	factory    ProviderFactory
	protection *limiter.ProtectionManager
	tokens     *tokens.Registry
	ledger     *accounting.Manager
	obs        *observability.Manager

	mu        sync.Mutex
	providers map[string]Provider
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithProtection replaces the default protection stack
func WithProtection(pm *limiter.ProtectionManager) ClientOption {
	return func(c *Client) { c.protection = pm }
}

// WithLedger records usage of successful calls
func WithLedger(m *accounting.Manager) ClientOption {
	return func(c *Client) { c.ledger = m }
}

// WithObservability sets logger, metrics and tracer
func WithObservability(o *observability.Manager) ClientOption {
	return func(c *Client) { c.obs = o }
}

// WithTokenizer sets the encoders used when a provider omits usage
func WithTokenizer(r *tokens.Registry) ClientOption {
	return func(c *Client) { c.tokens = r }
}

// WithProvider pins the provider used for modelID
func WithProvider(modelID string, p Provider) ClientOption {
	return func(c *Client) { c.providers[modelID] = p }
}

// NewClient creates a client resolving models through reg.
func NewClient(reg *registry.Registry, factory ProviderFactory, opts ...ClientOption) *Client {
	c := &Client{
		registry:  reg,
		factory:   factory,
		providers: make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.obs == nil {
		c.obs = observability.NewNop()
	}
	if c.protection == nil {
		retry := limiter.NewRetryManager(limiter.DefaultRetryConfig())
		c.protection = limiter.NewProtectionManager(retry, limiter.NewCircuitBreakerManager(c.obs.BreakerHook()), 0,
			limiter.WithRetryObserver(c.obs.RetryHook))
	}
	if c.tokens == nil {
		c.tokens = tokens.GetDefaultRegistry()
	}
	return c
}

// Invoke sends one prompt and returns the response text. Failures are
// typed core errors, or the context's error when ctx ends first.
func (c *Client) Invoke(ctx context.Context, req core.InvokeRequest) (string, error) {
	mc, ok := c.registry.Resolve(req.Model)
	if !ok {
		return "", core.Newf(core.EModelNotFound, "model %q is not in the registry", req.Model)
	}
	provider, err := c.provider(mc)
	if err != nil {
		return "", err
	}

	chatReq := llm.NewChatRequest(req)
	chatReq.Model = mc.UpstreamModel()
	chatReq.Caller = observability.AttemptFromContext(ctx)

	var resp llm.ChatResponse
	err = c.protection.Execute(ctx, mc, c.budget(mc, chatReq), func(ctx context.Context) error {
		r, err := c.attempt(ctx, provider, mc, chatReq)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *Client) attempt(ctx context.Context, provider Provider, mc registry.ModelConfig, req llm.ChatRequest) (llm.ChatResponse, error) {
	ctx, span := c.obs.GetTracer().StartProviderSpan(ctx, mc.ID, mc.Provider)
	defer span.End()

	start := time.Now()
	resp, err := provider.Chat(ctx, mc, req)
	err = Classify(err)
	duration := time.Since(start)

	if err != nil {
		tracing.RecordSpanError(span, err)
		c.obs.RecordProviderCall(mc.Provider, mc.ID, err, duration, 0, 0, 0, "")
		c.obs.GetLogger().LogProviderCall(ctx, mc.Provider, mc.ID, string(core.GetCode(err)), duration, 0, 0, "")
		return llm.ChatResponse{}, err
	}

	estimated := false
	if resp.Usage.Empty() {
		resp.Usage = c.estimateUsage(mc.ID, req, resp.Text)
		estimated = true
	}
	if resp.Provider == "" {
		resp.Provider = mc.Provider
	}
	if resp.Model == "" {
		resp.Model = mc.ID
	}
	price := cost.ForModel(mc, resp.Usage)

	tracing.RecordSpanTokens(span, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	tracing.RecordSpanCost(span, price.TotalCost, price.Currency)
	tracing.RecordSpanSuccess(span)
	c.obs.RecordProviderCall(mc.Provider, mc.ID, nil, duration, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, price.TotalCost, price.Currency)
	c.obs.GetLogger().LogProviderCall(ctx, mc.Provider, mc.ID, "ok", duration, resp.Usage.TotalTokens, price.TotalCost, resp.RequestID)

	if c.ledger != nil {
		if err := c.ledger.RecordCall(ctx, req.Caller, resp, estimated, price); err != nil {
			c.obs.GetLogger().Warn("Usage ledger write failed", "model", mc.ID, "err", err)
		}
	}
	return resp, nil
}

func (c *Client) provider(mc registry.ModelConfig) (Provider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.providers[mc.ID]; ok {
		return p, nil
	}
	p, err := c.factory.CreateProviderFromConfig(mc)
	if err != nil {
		return nil, err
	}
	c.providers[mc.ID] = p
	return p, nil
}

// budget is the token weight of a request: its prompt plus the completion
// it may produce. Models without a token limit skip the count.
func (c *Client) budget(mc registry.ModelConfig, req llm.ChatRequest) int {
	if mc.MaxTPM <= 0 {
		return 0
	}
	return c.tokens.CountPrompt(mc.ID, req.Texts()) + req.MaxTokens
}

// Snapshot returns the protection state of model.
func (c *Client) Snapshot(model string) (limiter.ModelStats, bool) {
	mc, ok := c.registry.Resolve(model)
	if !ok {
		return limiter.ModelStats{}, false
	}
	return c.protection.Snapshot(mc), true
}

func (c *Client) estimateUsage(modelID string, req llm.ChatRequest, text string) llm.Usage {
	prompt := c.tokens.CountPrompt(modelID, req.Texts())
	completion := c.tokens.Count(modelID, text)
	return llm.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}
