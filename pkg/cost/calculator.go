// Package cost prices provider usage with the registry's per-1k-token rates.
package cost

import (
	"math"

	"github.com/snow-ghost/llmbench/pkg/llm"
	"github.com/snow-ghost/llmbench/pkg/registry"
)

// DefaultCurrency applies to pricing entries that name none.
const DefaultCurrency = "USD"

// CostResult represents the calculated cost breakdown
type CostResult struct {
	InputCost    float64 `json:"input_cost"`
	OutputCost   float64 `json:"output_cost"`
	TotalCost    float64 `json:"total_cost"`
	Currency     string  `json:"currency"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
}

func round6(v float64) float64 {
	return math.Round(v*1000000) / 1000000
}

// CalcCost prices usage. Prices are per 1k tokens; results are rounded to
// six decimals.
func CalcCost(u llm.Usage, p registry.Pricing) (inputCost, outputCost, total float64) {
	inputCost = round6(float64(u.PromptTokens) * p.InputPer1K / 1000.0)
	outputCost = round6(float64(u.CompletionTokens) * p.OutputPer1K / 1000.0)
	total = round6(inputCost + outputCost)
	return inputCost, outputCost, total
}

// ForModel prices usage with the pricing of mc.
func ForModel(mc registry.ModelConfig, usage llm.Usage) *CostResult {
	inputCost, outputCost, totalCost := CalcCost(usage, mc.Pricing)
	currency := mc.Pricing.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	return &CostResult{
		InputCost:    inputCost,
		OutputCost:   outputCost,
		TotalCost:    totalCost,
		Currency:     currency,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		TotalTokens:  usage.TotalTokens,
	}
}

// EstimateRun bounds the cost of a run from above: every iteration sends
// promptTokens and receives the full maxTokens completion.
func EstimateRun(mc registry.ModelConfig, promptTokens, maxTokens, iterations int) *CostResult {
	iterations = max(0, iterations)
	in := max(0, promptTokens) * iterations
	out := max(0, maxTokens) * iterations
	return ForModel(mc, llm.Usage{
		PromptTokens:     in,
		CompletionTokens: out,
		TotalTokens:      in + out,
	})
}
