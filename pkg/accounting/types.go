// Package accounting keeps a ledger of provider usage and cost per call.
package accounting

import (
	"context"
	"time"
)

// UsageRecord is one successful provider call.
type UsageRecord struct {
	ID               int64     `json:"id" db:"id"`
	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
	Attempt          string    `json:"attempt" db:"attempt"` // run attempt id
	Provider         string    `json:"provider" db:"provider"`
	Model            string    `json:"model" db:"model"`
	PromptTokens     int       `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens" db:"completion_tokens"`
	Estimated        bool      `json:"estimated" db:"estimated"` // usage was counted locally
	Currency         string    `json:"currency" db:"currency"`
	CostInput        float64   `json:"cost_input" db:"cost_input"`
	CostOutput       float64   `json:"cost_output" db:"cost_output"`
	CostTotal        float64   `json:"cost_total" db:"cost_total"`
	RequestID        string    `json:"request_id" db:"request_id"`
}

// UsageSummary represents aggregated usage
type UsageSummary struct {
	TotalRecords          int64   `json:"total_records"`
	TotalCost             float64 `json:"total_cost"`
	TotalInputCost        float64 `json:"total_input_cost"`
	TotalOutputCost       float64 `json:"total_output_cost"`
	TotalPromptTokens     int64   `json:"total_prompt_tokens"`
	TotalCompletionTokens int64   `json:"total_completion_tokens"`
	EstimatedRecords      int64   `json:"estimated_records"`
	Currency              string  `json:"currency"`
}

// UsageGroup is the summary of one group value.
type UsageGroup struct {
	GroupBy    GroupBy      `json:"group_by"`
	GroupValue string       `json:"group_value"`
	Summary    UsageSummary `json:"summary"`
}

// GroupBy names a ledger column usable for grouping.
type GroupBy string

const (
	GroupByProvider GroupBy = "provider"
	GroupByModel    GroupBy = "model"
	GroupByAttempt  GroupBy = "attempt"
)

// Valid reports whether g is a known grouping column.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupByProvider, GroupByModel, GroupByAttempt:
		return true
	}
	return false
}

// Filter narrows ledger queries. Zero fields match everything.
type Filter struct {
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	Attempt  string     `json:"attempt,omitempty"`
	Provider string     `json:"provider,omitempty"`
	Model    string     `json:"model,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}

// ExportFormat represents supported export formats
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
)

// Ledger stores usage records.
type Ledger interface {
	// Record appends one usage record
	Record(ctx context.Context, record UsageRecord) error

	// Records returns matching records, newest first
	Records(ctx context.Context, filter Filter) ([]UsageRecord, error)

	// Summary aggregates matching records
	Summary(ctx context.Context, filter Filter) (UsageSummary, error)

	// Groups aggregates matching records per group value, most expensive first
	Groups(ctx context.Context, filter Filter, by GroupBy) ([]UsageGroup, error)

	// Close releases the ledger
	Close() error
}
