package accounting

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/snow-ghost/llmbench/pkg/cost"
	"github.com/snow-ghost/llmbench/pkg/llm"
)

// Manager records provider usage into a ledger
type Manager struct {
	ledger Ledger
}

// Config holds accounting configuration
type Config struct {
	// DBPath selects the SQLite ledger; empty keeps usage in memory.
	DBPath string
}

// NewManager creates a new accounting manager
func NewManager(config Config) (*Manager, error) {
	if config.DBPath == "" {
		return &Manager{ledger: NewMemoryLedger()}, nil
	}

	ledger, err := NewSQLiteLedger(config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite ledger: %w", err)
	}
	return &Manager{ledger: ledger}, nil
}

// NewManagerWithLedger wraps an existing ledger
func NewManagerWithLedger(ledger Ledger) *Manager {
	return &Manager{ledger: ledger}
}

// RecordCall records one successful provider call
func (m *Manager) RecordCall(ctx context.Context, attempt string, resp llm.ChatResponse, estimated bool, price *cost.CostResult) error {
	record := UsageRecord{
		Timestamp:        time.Now(),
		Attempt:          attempt,
		Provider:         resp.Provider,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Estimated:        estimated,
		RequestID:        resp.RequestID,
	}
	if price != nil {
		record.Currency = price.Currency
		record.CostInput = price.InputCost
		record.CostOutput = price.OutputCost
		record.CostTotal = price.TotalCost
	}
	return m.ledger.Record(ctx, record)
}

// Records retrieves records with filters
func (m *Manager) Records(ctx context.Context, filter Filter) ([]UsageRecord, error) {
	return m.ledger.Records(ctx, filter)
}

// Summary aggregates matching records
func (m *Manager) Summary(ctx context.Context, filter Filter) (UsageSummary, error) {
	return m.ledger.Summary(ctx, filter)
}

// AttemptSummary aggregates the usage of one run attempt
func (m *Manager) AttemptSummary(ctx context.Context, attempt string) (UsageSummary, error) {
	return m.ledger.Summary(ctx, Filter{Attempt: attempt})
}

// Groups aggregates matching records per group value
func (m *Manager) Groups(ctx context.Context, filter Filter, by GroupBy) ([]UsageGroup, error) {
	return m.ledger.Groups(ctx, filter, by)
}

// Export renders matching records in the requested format
func (m *Manager) Export(ctx context.Context, filter Filter, format ExportFormat) ([]byte, error) {
	records, err := m.ledger.Records(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatJSON:
		if records == nil {
			records = []UsageRecord{}
		}
		return json.MarshalIndent(records, "", "  ")
	case ExportFormatCSV:
		return exportCSV(records)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// Close closes the manager
func (m *Manager) Close() error {
	return m.ledger.Close()
}

func exportCSV(records []UsageRecord) ([]byte, error) {
	var buf strings.Builder
	writer := csv.NewWriter(&buf)

	header := []string{
		"ID", "Timestamp", "Attempt", "Provider", "Model",
		"Prompt Tokens", "Completion Tokens", "Estimated", "Currency",
		"Cost Input", "Cost Output", "Cost Total", "Request ID",
	}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, record := range records {
		row := []string{
			strconv.FormatInt(record.ID, 10),
			record.Timestamp.Format(time.RFC3339),
			record.Attempt,
			record.Provider,
			record.Model,
			strconv.Itoa(record.PromptTokens),
			strconv.Itoa(record.CompletionTokens),
			strconv.FormatBool(record.Estimated),
			record.Currency,
			fmt.Sprintf("%.6f", record.CostInput),
			fmt.Sprintf("%.6f", record.CostOutput),
			fmt.Sprintf("%.6f", record.CostTotal),
			record.RequestID,
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	return []byte(buf.String()), writer.Error()
}
