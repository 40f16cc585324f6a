package accounting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryLedger implements an in-memory ledger
type MemoryLedger struct {
	records []UsageRecord
	mu      sync.RWMutex
}

// NewMemoryLedger creates a new in-memory ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: make([]UsageRecord, 0),
	}
}

// Record records usage
func (m *MemoryLedger) Record(ctx context.Context, record UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	record.ID = int64(len(m.records) + 1)

	m.records = append(m.records, record)
	return nil
}

// Records retrieves records with filters
func (m *MemoryLedger) Records(ctx context.Context, filter Filter) ([]UsageRecord, error) {
	m.mu.RLock()
	var filtered []UsageRecord
	for _, record := range m.records {
		if matchesFilter(record, filter) {
			filtered = append(filtered, record)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	if filter.Limit > 0 {
		start := min(filter.Offset, len(filtered))
		end := min(start+filter.Limit, len(filtered))
		filtered = filtered[start:end]
	}

	return filtered, nil
}

// Summary aggregates matching records
func (m *MemoryLedger) Summary(ctx context.Context, filter Filter) (UsageSummary, error) {
	filter.Limit, filter.Offset = 0, 0
	records, err := m.Records(ctx, filter)
	if err != nil {
		return UsageSummary{}, err
	}
	return summarize(records), nil
}

// Groups aggregates matching records per group value
func (m *MemoryLedger) Groups(ctx context.Context, filter Filter, by GroupBy) ([]UsageGroup, error) {
	if !by.Valid() {
		return nil, fmt.Errorf("unsupported group by: %q", by)
	}
	filter.Limit, filter.Offset = 0, 0
	records, err := m.Records(ctx, filter)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string][]UsageRecord)
	for _, record := range records {
		key := groupValue(record, by)
		buckets[key] = append(buckets[key], record)
	}

	groups := make([]UsageGroup, 0, len(buckets))
	for key, recs := range buckets {
		groups = append(groups, UsageGroup{GroupBy: by, GroupValue: key, Summary: summarize(recs)})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Summary.TotalCost != groups[j].Summary.TotalCost {
			return groups[i].Summary.TotalCost > groups[j].Summary.TotalCost
		}
		return groups[i].GroupValue < groups[j].GroupValue
	})
	return groups, nil
}

// Close closes the ledger
func (m *MemoryLedger) Close() error {
	return nil
}

func matchesFilter(record UsageRecord, filter Filter) bool {
	if filter.From != nil && record.Timestamp.Before(*filter.From) {
		return false
	}
	if filter.To != nil && record.Timestamp.After(*filter.To) {
		return false
	}
	if filter.Attempt != "" && record.Attempt != filter.Attempt {
		return false
	}
	if filter.Provider != "" && record.Provider != filter.Provider {
		return false
	}
	if filter.Model != "" && record.Model != filter.Model {
		return false
	}
	return true
}

func groupValue(record UsageRecord, by GroupBy) string {
	switch by {
	case GroupByProvider:
		return record.Provider
	case GroupByModel:
		return record.Model
	default:
		return record.Attempt
	}
}

func summarize(records []UsageRecord) UsageSummary {
	summary := UsageSummary{
		TotalRecords: int64(len(records)),
		Currency:     "USD",
	}
	for i, record := range records {
		summary.TotalCost += record.CostTotal
		summary.TotalInputCost += record.CostInput
		summary.TotalOutputCost += record.CostOutput
		summary.TotalPromptTokens += int64(record.PromptTokens)
		summary.TotalCompletionTokens += int64(record.CompletionTokens)
		if record.Estimated {
			summary.EstimatedRecords++
		}
		if i == 0 && record.Currency != "" {
			summary.Currency = record.Currency
		}
	}
	return summary
}
