package accounting

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteLedger implements a SQLite-backed ledger
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens (and if needed creates) the ledger at dbPath
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// concurrent iterations record through one connection
	db.SetMaxOpenConns(1)

	ledger := &SQLiteLedger{db: db}
	if err := ledger.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return ledger, nil
}

func (s *SQLiteLedger) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		attempt TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		estimated INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL,
		cost_input REAL NOT NULL,
		cost_output REAL NOT NULL,
		cost_total REAL NOT NULL,
		request_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_usage_timestamp ON usage(timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_attempt ON usage(attempt);
	CREATE INDEX IF NOT EXISTS idx_usage_model ON usage(model);
	`

	_, err := s.db.Exec(query)
	return err
}

// Record records usage
func (s *SQLiteLedger) Record(ctx context.Context, record UsageRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	query := `
	INSERT INTO usage (
		timestamp, attempt, provider, model, prompt_tokens, completion_tokens,
		estimated, currency, cost_input, cost_output, cost_total, request_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.Timestamp.UTC(),
		record.Attempt,
		record.Provider,
		record.Model,
		record.PromptTokens,
		record.CompletionTokens,
		record.Estimated,
		record.Currency,
		record.CostInput,
		record.CostOutput,
		record.CostTotal,
		record.RequestID,
	)
	return err
}

// Records retrieves records with filters
func (s *SQLiteLedger) Records(ctx context.Context, filter Filter) ([]UsageRecord, error) {
	whereClause, args := buildWhereClause(filter)

	query := fmt.Sprintf(`
		SELECT
			id, timestamp, attempt, provider, model, prompt_tokens, completion_tokens,
			estimated, currency, cost_input, cost_output, cost_total, COALESCE(request_id, '')
		FROM usage
		%s
		ORDER BY timestamp DESC, id DESC
	`, whereClause)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var record UsageRecord
		err := rows.Scan(
			&record.ID,
			&record.Timestamp,
			&record.Attempt,
			&record.Provider,
			&record.Model,
			&record.PromptTokens,
			&record.CompletionTokens,
			&record.Estimated,
			&record.Currency,
			&record.CostInput,
			&record.CostOutput,
			&record.CostTotal,
			&record.RequestID,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

const summaryColumns = `
	COUNT(*),
	COALESCE(SUM(cost_total), 0),
	COALESCE(SUM(cost_input), 0),
	COALESCE(SUM(cost_output), 0),
	COALESCE(SUM(prompt_tokens), 0),
	COALESCE(SUM(completion_tokens), 0),
	COALESCE(SUM(estimated), 0),
	COALESCE(MIN(currency), 'USD')`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSummary reads summaryColumns, after any leading columns in lead.
func scanSummary(row rowScanner, summary *UsageSummary, lead ...any) error {
	return row.Scan(append(lead,
		&summary.TotalRecords,
		&summary.TotalCost,
		&summary.TotalInputCost,
		&summary.TotalOutputCost,
		&summary.TotalPromptTokens,
		&summary.TotalCompletionTokens,
		&summary.EstimatedRecords,
		&summary.Currency,
	)...)
}

// Summary aggregates matching records
func (s *SQLiteLedger) Summary(ctx context.Context, filter Filter) (UsageSummary, error) {
	whereClause, args := buildWhereClause(filter)
	query := fmt.Sprintf(`SELECT %s FROM usage %s`, summaryColumns, whereClause)

	var summary UsageSummary
	err := scanSummary(s.db.QueryRowContext(ctx, query, args...), &summary)
	return summary, err
}

// Groups aggregates matching records per group value
func (s *SQLiteLedger) Groups(ctx context.Context, filter Filter, by GroupBy) ([]UsageGroup, error) {
	// the column name is interpolated, so only known columns pass
	if !by.Valid() {
		return nil, fmt.Errorf("unsupported group by: %q", by)
	}
	whereClause, args := buildWhereClause(filter)

	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM usage
		%s
		GROUP BY %s
		ORDER BY 3 DESC, 1 ASC
	`, by, summaryColumns, whereClause, by)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []UsageGroup
	for rows.Next() {
		group := UsageGroup{GroupBy: by}
		if err := scanSummary(rows, &group.Summary, &group.GroupValue); err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}

	return groups, rows.Err()
}

// Close closes the database
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

func buildWhereClause(filter Filter) (string, []any) {
	var conditions []string
	var args []any

	if filter.From != nil {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filter.To.UTC())
	}
	if filter.Attempt != "" {
		conditions = append(conditions, "attempt = ?")
		args = append(args, filter.Attempt)
	}
	if filter.Provider != "" {
		conditions = append(conditions, "provider = ?")
		args = append(args, filter.Provider)
	}
	if filter.Model != "" {
		conditions = append(conditions, "model = ?")
		args = append(args, filter.Model)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
