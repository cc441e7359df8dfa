package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/askql/askql/pkg/models"
	"github.com/askql/askql/pkg/sqlcheck"
)

// Executor runs approved SELECT statements against the analytical store with
// a per-query timeout and a row cap. It is the last line of defense against
// write statements: even user-edited SQL passes through the keyword guard
// before reaching the engine.
type Executor struct {
	client  *Client
	timeout time.Duration
	rowCap  int
	logger  *slog.Logger
}

// NewExecutor creates an executor bound to the given client. rowCap limits how
// many rows are materialized; the true row count is still reported.
func NewExecutor(client *Client, timeout time.Duration, rowCap int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		client:  client,
		timeout: timeout,
		rowCap:  rowCap,
		logger:  logger,
	}
}

// Run executes a single read-only statement and returns the materialized
// result set. Rows beyond the cap are drained but not stored, so RowCount
// reflects what the query actually matched. Failures carry engine detail via
// EngineError.
func (e *Executor) Run(ctx context.Context, query string) (*models.ResultSet, error) {
	if kw, found := sqlcheck.ForbiddenKeyword(query); found {
		return nil, &EngineError{
			Message: fmt.Sprintf("write statements are not allowed (%s)", kw),
			Code:    "read_only",
		}
	}
	stmt, err := sqlcheck.SingleStatement(query)
	if err != nil {
		return nil, &EngineError{Message: err.Error(), Code: "rejected"}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	rows, err := e.client.DB().QueryContext(ctx, stmt)
	if err != nil {
		return nil, asEngineError(err, "query exceeded the execution time limit")
	}
	defer rows.Close()

	result, err := e.collect(rows)
	if err != nil {
		return nil, asEngineError(err, "query exceeded the execution time limit")
	}

	e.logger.Info("Query executed",
		"rows", result.RowCount,
		"truncated", result.Truncated,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return result, nil
}

// collect materializes rows in engine order, keeping at most rowCap of them
// while continuing to drain the cursor for an accurate count.
func (e *Executor) collect(rows *sql.Rows) (*models.ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &models.ResultSet{
		Columns: columns,
		Rows:    make([]models.Row, 0, 16),
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		result.RowCount++
		if result.RowCount > e.rowCap {
			result.Truncated = true
			continue
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := models.Row{
			Columns: columns,
			Values:  make([]any, len(columns)),
		}
		for i, v := range values {
			row.Values[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// normalizeValue converts driver-specific scan types into JSON-friendly Go
// values. Byte slices become strings; timestamps keep their time.Time form so
// encoding/json renders RFC 3339.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t
	default:
		return v
	}
}
