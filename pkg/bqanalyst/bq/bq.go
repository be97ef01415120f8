// Package bq exposes the read-only BigQuery operations the analyst agent
// may call: dataset/table discovery, schema inspection, and a guarded
// query runner.
package bq

import (
	"context"
	"fmt"
	"strings"
)

// Field describes one column of a table schema.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Mode string `json:"mode"`
}

// Runner executes the raw BigQuery RPCs. The production implementation is
// Client; tests substitute fakes.
type Runner interface {
	// ListDatasets returns the dataset ids visible in the project.
	ListDatasets(ctx context.Context) ([]string, error)

	// ListTables returns the table ids within a dataset.
	ListTables(ctx context.Context, datasetID string) ([]string, error)

	// TableSchema returns the schema of one table.
	TableSchema(ctx context.Context, datasetID, tableID string) ([]Field, error)

	// RunQuery executes a SQL statement and returns its rows.
	RunQuery(ctx context.Context, query string) ([]map[string]any, error)
}

// MaxRows is the default cap on rows returned by ExecuteSQL.
const MaxRows = 50

// forbiddenKeywords are rejected anywhere in a statement, case-insensitively.
//
// This is a coarse substring guard, not a SQL parser: a column literally
// named "update_count" triggers a false rejection. That trade-off is
// deliberate; the agent rephrases and moves on.
var forbiddenKeywords = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "ALTER",
	"TRUNCATE", "CREATE", "MERGE", "GRANT",
}

// BlockedError reports an SQL statement rejected by the safety denylist.
// It is a user-facing rejection surfaced as tool output, not a system
// fault.
type BlockedError struct {
	Keyword string
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return fmt.Sprintf("safety violation: operation %q is forbidden, only SELECT queries are allowed", e.Keyword)
}

// CheckQuery returns a BlockedError if the statement contains a forbidden
// keyword. Called before any execution.
func CheckQuery(query string) error {
	upper := strings.ToUpper(query)
	for _, kw := range forbiddenKeywords {
		if strings.Contains(upper, kw) {
			return &BlockedError{Keyword: kw}
		}
	}
	return nil
}

// Tools wraps a Runner with the safety guard and result shaping the agent
// needs.
type Tools struct {
	runner  Runner
	maxRows int
}

// NewTools creates the guarded tool surface. maxRows <= 0 uses MaxRows.
func NewTools(runner Runner, maxRows int) *Tools {
	if maxRows <= 0 {
		maxRows = MaxRows
	}
	return &Tools{runner: runner, maxRows: maxRows}
}

// ListDatasets returns the project's dataset ids.
func (t *Tools) ListDatasets(ctx context.Context) ([]string, error) {
	return t.runner.ListDatasets(ctx)
}

// ListTables returns a dataset's table ids.
func (t *Tools) ListTables(ctx context.Context, datasetID string) ([]string, error) {
	return t.runner.ListTables(ctx, datasetID)
}

// TableSchema returns a table's schema.
func (t *Tools) TableSchema(ctx context.Context, datasetID, tableID string) ([]Field, error) {
	return t.runner.TableSchema(ctx, datasetID, tableID)
}

// QueryResult is the shaped output of ExecuteSQL.
type QueryResult struct {
	// Rows holds at most the configured row cap.
	Rows []map[string]any

	// TotalRows is the pre-truncation row count.
	TotalRows int

	// Truncated reports whether rows were dropped.
	Truncated bool
}

// ExecuteSQL runs a read-only statement. The denylist check happens before
// any execution; rows beyond the cap are dropped, never streamed.
func (t *Tools) ExecuteSQL(ctx context.Context, query string) (*QueryResult, error) {
	if err := CheckQuery(query); err != nil {
		return nil, err
	}

	rows, err := t.runner.RunQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("execute sql: %w", err)
	}

	result := &QueryResult{TotalRows: len(rows), Rows: rows}
	if len(rows) > t.maxRows {
		result.Rows = rows[:t.maxRows]
		result.Truncated = true
	}
	return result, nil
}
