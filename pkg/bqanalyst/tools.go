package bqanalyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/bq"
	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/observability"
)

// Tool names exposed to the model.
const (
	toolListDatasets   = "list_datasets"
	toolListTables     = "list_tables"
	toolGetTableSchema = "get_table_schema"
	toolExecuteSQL     = "execute_sql"
)

// analystTools declares the BigQuery tool surface for the model.
var analystTools = []ToolDef{
	{
		Name:        toolListDatasets,
		Description: "List the available BigQuery datasets. Use this first to discover the data layout.",
	},
	{
		Name:        toolListTables,
		Description: "List the tables in a BigQuery dataset.",
		Properties: map[string]any{
			"dataset_id": map[string]any{"type": "string", "description": "Dataset id to list tables for."},
		},
		Required: []string{"dataset_id"},
	},
	{
		Name:        toolGetTableSchema,
		Description: "Get the schema of a BigQuery table. Always check the schema before writing SQL.",
		Properties: map[string]any{
			"dataset_id": map[string]any{"type": "string", "description": "Dataset containing the table."},
			"table_id":   map[string]any{"type": "string", "description": "Table to describe."},
		},
		Required: []string{"dataset_id", "table_id"},
	},
	{
		Name:        toolExecuteSQL,
		Description: "Execute a read-only SQL query against BigQuery. Only SELECT statements are allowed.",
		Properties: map[string]any{
			"query": map[string]any{"type": "string", "description": "The SQL statement to run."},
		},
		Required: []string{"query"},
	},
}

// executeTool dispatches one tool call and shapes its output as text for
// the model. A returned isError=true output is still a normal tool
// result; the model is expected to revise and retry.
func (a *Analyst) executeTool(ctx context.Context, call ToolCall) (content string, isError bool) {
	ctx, span := a.spans.StartToolSpan(ctx, call.Name)
	done := observability.TimedOperation()
	result, err := a.runTool(ctx, call)
	observability.LogToolCall(a.logger, call.Name, done(), err)
	a.spans.EndSpanWithError(span, err)

	if err != nil {
		var blocked *bq.BlockedError
		if errors.As(err, &blocked) {
			observability.LogQueryBlocked(a.logger, blocked.Keyword)
		}
		return err.Error(), true
	}
	return result, false
}

// runTool performs the actual tool work.
func (a *Analyst) runTool(ctx context.Context, call ToolCall) (string, error) {
	switch call.Name {
	case toolListDatasets:
		ids, err := a.tools.ListDatasets(ctx)
		if err != nil {
			return "", err
		}
		if len(ids) == 0 {
			return "No datasets available in this project.", nil
		}
		return strings.Join(ids, ", "), nil

	case toolListTables:
		dataset, err := stringArg(call, "dataset_id")
		if err != nil {
			return "", err
		}
		ids, err := a.tools.ListTables(ctx, dataset)
		if err != nil {
			return "", err
		}
		if len(ids) == 0 {
			return fmt.Sprintf("No tables in dataset %s.", dataset), nil
		}
		return strings.Join(ids, ", "), nil

	case toolGetTableSchema:
		dataset, err := stringArg(call, "dataset_id")
		if err != nil {
			return "", err
		}
		table, err := stringArg(call, "table_id")
		if err != nil {
			return "", err
		}
		fields, err := a.tools.TableSchema(ctx, dataset, table)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Schema of %s.%s:\n", dataset, table)
		for _, f := range fields {
			fmt.Fprintf(&b, "%s: %s (%s)\n", f.Name, f.Type, f.Mode)
		}
		return strings.TrimRight(b.String(), "\n"), nil

	case toolExecuteSQL:
		query, err := stringArg(call, "query")
		if err != nil {
			return "", err
		}
		result, err := a.tools.ExecuteSQL(ctx, query)
		if err != nil {
			return "", err
		}
		rows, err := json.Marshal(result.Rows)
		if err != nil {
			return "", fmt.Errorf("encode query rows: %w", err)
		}
		if result.Truncated {
			return fmt.Sprintf("Results (first %d of %d rows):\n%s", len(result.Rows), result.TotalRows, rows), nil
		}
		return fmt.Sprintf("Results (%d rows):\n%s", result.TotalRows, rows), nil

	default:
		return "", fmt.Errorf("unknown tool %q", call.Name)
	}
}

// stringArg extracts a required string argument from a tool call.
func stringArg(call ToolCall, name string) (string, error) {
	v, ok := call.Args[name]
	if !ok {
		return "", fmt.Errorf("tool %s: missing argument %q", call.Name, name)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("tool %s: argument %q must be a non-empty string", call.Name, name)
	}
	return s, nil
}
