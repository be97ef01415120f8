package bq

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// Client is the production Runner backed by the BigQuery API.
type Client struct {
	bq *bigquery.Client
}

// NewClient connects to BigQuery for the given project.
func NewClient(ctx context.Context, projectID string) (*Client, error) {
	c, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("connect bigquery: %w", err)
	}
	return &Client{bq: c}, nil
}

// ListDatasets implements Runner.
func (c *Client) ListDatasets(ctx context.Context) ([]string, error) {
	var ids []string
	it := c.bq.Datasets(ctx)
	for {
		ds, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		ids = append(ids, ds.DatasetID)
	}
	return ids, nil
}

// ListTables implements Runner.
func (c *Client) ListTables(ctx context.Context, datasetID string) ([]string, error) {
	var ids []string
	it := c.bq.Dataset(datasetID).Tables(ctx)
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list tables in %s: %w", datasetID, err)
		}
		ids = append(ids, t.TableID)
	}
	return ids, nil
}

// TableSchema implements Runner.
func (c *Client) TableSchema(ctx context.Context, datasetID, tableID string) ([]Field, error) {
	md, err := c.bq.Dataset(datasetID).Table(tableID).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("get schema of %s.%s: %w", datasetID, tableID, err)
	}

	fields := make([]Field, 0, len(md.Schema))
	for _, f := range md.Schema {
		mode := "NULLABLE"
		if f.Required {
			mode = "REQUIRED"
		}
		if f.Repeated {
			mode = "REPEATED"
		}
		fields = append(fields, Field{
			Name: f.Name,
			Type: string(f.Type),
			Mode: mode,
		})
	}
	return fields, nil
}

// RunQuery implements Runner.
func (c *Client) RunQuery(ctx context.Context, query string) ([]map[string]any, error) {
	it, err := c.bq.Query(query).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}

	var rows []map[string]any
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read query results: %w", err)
		}
		converted := make(map[string]any, len(row))
		for k, v := range row {
			converted[k] = v
		}
		rows = append(rows, converted)
	}
	return rows, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.bq.Close()
}
