// Package docstore is a minimal client for a schemaless document database.
//
// Documents are addressed by collection plus document id and hold a flat
// map of typed fields (see Value). The interface is deliberately small:
// point get, equality-filtered query with optional ordering and limit,
// idempotent upsert, create-once, and delete. The checkpoint stores are
// built entirely on these five operations.
package docstore

import (
	"context"
	"errors"
)

// Sentinel errors for document operations.
var (
	// ErrNotFound indicates a point lookup on a missing document.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists indicates a create on a taken document id.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("document store client closed")
)

// Document is one stored record with its address.
type Document struct {
	Collection string
	ID         string
	Fields     Fields
}

// Filter is an equality constraint on one field.
type Filter struct {
	Field string
	Value Value
}

// Query describes an equality-filtered scan of one collection.
type Query struct {
	Collection string
	Filters    []Filter

	// OrderBy names a field to sort on; empty means backend iteration order.
	OrderBy    string
	Descending bool

	// Limit bounds the number of returned documents; 0 means no limit.
	Limit int
}

// Client issues document operations against one backing store.
// Implementations must be safe for concurrent use; the client is shared
// by all checkpoint stores.
type Client interface {
	// Get fetches one document's fields.
	// Returns ErrNotFound if the document doesn't exist.
	Get(ctx context.Context, collection, id string) (Fields, error)

	// Query returns the documents matching q, ordered per q.OrderBy.
	// An empty result is a nil slice, not an error.
	Query(ctx context.Context, q Query) ([]Document, error)

	// Upsert writes the document, replacing any existing fields.
	Upsert(ctx context.Context, collection, id string, fields Fields) error

	// Create writes the document only if the id is free.
	// Returns ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, collection, id string, fields Fields) error

	// Delete removes the document. Deleting a missing document is not an
	// error.
	Delete(ctx context.Context, collection, id string) error

	// Close releases any resources (connections, files).
	Close() error
}
