package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteClient persists documents to SQLite.
// It is suitable for single-process production use and local development;
// deployments that need a shared store use FirestoreClient instead.
type SQLiteClient struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteClient creates a new SQLite-backed document store.
// The path should be a file path (e.g., "./checkpoints.db") or ":memory:"
// for testing.
func NewSQLiteClient(path string) (*SQLiteClient, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			doc_id TEXT NOT NULL,
			fields BLOB NOT NULL,
			PRIMARY KEY (collection, doc_id)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_collection
		ON documents(collection)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteClient{db: db}, nil
}

// Get implements Client.
func (s *SQLiteClient) Get(ctx context.Context, collection, id string) (Fields, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClientClosed
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT fields FROM documents
		WHERE collection = ? AND doc_id = ?
	`, collection, id).Scan(&data)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return DecodeFields(data)
}

// Query implements Client.
//
// Fields are stored as one encoded blob per document, so equality filters,
// ordering, and limits are applied after decode rather than pushed into
// SQL. Collections here are bounded by thread history size, which keeps
// the full-collection scan acceptable.
func (s *SQLiteClient) Query(ctx context.Context, q Query) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClientClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, fields FROM documents
		WHERE collection = ?
	`, q.Collection)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		fields, err := DecodeFields(data)
		if err != nil {
			return nil, fmt.Errorf("document %s/%s: %w", q.Collection, id, err)
		}
		if !matchFilters(fields, q.Filters) {
			continue
		}
		docs = append(docs, Document{
			Collection: q.Collection,
			ID:         id,
			Fields:     fields,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	sortDocuments(docs, q.OrderBy, q.Descending)

	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// Upsert implements Client.
func (s *SQLiteClient) Upsert(ctx context.Context, collection, id string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClientClosed
	}

	data, err := EncodeFields(fields)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, doc_id, fields)
		VALUES (?, ?, ?)
		ON CONFLICT(collection, doc_id) DO UPDATE SET
			fields = excluded.fields
	`, collection, id, data)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Create implements Client.
func (s *SQLiteClient) Create(ctx context.Context, collection, id string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClientClosed
	}

	data, err := EncodeFields(fields)
	if err != nil {
		return err
	}

	// INSERT OR IGNORE keeps conflict detection driver-agnostic: zero rows
	// affected means the id was taken.
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO documents (collection, doc_id, fields)
		VALUES (?, ?, ?)
	`, collection, id, data)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Delete implements Client.
func (s *SQLiteClient) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClientClosed
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM documents
		WHERE collection = ? AND doc_id = ?
	`, collection, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Close implements Client.
func (s *SQLiteClient) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
