package docstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryClient is an in-memory document store for testing.
// Data is lost when the process exits.
type MemoryClient struct {
	mu     sync.RWMutex
	data   map[string]map[string]Fields // collection -> id -> fields
	closed bool
}

// NewMemoryClient creates a new in-memory document store.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		data: make(map[string]map[string]Fields),
	}
}

// Get implements Client.
func (m *MemoryClient) Get(_ context.Context, collection, id string) (Fields, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClientClosed
	}

	col, ok := m.data[collection]
	if !ok {
		return nil, ErrNotFound
	}
	fields, ok := col[id]
	if !ok {
		return nil, ErrNotFound
	}
	return fields.Clone(), nil
}

// Query implements Client.
func (m *MemoryClient) Query(_ context.Context, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClientClosed
	}

	var docs []Document
	for id, fields := range m.data[q.Collection] {
		if !matchFilters(fields, q.Filters) {
			continue
		}
		docs = append(docs, Document{
			Collection: q.Collection,
			ID:         id,
			Fields:     fields.Clone(),
		})
	}

	sortDocuments(docs, q.OrderBy, q.Descending)

	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// Upsert implements Client.
func (m *MemoryClient) Upsert(_ context.Context, collection, id string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClientClosed
	}

	if m.data[collection] == nil {
		m.data[collection] = make(map[string]Fields)
	}
	m.data[collection][id] = fields.Clone()
	return nil
}

// Create implements Client.
func (m *MemoryClient) Create(_ context.Context, collection, id string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClientClosed
	}

	if m.data[collection] == nil {
		m.data[collection] = make(map[string]Fields)
	}
	if _, ok := m.data[collection][id]; ok {
		return ErrAlreadyExists
	}
	m.data[collection][id] = fields.Clone()
	return nil
}

// Delete implements Client.
func (m *MemoryClient) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClientClosed
	}

	if col, ok := m.data[collection]; ok {
		delete(col, id)
	}
	return nil
}

// Close implements Client.
func (m *MemoryClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the number of documents in a collection.
// Useful for testing.
func (m *MemoryClient) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data[collection])
}

// matchFilters reports whether a field map satisfies every equality filter.
func matchFilters(fields Fields, filters []Filter) bool {
	for _, f := range filters {
		v, ok := fields[f.Field]
		if !ok || !v.Equal(f.Value) {
			return false
		}
	}
	return true
}

// sortDocuments orders documents by the named field, with document id as
// tiebreak so iteration order is deterministic.
func sortDocuments(docs []Document, orderBy string, descending bool) {
	if orderBy == "" {
		sort.Slice(docs, func(i, j int) bool {
			return docs[i].ID < docs[j].ID
		})
		return
	}
	sort.Slice(docs, func(i, j int) bool {
		c := docs[i].Fields[orderBy].Compare(docs[j].Fields[orderBy])
		if c == 0 {
			switch {
			case docs[i].ID < docs[j].ID:
				c = -1
			case docs[i].ID > docs[j].ID:
				c = 1
			}
		}
		if descending {
			return c > 0
		}
		return c < 0
	})
}
