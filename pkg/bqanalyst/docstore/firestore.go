package docstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreClient is the production document store backend.
//
// The underlying connection is stateless and safely shared across
// concurrent callers; every read is a fresh network fetch.
type FirestoreClient struct {
	fs *firestore.Client
}

// NewFirestoreClient connects to the named Firestore database.
// Pass "(default)" for the project's default database.
func NewFirestoreClient(ctx context.Context, projectID, database string) (*FirestoreClient, error) {
	fs, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return nil, fmt.Errorf("connect firestore: %w", err)
	}
	return &FirestoreClient{fs: fs}, nil
}

// Get implements Client.
func (c *FirestoreClient) Get(ctx context.Context, collection, id string) (Fields, error) {
	snap, err := c.fs.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	fields, err := FieldsFromNative(snap.Data())
	if err != nil {
		return nil, fmt.Errorf("document %s/%s: %w", collection, id, err)
	}
	return fields, nil
}

// Query implements Client.
func (c *FirestoreClient) Query(ctx context.Context, q Query) ([]Document, error) {
	fq := c.fs.Collection(q.Collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, "==", f.Value.Any())
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Descending {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}

	iter := fq.Documents(ctx)
	defer iter.Stop()

	var docs []Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("query documents: %w", err)
		}
		fields, err := FieldsFromNative(snap.Data())
		if err != nil {
			return nil, fmt.Errorf("document %s/%s: %w", q.Collection, snap.Ref.ID, err)
		}
		docs = append(docs, Document{
			Collection: q.Collection,
			ID:         snap.Ref.ID,
			Fields:     fields,
		})
	}
	return docs, nil
}

// Upsert implements Client.
func (c *FirestoreClient) Upsert(ctx context.Context, collection, id string, fields Fields) error {
	_, err := c.fs.Collection(collection).Doc(id).Set(ctx, fields.Native())
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// Create implements Client.
func (c *FirestoreClient) Create(ctx context.Context, collection, id string, fields Fields) error {
	_, err := c.fs.Collection(collection).Doc(id).Create(ctx, fields.Native())
	if status.Code(err) == codes.AlreadyExists {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// Delete implements Client.
func (c *FirestoreClient) Delete(ctx context.Context, collection, id string) error {
	_, err := c.fs.Collection(collection).Doc(id).Delete(ctx)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Close implements Client.
func (c *FirestoreClient) Close() error {
	return c.fs.Close()
}
