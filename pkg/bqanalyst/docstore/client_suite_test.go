package docstore_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/docstore"
)

// testClientBasics exercises the Client contract shared by every backend.
func testClientBasics(t *testing.T, client docstore.Client) {
	t.Helper()
	ctx := context.Background()

	// Missing document
	_, err := client.Get(ctx, "col", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	// Upsert then get
	fields := docstore.Fields{
		"thread_id": docstore.String("t1"),
		"idx":       docstore.Int(0),
	}
	require.NoError(t, client.Upsert(ctx, "col", "doc-1", fields))

	got, err := client.Get(ctx, "col", "doc-1")
	require.NoError(t, err)
	assert.True(t, got["thread_id"].Equal(docstore.String("t1")))

	// Upsert replaces the full field set
	require.NoError(t, client.Upsert(ctx, "col", "doc-1", docstore.Fields{
		"thread_id": docstore.String("t1"),
		"idx":       docstore.Int(1),
	}))
	got, err = client.Get(ctx, "col", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got["idx"].IntVal())

	// Create succeeds once, then reports the taken id
	require.NoError(t, client.Create(ctx, "col", "doc-2", fields))
	err = client.Create(ctx, "col", "doc-2", fields)
	assert.ErrorIs(t, err, docstore.ErrAlreadyExists)

	// Delete, including a missing document
	require.NoError(t, client.Delete(ctx, "col", "doc-2"))
	require.NoError(t, client.Delete(ctx, "col", "doc-2"))
	_, err = client.Get(ctx, "col", "doc-2")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

// testClientQuery exercises filtering, ordering, and limits.
func testClientQuery(t *testing.T, client docstore.Client) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		thread := "t1"
		if i >= 3 {
			thread = "t2"
		}
		require.NoError(t, client.Upsert(ctx, "items", fmt.Sprintf("doc-%d", i), docstore.Fields{
			"thread_id": docstore.String(thread),
			"seq":       docstore.Int(int64(i)),
		}))
	}

	// Equality filter
	docs, err := client.Query(ctx, docstore.Query{
		Collection: "items",
		Filters: []docstore.Filter{
			{Field: "thread_id", Value: docstore.String("t1")},
		},
	})
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	// Descending order with limit
	docs, err = client.Query(ctx, docstore.Query{
		Collection: "items",
		OrderBy:    "seq",
		Descending: true,
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(4), docs[0].Fields["seq"].IntVal())
	assert.Equal(t, int64(3), docs[1].Fields["seq"].IntVal())

	// No matches is an empty result, not an error
	docs, err = client.Query(ctx, docstore.Query{
		Collection: "items",
		Filters: []docstore.Filter{
			{Field: "thread_id", Value: docstore.String("t9")},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, docs)

	// Unknown collection
	docs, err = client.Query(ctx, docstore.Query{Collection: "nope"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}
