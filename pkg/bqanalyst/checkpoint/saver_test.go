package checkpoint_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/checkpoint"
	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/docstore"
)

func newTestSaver(t *testing.T) (*checkpoint.Saver, *docstore.MemoryClient) {
	t.Helper()
	client := docstore.NewMemoryClient()
	t.Cleanup(func() { client.Close() })
	return checkpoint.New(client), client
}

// putCheckpoint commits one checkpoint with the given id and transcript,
// chained onto parent.
func putCheckpoint(t *testing.T, saver *checkpoint.Saver, parent checkpoint.Ref, id string, versions checkpoint.ChannelVersions, values map[string]any, md checkpoint.Metadata) checkpoint.Ref {
	t.Helper()
	cp := &checkpoint.Checkpoint{
		ID:              id,
		Timestamp:       time.Now().UTC(),
		ChannelValues:   values,
		ChannelVersions: versions,
	}
	ref, err := saver.Put(context.Background(), parent, cp, md, versions)
	require.NoError(t, err)
	assert.Equal(t, id, ref.CheckpointID)
	return ref
}

func v1() checkpoint.ChannelVersions {
	v, _ := checkpoint.NextVersion("")
	return checkpoint.ChannelVersions{"messages": v}
}

func TestSaver_PutGetRoundTrip(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	values := map[string]any{"messages": []any{"hello"}}
	ref := putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1"}, checkpoint.NewID(), v1(), values, checkpoint.Metadata{"source": "input"})

	// Exact lookup
	tuple, err := saver.GetTuple(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, tuple.Ref)
	assert.Equal(t, values, tuple.Checkpoint.ChannelValues)
	assert.Equal(t, "input", tuple.Metadata["source"])
	assert.Nil(t, tuple.ParentRef)

	// Latest lookup resolves the same checkpoint
	latest, err := saver.GetTuple(ctx, checkpoint.Ref{ThreadID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, ref.CheckpointID, latest.Ref.CheckpointID)
}

func TestSaver_GetTupleNotFound(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	_, err := saver.GetTuple(ctx, checkpoint.Ref{ThreadID: "nope"})
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	_, err = saver.GetTuple(ctx, checkpoint.Ref{ThreadID: "nope", CheckpointID: "missing"})
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestSaver_LatestResolution(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	parent := checkpoint.Ref{ThreadID: "t1"}
	versions := v1()
	for _, id := range []string{
		"2024-01-01T00:00:00Z",
		"2024-01-01T00:00:05Z",
		"2024-01-01T00:00:10Z",
	} {
		parent = putCheckpoint(t, saver, parent, id, versions, map[string]any{"messages": []any{id}}, nil)
	}

	tuple, err := saver.GetTuple(ctx, checkpoint.Ref{ThreadID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:10Z", tuple.Ref.CheckpointID)
}

func TestSaver_ParentLinkage(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	first := putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1"}, checkpoint.NewID(), v1(), map[string]any{"messages": []any{"a"}}, nil)

	v2, err := checkpoint.NextVersion(v1()["messages"])
	require.NoError(t, err)
	second := putCheckpoint(t, saver, first, checkpoint.NewID(), checkpoint.ChannelVersions{"messages": v2}, map[string]any{"messages": []any{"a", "b"}}, nil)

	tuple, err := saver.GetTuple(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, tuple.ParentRef)
	assert.Equal(t, first.CheckpointID, tuple.ParentRef.CheckpointID)

	root, err := saver.GetTuple(ctx, first)
	require.NoError(t, err)
	assert.Nil(t, root.ParentRef)
}

func TestSaver_BlobReuseAcrossCheckpoints(t *testing.T) {
	saver, client := newTestSaver(t)

	versions := v1()
	parent := putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1"}, checkpoint.NewID(), versions, map[string]any{"messages": []any{"a"}}, nil)
	require.Equal(t, 1, client.Len("blobs"))

	// Second checkpoint adds a new channel but leaves messages untouched.
	// Its checkpoint references both versions, yet only the new channel
	// writes a blob.
	cp := &checkpoint.Checkpoint{
		ID:        checkpoint.NewID(),
		Timestamp: time.Now().UTC(),
		ChannelValues: map[string]any{
			"messages": []any{"a"},
			"summary":  "short",
		},
		ChannelVersions: checkpoint.ChannelVersions{
			"messages": versions["messages"],
			"summary":  versions["messages"],
		},
	}
	ref, err := saver.Put(context.Background(), parent, cp, nil,
		checkpoint.ChannelVersions{"summary": versions["messages"]})
	require.NoError(t, err)
	assert.Equal(t, 2, client.Len("blobs"))

	tuple, err := saver.GetTuple(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, tuple.Checkpoint.ChannelValues["messages"])
	assert.Equal(t, "short", tuple.Checkpoint.ChannelValues["summary"])
}

func TestSaver_IdempotentBlobWrites(t *testing.T) {
	saver, client := newTestSaver(t)

	versions := v1()
	values := map[string]any{"messages": []any{"a"}}
	id := checkpoint.NewID()

	putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1"}, id, versions, values, nil)
	before := client.Len("blobs")

	// Re-running the same commit must not duplicate blobs or records
	putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1"}, id, versions, values, nil)
	assert.Equal(t, before, client.Len("blobs"))
	assert.Equal(t, 1, client.Len("checkpoints"))
}

func TestSaver_AbsentChannelGetsEmptySentinel(t *testing.T) {
	saver, client := newTestSaver(t)
	ctx := context.Background()

	// "draft" is versioned but carries no value at this step
	versions := checkpoint.ChannelVersions{
		"messages": v1()["messages"],
		"draft":    v1()["messages"],
	}
	ref := putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1"}, checkpoint.NewID(), versions, map[string]any{"messages": []any{"a"}}, nil)

	// The sentinel blob exists in storage
	docs, err := client.Query(ctx, docstore.Query{
		Collection: "blobs",
		Filters: []docstore.Filter{
			{Field: "channel", Value: docstore.String("draft")},
		},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "empty", docs[0].Fields["blob_type"].StringVal())

	// But the materialized tuple skips it
	tuple, err := saver.GetTuple(ctx, ref)
	require.NoError(t, err)
	assert.Contains(t, tuple.Checkpoint.ChannelValues, "messages")
	assert.NotContains(t, tuple.Checkpoint.ChannelValues, "draft")
}

func TestSaver_MissingBlobToleratedOnLoad(t *testing.T) {
	saver, client := newTestSaver(t)
	ctx := context.Background()

	// The record's version map names "scratch", but its blob is never
	// written: only "messages" is in the new-versions set for this put.
	versions := checkpoint.ChannelVersions{
		"messages": v1()["messages"],
		"scratch":  v1()["messages"],
	}
	cp := &checkpoint.Checkpoint{
		ID:              checkpoint.NewID(),
		Timestamp:       time.Now().UTC(),
		ChannelValues:   map[string]any{"messages": []any{"a"}, "scratch": "wip"},
		ChannelVersions: versions,
	}
	ref, err := saver.Put(ctx, checkpoint.Ref{ThreadID: "t1"}, cp, nil,
		checkpoint.ChannelVersions{"messages": versions["messages"]})
	require.NoError(t, err)

	// No blob document exists for the channel, not even a sentinel
	docs, err := client.Query(ctx, docstore.Query{
		Collection: "blobs",
		Filters: []docstore.Filter{
			{Field: "channel", Value: docstore.String("scratch")},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, docs)

	// Loading still succeeds with the channel simply omitted
	tuple, err := saver.GetTuple(ctx, ref)
	require.NoError(t, err)
	assert.Contains(t, tuple.Checkpoint.ChannelValues, "messages")
	assert.NotContains(t, tuple.Checkpoint.ChannelValues, "scratch")
}

func TestSaver_PutWritesCreateOnce(t *testing.T) {
	saver, client := newTestSaver(t)
	ctx := context.Background()

	ref := putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1"}, checkpoint.NewID(), v1(), map[string]any{"messages": []any{"a"}}, nil)

	writes := []checkpoint.ChannelWrite{
		{Channel: "messages", Value: "first"},
		{Channel: "messages", Value: "second"},
	}
	require.NoError(t, saver.PutWrites(ctx, ref, "task-1", "", writes))
	assert.Equal(t, 2, client.Len("writes"))

	// A duplicate delivery with different payloads is a no-op: positional
	// slots are create-once.
	dup := []checkpoint.ChannelWrite{
		{Channel: "messages", Value: "FIRST-REPLAYED"},
		{Channel: "messages", Value: "SECOND-REPLAYED"},
	}
	require.NoError(t, saver.PutWrites(ctx, ref, "task-1", "", dup))
	assert.Equal(t, 2, client.Len("writes"))

	tuple, err := saver.GetTuple(ctx, ref)
	require.NoError(t, err)
	require.Len(t, tuple.PendingWrites, 2)
	for _, w := range tuple.PendingWrites {
		assert.Equal(t, "task-1", w.TaskID)
		assert.NotContains(t, w.Value, "REPLAYED")
	}
}

func TestSaver_PutWritesReservedSlotUpserts(t *testing.T) {
	saver, client := newTestSaver(t)
	ctx := context.Background()

	ref := putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1"}, checkpoint.NewID(), v1(), map[string]any{"messages": []any{"a"}}, nil)

	require.NoError(t, saver.PutWrites(ctx, ref, "task-1", "", []checkpoint.ChannelWrite{
		{Channel: checkpoint.ChannelError, Value: "attempt 1 failed"},
	}))
	require.NoError(t, saver.PutWrites(ctx, ref, "task-1", "", []checkpoint.ChannelWrite{
		{Channel: checkpoint.ChannelError, Value: "attempt 2 failed"},
	}))

	// Reserved slots overwrite instead of accumulating
	assert.Equal(t, 1, client.Len("writes"))

	tuple, err := saver.GetTuple(ctx, ref)
	require.NoError(t, err)
	require.Len(t, tuple.PendingWrites, 1)
	assert.Equal(t, "attempt 2 failed", tuple.PendingWrites[0].Value)
}

func TestSaver_WritesFromDistinctTasksCoexist(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	ref := putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1"}, checkpoint.NewID(), v1(), map[string]any{"messages": []any{"a"}}, nil)

	require.NoError(t, saver.PutWrites(ctx, ref, "task-1", "", []checkpoint.ChannelWrite{
		{Channel: "messages", Value: "from task 1"},
	}))
	require.NoError(t, saver.PutWrites(ctx, ref, "task-2", "", []checkpoint.ChannelWrite{
		{Channel: "messages", Value: "from task 2"},
	}))

	tuple, err := saver.GetTuple(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, tuple.PendingWrites, 2)
}

func TestSaver_ListNewestFirst(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	parent := checkpoint.Ref{ThreadID: "t1"}
	ids := []string{
		"2024-01-01T00:00:00Z",
		"2024-01-01T00:00:05Z",
		"2024-01-01T00:00:10Z",
	}
	for _, id := range ids {
		parent = putCheckpoint(t, saver, parent, id, v1(), map[string]any{"messages": []any{id}}, nil)
	}

	tuples, err := saver.List(ctx, checkpoint.ListOptions{
		Ref: &checkpoint.Ref{ThreadID: "t1"},
	})
	require.NoError(t, err)
	require.Len(t, tuples, 3)
	assert.Equal(t, ids[2], tuples[0].Ref.CheckpointID)
	assert.Equal(t, ids[1], tuples[1].Ref.CheckpointID)
	assert.Equal(t, ids[0], tuples[2].Ref.CheckpointID)

	// Channel values materialize for every yielded tuple; pending writes
	// intentionally do not.
	assert.Equal(t, []any{ids[2]}, tuples[0].Checkpoint.ChannelValues["messages"])
	assert.Empty(t, tuples[0].PendingWrites)
}

func TestSaver_ListBeforeCursor(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	parent := checkpoint.Ref{ThreadID: "t1"}
	for _, id := range []string{
		"2024-01-01T00:00:00Z",
		"2024-01-01T00:00:05Z",
		"2024-01-01T00:00:10Z",
	} {
		parent = putCheckpoint(t, saver, parent, id, v1(), map[string]any{"messages": []any{id}}, nil)
	}

	// The cursor itself is excluded
	tuples, err := saver.List(ctx, checkpoint.ListOptions{
		Ref:    &checkpoint.Ref{ThreadID: "t1"},
		Before: "2024-01-01T00:00:10Z",
	})
	require.NoError(t, err)
	require.Len(t, tuples, 2)
	assert.Equal(t, "2024-01-01T00:00:05Z", tuples[0].Ref.CheckpointID)
	assert.Equal(t, "2024-01-01T00:00:00Z", tuples[1].Ref.CheckpointID)

	// Limit applies after the cursor
	tuples, err = saver.List(ctx, checkpoint.ListOptions{
		Ref:    &checkpoint.Ref{ThreadID: "t1"},
		Before: "2024-01-01T00:00:10Z",
		Limit:  1,
	})
	require.NoError(t, err)
	require.Len(t, tuples, 1)
	assert.Equal(t, "2024-01-01T00:00:05Z", tuples[0].Ref.CheckpointID)
}

func TestSaver_ListMetadataFilter(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	parent := checkpoint.Ref{ThreadID: "t1"}
	parent = putCheckpoint(t, saver, parent, "2024-01-01T00:00:00Z", v1(), map[string]any{"messages": []any{"a"}},
		checkpoint.Metadata{"source": "input", "step": 1})
	putCheckpoint(t, saver, parent, "2024-01-01T00:00:05Z", v1(), map[string]any{"messages": []any{"b"}},
		checkpoint.Metadata{"source": "loop", "step": 2})

	// String filter
	tuples, err := saver.List(ctx, checkpoint.ListOptions{
		Ref:    &checkpoint.Ref{ThreadID: "t1"},
		Filter: checkpoint.Metadata{"source": "loop"},
	})
	require.NoError(t, err)
	require.Len(t, tuples, 1)
	assert.Equal(t, "2024-01-01T00:00:05Z", tuples[0].Ref.CheckpointID)

	// Numeric filter matches through the codec's float64 decoding
	tuples, err = saver.List(ctx, checkpoint.ListOptions{
		Ref:    &checkpoint.Ref{ThreadID: "t1"},
		Filter: checkpoint.Metadata{"step": 1},
	})
	require.NoError(t, err)
	require.Len(t, tuples, 1)
	assert.Equal(t, "2024-01-01T00:00:00Z", tuples[0].Ref.CheckpointID)

	// Non-matching filter yields nothing
	tuples, err = saver.List(ctx, checkpoint.ListOptions{
		Ref:    &checkpoint.Ref{ThreadID: "t1"},
		Filter: checkpoint.Metadata{"source": "replay"},
	})
	require.NoError(t, err)
	assert.Empty(t, tuples)

	// The limit counts yielded records only: the newest checkpoint fails
	// the filter and must not consume the single slot
	tuples, err = saver.List(ctx, checkpoint.ListOptions{
		Ref:    &checkpoint.Ref{ThreadID: "t1"},
		Filter: checkpoint.Metadata{"source": "input"},
		Limit:  1,
	})
	require.NoError(t, err)
	require.Len(t, tuples, 1)
	assert.Equal(t, "2024-01-01T00:00:00Z", tuples[0].Ref.CheckpointID)
}

func TestSaver_NamespaceIsolation(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1"}, "2024-01-01T00:00:00Z", v1(), map[string]any{"messages": []any{"default"}}, nil)
	putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1", Namespace: "inner"}, "2024-01-01T00:00:05Z", v1(), map[string]any{"messages": []any{"inner"}}, nil)

	tuple, err := saver.GetTuple(ctx, checkpoint.Ref{ThreadID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00Z", tuple.Ref.CheckpointID)

	tuple, err = saver.GetTuple(ctx, checkpoint.Ref{ThreadID: "t1", Namespace: "inner"})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:05Z", tuple.Ref.CheckpointID)
}

func TestSaver_DeleteThread(t *testing.T) {
	saver, client := newTestSaver(t)
	ctx := context.Background()

	ref1 := putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1"}, checkpoint.NewID(), v1(), map[string]any{"messages": []any{"a"}}, nil)
	require.NoError(t, saver.PutWrites(ctx, ref1, "task-1", "", []checkpoint.ChannelWrite{
		{Channel: "messages", Value: "pending"},
	}))
	putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t2"}, checkpoint.NewID(), v1(), map[string]any{"messages": []any{"b"}}, nil)

	require.NoError(t, saver.DeleteThread(ctx, "t1"))

	// Every t1 document is gone from all three collections
	_, err := saver.GetTuple(ctx, checkpoint.Ref{ThreadID: "t1"})
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	for _, collection := range []string{"checkpoints", "blobs", "writes"} {
		docs, err := client.Query(ctx, docstore.Query{
			Collection: collection,
			Filters: []docstore.Filter{
				{Field: "thread_id", Value: docstore.String("t1")},
			},
		})
		require.NoError(t, err)
		assert.Empty(t, docs, "collection %s", collection)
	}

	// Other threads are untouched
	_, err = saver.GetTuple(ctx, checkpoint.Ref{ThreadID: "t2"})
	assert.NoError(t, err)
}

func TestSaver_DeleteUnknownThread(t *testing.T) {
	saver, _ := newTestSaver(t)
	assert.NoError(t, saver.DeleteThread(context.Background(), "never-existed"))
}

func TestSaver_CustomCollections(t *testing.T) {
	client := docstore.NewMemoryClient()
	defer client.Close()

	saver := checkpoint.New(client, checkpoint.WithCollections(checkpoint.Collections{
		Checkpoints: "cp",
		Blobs:       "bl",
		Writes:      "wr",
	}))

	putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "t1"}, checkpoint.NewID(), v1(), map[string]any{"messages": []any{"a"}}, nil)
	assert.Equal(t, 1, client.Len("cp"))
	assert.Equal(t, 1, client.Len("bl"))
	assert.Equal(t, 0, client.Len("checkpoints"))
}

func TestSaver_ThreadIDWithSlash(t *testing.T) {
	saver, _ := newTestSaver(t)
	ctx := context.Background()

	// Path separators in ids must not break document addressing
	ref := putCheckpoint(t, saver, checkpoint.Ref{ThreadID: "user/42"}, checkpoint.NewID(), v1(), map[string]any{"messages": []any{"a"}}, nil)

	tuple, err := saver.GetTuple(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "user/42", tuple.Ref.ThreadID)
}
