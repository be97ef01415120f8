package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/docstore"
	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/observability"
)

// Collections names the three document collections backing a Saver.
type Collections struct {
	Checkpoints string
	Blobs       string
	Writes      string
}

// DefaultCollections are the default collection names.
var DefaultCollections = Collections{
	Checkpoints: "checkpoints",
	Blobs:       "blobs",
	Writes:      "writes",
}

// Saver composes the blob, record, and write stores into the operations
// the execution loop needs.
//
// The saver provides no mutual exclusion across concurrent writers to the
// same thread: two concurrent Put calls naming the same parent both
// succeed and silently fork the lineage. Single-writer-per-thread is a
// precondition the engine must enforce.
type Saver struct {
	client  docstore.Client
	codec   Codec
	blobs   *blobStore
	records *recordStore
	writes  *writeStore

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// Option configures a Saver.
type Option func(*saverConfig)

type saverConfig struct {
	codec       Codec
	collections Collections
	reserved    map[string]int
	logger      *slog.Logger
	metrics     observability.MetricsRecorder
	spans       observability.SpanManager
}

// WithCodec sets the value codec. Defaults to JSONCodec.
func WithCodec(c Codec) Option {
	return func(cfg *saverConfig) { cfg.codec = c }
}

// WithCollections overrides the backing collection names.
func WithCollections(c Collections) Option {
	return func(cfg *saverConfig) { cfg.collections = c }
}

// WithReservedSlots overrides the reserved channel slot map.
func WithReservedSlots(m map[string]int) Option {
	return func(cfg *saverConfig) { cfg.reserved = m }
}

// WithLogger enables structured logging of saver operations.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *saverConfig) { cfg.logger = l }
}

// WithMetrics enables metrics recording.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(cfg *saverConfig) { cfg.metrics = m }
}

// WithSpans enables tracing.
func WithSpans(s observability.SpanManager) Option {
	return func(cfg *saverConfig) { cfg.spans = s }
}

// New creates a Saver over the given document store client.
func New(client docstore.Client, opts ...Option) *Saver {
	cfg := saverConfig{
		codec:       JSONCodec{},
		collections: DefaultCollections,
		reserved:    DefaultReservedSlots,
		metrics:     observability.NoopMetrics{},
		spans:       observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Saver{
		client: client,
		codec:  cfg.codec,
		blobs: &blobStore{
			client:     client,
			collection: cfg.collections.Blobs,
			codec:      cfg.codec,
		},
		records: &recordStore{
			client:     client,
			collection: cfg.collections.Checkpoints,
			codec:      cfg.codec,
		},
		writes: &writeStore{
			client:     client,
			collection: cfg.collections.Writes,
			codec:      cfg.codec,
			reserved:   cfg.reserved,
		},
		logger:  cfg.logger,
		metrics: cfg.metrics,
		spans:   cfg.spans,
	}
}

// GetTuple fetches one fully assembled checkpoint tuple.
// With an empty ref.CheckpointID it resolves the latest checkpoint of the
// thread/namespace. Returns ErrNotFound when the thread has no checkpoint.
func (s *Saver) GetTuple(ctx context.Context, ref Ref) (_ *Tuple, err error) {
	ctx, span := s.spans.StartSaverSpan(ctx, "get_tuple", ref.ThreadID)
	defer func() { s.spans.EndSpanWithError(span, err) }()
	start := time.Now()
	defer func() { s.metrics.RecordSaverOp(ctx, "get_tuple", time.Since(start), err) }()

	var rec *record
	if ref.CheckpointID != "" {
		rec, err = s.records.getExact(ctx, ref.ThreadID, ref.Namespace, ref.CheckpointID)
	} else {
		rec, err = s.records.getLatest(ctx, ref.ThreadID, ref.Namespace)
	}
	if err != nil {
		return nil, err
	}

	values, err := s.blobs.loadAll(ctx, rec.thread, rec.ns, rec.checkpoint.ChannelVersions)
	if err != nil {
		return nil, err
	}
	rec.checkpoint.ChannelValues = values

	pending, err := s.writes.listForCheckpoint(ctx, rec.thread, rec.ns, rec.id)
	if err != nil {
		return nil, err
	}

	tuple := s.assemble(rec)
	tuple.PendingWrites = pending
	observability.LogCheckpointLoad(s.logger, rec.id, len(values), len(pending))
	return tuple, nil
}

// ListOptions selects which checkpoints List yields.
type ListOptions struct {
	// Ref names the thread and namespace to list; its CheckpointID is
	// ignored. A nil Ref scans every thread (administrative listing).
	Ref *Ref

	// Filter matches against decoded checkpoint metadata.
	Filter Metadata

	// Before excludes checkpoints at or after the given id (strict
	// historical cursor).
	Before string

	// Limit bounds yielded tuples, applied after metadata filtering.
	Limit int
}

// List returns checkpoint tuples newest-first. Pending writes are
// intentionally not populated: history traversal is for inspection, not
// resumption. Channel values are materialized only for yielded records.
func (s *Saver) List(ctx context.Context, opts ListOptions) (_ []*Tuple, err error) {
	thread := ""
	if opts.Ref != nil {
		thread = opts.Ref.ThreadID
	}
	ctx, span := s.spans.StartSaverSpan(ctx, "list", thread)
	defer func() { s.spans.EndSpanWithError(span, err) }()
	start := time.Now()
	defer func() { s.metrics.RecordSaverOp(ctx, "list", time.Since(start), err) }()

	records, err := s.records.list(ctx, opts.Ref, opts.Before, opts.Filter, opts.Limit)
	if err != nil {
		return nil, err
	}

	tuples := make([]*Tuple, 0, len(records))
	for _, rec := range records {
		values, err := s.blobs.loadAll(ctx, rec.thread, rec.ns, rec.checkpoint.ChannelVersions)
		if err != nil {
			return nil, err
		}
		rec.checkpoint.ChannelValues = values
		tuples = append(tuples, s.assemble(rec))
	}
	return tuples, nil
}

// Put commits a checkpoint. Channel values for newVersions are written as
// blobs first; channels named in newVersions but absent from the value map
// get an "empty" sentinel blob so the version history stays complete. Only
// after every blob is durable is the checkpoint record written, so a
// partial failure fails on the safe side: a missing record, never a
// committed record referencing missing blob data.
//
// ref.CheckpointID names the parent this checkpoint chains onto; empty for
// the first checkpoint of a thread/namespace. The returned Ref carries the
// new checkpoint id.
func (s *Saver) Put(ctx context.Context, ref Ref, cp *Checkpoint, md Metadata, newVersions ChannelVersions) (_ Ref, err error) {
	ctx, span := s.spans.StartSaverSpan(ctx, "put", ref.ThreadID)
	defer func() { s.spans.EndSpanWithError(span, err) }()
	start := time.Now()
	defer func() { s.metrics.RecordSaverOp(ctx, "put", time.Since(start), err) }()

	// Deterministic blob write order keeps partial failures reproducible.
	channels := make([]string, 0, len(newVersions))
	for channel := range newVersions {
		channels = append(channels, channel)
	}
	sort.Strings(channels)

	sizeBytes := 0
	for _, channel := range channels {
		blobType, blobData := BlobTypeEmpty, []byte(nil)
		if value, ok := cp.ChannelValues[channel]; ok {
			blobType, blobData, err = s.codec.Encode(value)
			if err != nil {
				return Ref{}, fmt.Errorf("encode channel %q: %w", channel, err)
			}
		}
		if err = s.blobs.put(ctx, ref.ThreadID, ref.Namespace, channel, newVersions[channel], blobType, blobData); err != nil {
			return Ref{}, err
		}
		sizeBytes += len(blobData)
	}

	if err = s.records.put(ctx, ref.ThreadID, ref.Namespace, cp, md, ref.CheckpointID); err != nil {
		return Ref{}, err
	}

	s.metrics.RecordCheckpointPut(ctx, len(channels), int64(sizeBytes))
	observability.LogCheckpointPut(s.logger, cp.ID, len(channels), sizeBytes)

	return Ref{
		ThreadID:     ref.ThreadID,
		Namespace:    ref.Namespace,
		CheckpointID: cp.ID,
	}, nil
}

// PutWrites stores one task's channel writes against the checkpoint named
// by ref. Duplicate deliveries are deduplicated per slot; see writeStore.
func (s *Saver) PutWrites(ctx context.Context, ref Ref, taskID, taskPath string, writes []ChannelWrite) (err error) {
	ctx, span := s.spans.StartSaverSpan(ctx, "put_writes", ref.ThreadID)
	defer func() { s.spans.EndSpanWithError(span, err) }()
	start := time.Now()
	defer func() { s.metrics.RecordSaverOp(ctx, "put_writes", time.Since(start), err) }()

	if err = s.writes.putMany(ctx, ref, taskID, taskPath, writes); err != nil {
		return err
	}
	s.metrics.RecordPendingWrites(ctx, len(writes))
	observability.LogPendingWrites(s.logger, ref.CheckpointID, taskID, len(writes))
	return nil
}

// DeleteThread removes every checkpoint, blob, and write belonging to the
// thread. The three collections are cleared concurrently and the deletion
// is not atomic across them: a failure can leave a partially deleted
// thread, which a retry completes.
func (s *Saver) DeleteThread(ctx context.Context, threadID string) (err error) {
	ctx, span := s.spans.StartSaverSpan(ctx, "delete_thread", threadID)
	defer func() { s.spans.EndSpanWithError(span, err) }()
	start := time.Now()
	defer func() { s.metrics.RecordSaverOp(ctx, "delete_thread", time.Since(start), err) }()

	collections := []string{
		s.records.collection,
		s.blobs.collection,
		s.writes.collection,
	}

	var deleted atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	for _, collection := range collections {
		g.Go(func() error {
			docs, err := s.client.Query(ctx, docstore.Query{
				Collection: collection,
				Filters: []docstore.Filter{
					{Field: "thread_id", Value: docstore.String(threadID)},
				},
			})
			if err != nil {
				return fmt.Errorf("query %s for deletion: %w", collection, err)
			}
			for _, doc := range docs {
				if err := s.client.Delete(ctx, collection, doc.ID); err != nil {
					return fmt.Errorf("delete %s/%s: %w", collection, doc.ID, err)
				}
				deleted.Add(1)
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return err
	}

	observability.LogThreadDeleted(s.logger, threadID, int(deleted.Load()))
	return nil
}

// assemble builds the tuple shape from a decoded record.
func (s *Saver) assemble(rec *record) *Tuple {
	tuple := &Tuple{
		Ref: Ref{
			ThreadID:     rec.thread,
			Namespace:    rec.ns,
			CheckpointID: rec.id,
		},
		Checkpoint: rec.checkpoint,
		Metadata:   rec.metadata,
	}
	if rec.parentID != "" {
		tuple.ParentRef = &Ref{
			ThreadID:     rec.thread,
			Namespace:    rec.ns,
			CheckpointID: rec.parentID,
		}
	}
	return tuple
}
