package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/docstore"
)

// recordStore persists the checkpoint metadata+payload envelope.
type recordStore struct {
	client     docstore.Client
	collection string
	codec      Codec
}

// record is one decoded checkpoint envelope. The checkpoint carries no
// channel values; materializing those is the blob store's job.
type record struct {
	thread     string
	ns         string
	id         string
	parentID   string
	checkpoint *Checkpoint
	metadata   Metadata
}

// put upserts the checkpoint record. Callers must have durably written
// every blob referenced by the checkpoint's channel versions first; a
// reader must never observe a record whose blobs are missing.
func (s *recordStore) put(ctx context.Context, thread, ns string, cp *Checkpoint, md Metadata, parentID string) error {
	body := *cp
	body.ChannelValues = nil
	cpType, cpData, err := s.codec.Encode(&body)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", cp.ID, err)
	}
	mdType, mdData, err := s.codec.Encode(md)
	if err != nil {
		return fmt.Errorf("encode checkpoint metadata %s: %w", cp.ID, err)
	}

	parent := docstore.Null()
	if parentID != "" {
		parent = docstore.String(parentID)
	}
	fields := docstore.Fields{
		"thread_id":            docstore.String(thread),
		"checkpoint_ns":        docstore.String(ns),
		"checkpoint_id":        docstore.String(cp.ID),
		"checkpoint_type":      docstore.String(cpType),
		"checkpoint_data":      docstore.Bytes(cpData),
		"metadata_type":        docstore.String(mdType),
		"metadata_data":        docstore.Bytes(mdData),
		"parent_checkpoint_id": parent,
	}

	id := checkpointKey(thread, ns, cp.ID)
	if err := s.client.Upsert(ctx, s.collection, id, fields); err != nil {
		return fmt.Errorf("put checkpoint %s: %w", id, err)
	}
	return nil
}

// getExact fetches one checkpoint record by id.
func (s *recordStore) getExact(ctx context.Context, thread, ns, checkpointID string) (*record, error) {
	fields, err := s.client.Get(ctx, s.collection, checkpointKey(thread, ns, checkpointID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", checkpointID, err)
	}
	return s.decode(fields)
}

// getLatest fetches the newest checkpoint for a thread/namespace.
// Relies on checkpoint ids sorting lexically in creation order.
func (s *recordStore) getLatest(ctx context.Context, thread, ns string) (*record, error) {
	docs, err := s.client.Query(ctx, docstore.Query{
		Collection: s.collection,
		Filters: []docstore.Filter{
			{Field: "thread_id", Value: docstore.String(thread)},
			{Field: "checkpoint_ns", Value: docstore.String(ns)},
		},
		OrderBy:    "checkpoint_id",
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("query latest checkpoint: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return s.decode(docs[0].Fields)
}

// list returns checkpoint records newest-first. With a nil ref it scans
// the whole collection (administrative listing, not the hot path).
//
// before excludes any record whose id sorts at or after it. filter matches
// against decoded metadata client-side, since the store cannot filter on
// opaque serialized payloads. limit bounds yielded records and is applied
// after filtering.
func (s *recordStore) list(ctx context.Context, ref *Ref, before string, filter Metadata, limit int) ([]*record, error) {
	q := docstore.Query{
		Collection: s.collection,
		OrderBy:    "checkpoint_id",
		Descending: true,
	}
	if ref != nil {
		q.Filters = []docstore.Filter{
			{Field: "thread_id", Value: docstore.String(ref.ThreadID)},
			{Field: "checkpoint_ns", Value: docstore.String(ref.Namespace)},
		}
	}
	docs, err := s.client.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}

	normalized := normalizeMetadataFilter(filter)
	var records []*record
	for _, doc := range docs {
		id := doc.Fields["checkpoint_id"].StringVal()
		if before != "" && id >= before {
			continue
		}
		rec, err := s.decode(doc.Fields)
		if err != nil {
			return nil, err
		}
		if !matchesMetadata(rec.metadata, normalized) {
			continue
		}
		records = append(records, rec)
		if limit > 0 && len(records) >= limit {
			break
		}
	}
	return records, nil
}

// decode turns a stored field map back into a record.
func (s *recordStore) decode(fields docstore.Fields) (*record, error) {
	rec := &record{
		thread:   fields["thread_id"].StringVal(),
		ns:       fields["checkpoint_ns"].StringVal(),
		id:       fields["checkpoint_id"].StringVal(),
		parentID: fields["parent_checkpoint_id"].StringVal(),
	}

	var cp Checkpoint
	if err := s.codec.Decode(fields["checkpoint_type"].StringVal(), fields["checkpoint_data"].BytesVal(), &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", rec.id, err)
	}
	rec.checkpoint = &cp

	var md Metadata
	if err := s.codec.Decode(fields["metadata_type"].StringVal(), fields["metadata_data"].BytesVal(), &md); err != nil {
		return nil, fmt.Errorf("decode checkpoint metadata %s: %w", rec.id, err)
	}
	rec.metadata = md
	return rec, nil
}

// normalizeMetadataFilter round-trips filter values through JSON so they
// compare cleanly against codec-decoded metadata (e.g. int vs float64).
func normalizeMetadataFilter(filter Metadata) Metadata {
	if len(filter) == 0 {
		return nil
	}
	out := make(Metadata, len(filter))
	for k, v := range filter {
		data, err := json.Marshal(v)
		if err != nil {
			out[k] = v
			continue
		}
		var normalized any
		if err := json.Unmarshal(data, &normalized); err != nil {
			out[k] = v
			continue
		}
		out[k] = normalized
	}
	return out
}

// matchesMetadata reports whether metadata satisfies every filter entry.
func matchesMetadata(md, filter Metadata) bool {
	for k, want := range filter {
		got, ok := md[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
