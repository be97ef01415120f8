package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/docstore"
)

// Well-known channels with reserved write slots. A task writes these at
// most once per checkpoint, so their slot index is fixed rather than
// positional and a second write overwrites the first.
const (
	ChannelTasks     = "__tasks__"
	ChannelError     = "__error__"
	ChannelInterrupt = "__interrupt__"
	ChannelResume    = "__resume__"
)

// DefaultReservedSlots maps well-known channel names to negative sentinel
// slot indices. The sign of the resolved slot selects write semantics:
// negative slots upsert, non-negative slots create once.
var DefaultReservedSlots = map[string]int{
	ChannelTasks:     -1,
	ChannelError:     -2,
	ChannelInterrupt: -3,
	ChannelResume:    -4,
}

// writeStore persists uncommitted per-task channel writes.
type writeStore struct {
	client     docstore.Client
	collection string
	codec      Codec
	reserved   map[string]int
}

// putMany stores one task's writes against the checkpoint they will apply
// on top of. Writes on reserved slots are upserted; positional writes are
// create-once, and a duplicate create is swallowed as a successful no-op
// so concurrent task completions stay idempotent.
func (s *writeStore) putMany(ctx context.Context, ref Ref, taskID, taskPath string, writes []ChannelWrite) error {
	for idx, w := range writes {
		slot := idx
		if reserved, ok := s.reserved[w.Channel]; ok {
			slot = reserved
		}

		valueType, valueData, err := s.codec.Encode(w.Value)
		if err != nil {
			return fmt.Errorf("encode write %s[%d]: %w", taskID, idx, err)
		}
		fields := docstore.Fields{
			"thread_id":     docstore.String(ref.ThreadID),
			"checkpoint_ns": docstore.String(ref.Namespace),
			"checkpoint_id": docstore.String(ref.CheckpointID),
			"task_id":       docstore.String(taskID),
			"task_path":     docstore.String(taskPath),
			"idx":           docstore.Int(int64(slot)),
			"channel":       docstore.String(w.Channel),
			"value_type":    docstore.String(valueType),
			"value_data":    docstore.Bytes(valueData),
		}
		id := writeKey(ref.ThreadID, ref.Namespace, ref.CheckpointID, taskID, slot)

		if slot >= 0 {
			err = s.client.Create(ctx, s.collection, id, fields)
			if errors.Is(err, docstore.ErrAlreadyExists) {
				continue
			}
		} else {
			err = s.client.Upsert(ctx, s.collection, id, fields)
		}
		if err != nil {
			return fmt.Errorf("put write %s: %w", id, err)
		}
	}
	return nil
}

// listForCheckpoint returns every pending write stored against the exact
// checkpoint id. Order across tasks is unspecified; within one task,
// distinct slot ids preserve the task's own emission order.
func (s *writeStore) listForCheckpoint(ctx context.Context, thread, ns, checkpointID string) ([]PendingWrite, error) {
	docs, err := s.client.Query(ctx, docstore.Query{
		Collection: s.collection,
		Filters: []docstore.Filter{
			{Field: "thread_id", Value: docstore.String(thread)},
			{Field: "checkpoint_ns", Value: docstore.String(ns)},
			{Field: "checkpoint_id", Value: docstore.String(checkpointID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query pending writes: %w", err)
	}

	writes := make([]PendingWrite, 0, len(docs))
	for _, doc := range docs {
		var value any
		if err := s.codec.Decode(doc.Fields["value_type"].StringVal(), doc.Fields["value_data"].BytesVal(), &value); err != nil {
			return nil, fmt.Errorf("decode pending write %s: %w", doc.ID, err)
		}
		writes = append(writes, PendingWrite{
			TaskID:  doc.Fields["task_id"].StringVal(),
			Channel: doc.Fields["channel"].StringVal(),
			Value:   value,
		})
	}
	return writes, nil
}
