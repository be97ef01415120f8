package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/docstore"
)

// blobStore persists versioned channel values. Blobs are immutable once
// written for a given (thread, ns, channel, version) key; writes are
// idempotent upserts.
type blobStore struct {
	client     docstore.Client
	collection string
	codec      Codec
}

// put writes one channel blob.
func (s *blobStore) put(ctx context.Context, thread, ns, channel, version, blobType string, blobData []byte) error {
	fields := docstore.Fields{
		"thread_id":     docstore.String(thread),
		"checkpoint_ns": docstore.String(ns),
		"channel":       docstore.String(channel),
		"version":       docstore.String(version),
		"blob_type":     docstore.String(blobType),
		"blob_data":     docstore.Bytes(blobData),
	}
	id := blobKey(thread, ns, channel, version)
	if err := s.client.Upsert(ctx, s.collection, id, fields); err != nil {
		return fmt.Errorf("put blob %s: %w", id, err)
	}
	return nil
}

// loadAll fetches and decodes the blob for every (channel, version) pair.
// A missing blob is not an error: the channel is simply absent from the
// result, which the engine reads as "no value yet". Blobs tagged
// BlobTypeEmpty are skipped the same way.
func (s *blobStore) loadAll(ctx context.Context, thread, ns string, versions ChannelVersions) (map[string]any, error) {
	values := make(map[string]any, len(versions))
	for channel, version := range versions {
		id := blobKey(thread, ns, channel, version)
		fields, err := s.client.Get(ctx, s.collection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load blob %s: %w", id, err)
		}

		blobType := fields["blob_type"].StringVal()
		if blobType == "" || blobType == BlobTypeEmpty {
			continue
		}
		var value any
		if err := s.codec.Decode(blobType, fields["blob_data"].BytesVal(), &value); err != nil {
			return nil, fmt.Errorf("decode blob %s: %w", id, err)
		}
		values[channel] = value
	}
	return values, nil
}
