package docstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/docstore"
	errs "github.com/epirlabs/bqanalyst/pkg/bqanalyst/errors"
)

// flakyClient fails the first failures calls of each method with a
// transient error, then delegates to an in-memory store.
type flakyClient struct {
	*docstore.MemoryClient
	failures int
	calls    int
}

func (f *flakyClient) transientErr() error {
	f.calls++
	if f.calls <= f.failures {
		return errs.Transient(assert.AnError, "simulated outage")
	}
	return nil
}

func (f *flakyClient) Get(ctx context.Context, collection, id string) (docstore.Fields, error) {
	if err := f.transientErr(); err != nil {
		return nil, err
	}
	return f.MemoryClient.Get(ctx, collection, id)
}

func (f *flakyClient) Upsert(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if err := f.transientErr(); err != nil {
		return err
	}
	return f.MemoryClient.Upsert(ctx, collection, id, fields)
}

func fastRetry(attempts int) errs.RetryConfig {
	return errs.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestRetryingClient_RetriesTransient(t *testing.T) {
	inner := &flakyClient{MemoryClient: docstore.NewMemoryClient(), failures: 2}
	client := docstore.NewRetryingClient(inner, fastRetry(3))
	ctx := context.Background()

	err := client.Upsert(ctx, "col", "doc", docstore.Fields{"v": docstore.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingClient_ExhaustsAttempts(t *testing.T) {
	inner := &flakyClient{MemoryClient: docstore.NewMemoryClient(), failures: 10}
	client := docstore.NewRetryingClient(inner, fastRetry(3))

	err := client.Upsert(context.Background(), "col", "doc", docstore.Fields{})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingClient_NotFoundPassesThrough(t *testing.T) {
	inner := &flakyClient{MemoryClient: docstore.NewMemoryClient()}
	client := docstore.NewRetryingClient(inner, fastRetry(3))

	_, err := client.Get(context.Background(), "col", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingClient_AlreadyExistsPassesThrough(t *testing.T) {
	mem := docstore.NewMemoryClient()
	client := docstore.NewRetryingClient(mem, fastRetry(3))
	ctx := context.Background()

	require.NoError(t, client.Create(ctx, "col", "doc", docstore.Fields{}))
	err := client.Create(ctx, "col", "doc", docstore.Fields{})
	assert.ErrorIs(t, err, docstore.ErrAlreadyExists)
}
