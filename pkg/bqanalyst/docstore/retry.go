package docstore

import (
	"context"
	"errors"

	errs "github.com/epirlabs/bqanalyst/pkg/bqanalyst/errors"
)

// RetryingClient decorates a Client with bounded retry for transient
// failures. Absence and conflict outcomes (ErrNotFound, ErrAlreadyExists)
// are valid results, never retried, and pass through unchanged.
//
// Retry lives here, at the document store boundary, because the store is
// eventually consistent and callers operate in a retry-tolerant
// orchestration loop.
type RetryingClient struct {
	next Client
	cfg  errs.RetryConfig
}

// NewRetryingClient wraps next with the given retry configuration.
func NewRetryingClient(next Client, cfg errs.RetryConfig) *RetryingClient {
	cfg.RetryableFunc = retryable
	return &RetryingClient{next: next, cfg: cfg}
}

// retryable reports whether a store error is worth another attempt.
func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrClientClosed) {
		return false
	}
	return errs.IsRetryable(err)
}

// Get implements Client.
func (r *RetryingClient) Get(ctx context.Context, collection, id string) (Fields, error) {
	res := errs.WithRetryContext(ctx, r.cfg, func(ctx context.Context) (Fields, error) {
		return r.next.Get(ctx, collection, id)
	})
	return res.Value, res.Err
}

// Query implements Client.
func (r *RetryingClient) Query(ctx context.Context, q Query) ([]Document, error) {
	res := errs.WithRetryContext(ctx, r.cfg, func(ctx context.Context) ([]Document, error) {
		return r.next.Query(ctx, q)
	})
	return res.Value, res.Err
}

// Upsert implements Client.
func (r *RetryingClient) Upsert(ctx context.Context, collection, id string, fields Fields) error {
	res := errs.WithRetryContext(ctx, r.cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.Upsert(ctx, collection, id, fields)
	})
	return res.Err
}

// Create implements Client.
func (r *RetryingClient) Create(ctx context.Context, collection, id string, fields Fields) error {
	res := errs.WithRetryContext(ctx, r.cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.Create(ctx, collection, id, fields)
	})
	return res.Err
}

// Delete implements Client.
func (r *RetryingClient) Delete(ctx context.Context, collection, id string) error {
	res := errs.WithRetryContext(ctx, r.cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.Delete(ctx, collection, id)
	})
	return res.Err
}

// Close implements Client.
func (r *RetryingClient) Close() error {
	return r.next.Close()
}
