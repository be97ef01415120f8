package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst"
	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/bq"
	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/checkpoint"
	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/config"
	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/docstore"
	errs "github.com/epirlabs/bqanalyst/pkg/bqanalyst/errors"
	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/observability"
)

// app holds the wired service components for one CLI invocation.
type app struct {
	settings config.Settings
	logger   *slog.Logger
	store    docstore.Client
	saver    *checkpoint.Saver

	// analyst and bqClient are set only when the invocation needs the
	// model loop; history and deletion run on the saver alone.
	analyst  *bqanalyst.Analyst
	bqClient *bq.Client
}

// newStorageApp wires settings, logging, and the checkpoint store.
func newStorageApp(ctx context.Context) (*app, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: settings.SlogLevel(),
	}))

	store, err := openStore(ctx, settings)
	if err != nil {
		return nil, err
	}

	saver := checkpoint.New(
		docstore.NewRetryingClient(store, errs.DefaultRetry),
		checkpoint.WithCollections(checkpoint.Collections{
			Checkpoints: settings.CheckpointsCollection,
			Blobs:       settings.BlobsCollection,
			Writes:      settings.WritesCollection,
		}),
		checkpoint.WithLogger(logger),
		checkpoint.WithMetrics(observability.NewMetricsRecorder()),
		checkpoint.WithSpans(observability.NewSpanManager()),
	)

	return &app{
		settings: settings,
		logger:   logger,
		store:    store,
		saver:    saver,
	}, nil
}

// newAnalystApp wires the full stack including BigQuery and the model.
func newAnalystApp(ctx context.Context) (*app, error) {
	a, err := newStorageApp(ctx)
	if err != nil {
		return nil, err
	}

	bqClient, err := bq.NewClient(ctx, a.settings.ProjectID)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}
	a.bqClient = bqClient

	llm := bqanalyst.NewAnthropicLLM(a.settings.Model, a.settings.Temperature, a.settings.MaxOutputTokens)
	a.analyst = bqanalyst.NewAnalyst(
		llm,
		bq.NewTools(bqClient, a.settings.MaxRows),
		a.saver,
		bqanalyst.WithRecursionLimit(a.settings.RecursionLimit),
		bqanalyst.WithLogger(a.logger),
		bqanalyst.WithMetrics(observability.NewMetricsRecorder()),
		bqanalyst.WithSpans(observability.NewSpanManager()),
	)
	return a, nil
}

// openStore creates the document store backend named by the settings.
func openStore(ctx context.Context, settings config.Settings) (docstore.Client, error) {
	switch settings.Backend {
	case config.BackendMemory:
		return docstore.NewMemoryClient(), nil
	case config.BackendSQLite:
		return docstore.NewSQLiteClient(settings.SQLitePath)
	case config.BackendFirestore:
		return docstore.NewFirestoreClient(ctx, settings.ProjectID, settings.FirestoreDatabase)
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", settings.Backend)
	}
}

// Close releases the app's external resources.
func (a *app) Close() {
	if a.bqClient != nil {
		if err := a.bqClient.Close(); err != nil {
			a.logger.Warn("close bigquery client", slog.String("error", err.Error()))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close document store", slog.String("error", err.Error()))
		}
	}
}
