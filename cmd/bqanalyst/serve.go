package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analyst HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := newAnalystApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", app.settings.Port),
			Handler: httpapi.NewServer(app.analyst, app.logger),
		}

		errCh := make(chan error, 1)
		go func() {
			app.logger.Info("http server started", slog.Int("port", app.settings.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		app.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
