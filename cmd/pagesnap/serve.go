package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagesnap/api"
	"github.com/use-agent/pagesnap/browser"
	"github.com/use-agent/pagesnap/snapshot"
)

// shutdownGrace is how long in-flight requests get after a signal.
const shutdownGrace = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Launches the browser and serves:

  POST /api/v1/snapshots   capture a batch of URLs
  GET  /api/v1/health      liveness and batch status

Batches run one at a time; concurrent requests queue.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}
	slog.Info("pagesnap starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"downloadRoot", cfg.Batch.DownloadRoot,
	)

	br, err := browser.New(cfg.Browser)
	if err != nil {
		return fmt.Errorf("failed to initialise browser: %w", err)
	}
	// Runs after the server has drained: waits for captures, kills Chrome.
	defer br.Close()

	svc := snapshot.NewService(br, cfg)

	startTime := time.Now()
	router := api.NewRouter(svc, br.Mode(), cfg, startTime)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("pagesnap stopped")
	return nil
}
