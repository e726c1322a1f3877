package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagesnap/config"
)

// version is set during build with -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pagesnap",
		Short: "Capture web pages as self-contained HTML snapshots",
		Long: `pagesnap drives a Chromium browser that saves each requested URL as a
self-contained HTML file, ties every URL to the file it produced and returns
the files as base64(gzip(html)).

Configuration comes from PAGESNAP_* environment variables, optionally
layered over a YAML file named by PAGESNAP_CONFIG.`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{printf "pagesnap version %s\n" .Version}}`)
	root.AddCommand(newServeCmd(), newRunCmd(), newDecodeCmd())
	return root
}

// loadConfig reads configuration and installs the default logger writing
// to w.
func loadConfig(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	initLogger(cfg.Log, w)
	return cfg, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}
