package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/pagesnap/browser"
	"github.com/use-agent/pagesnap/snapshot"
)

type runOptions struct {
	timeout time.Duration
	output  string
	keep    bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run URL...",
		Short: "Capture one batch and print the mapping as JSON",
		Long: `Captures the given URLs in a single batch and writes the response
(url_mappings plus stats) as JSON. Logs go to stderr.

URLs that could not be captured before the timeout appear with an error
entry; the command still succeeds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), opts, args)
		},
	}
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "batch deadline (default from PAGESNAP_DEFAULT_TIMEOUT)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "write the JSON here instead of stdout")
	cmd.Flags().BoolVar(&opts.keep, "keep", false, "leave the batch directory on disk")
	return cmd
}

func runBatch(ctx context.Context, opts *runOptions, urls []string) error {
	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}
	if opts.keep {
		cfg.Batch.KeepFiles = true
	}
	if err := snapshot.ValidateURLs(urls, cfg.Batch.MaxURLs); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	br, err := browser.New(cfg.Browser)
	if err != nil {
		return fmt.Errorf("failed to initialise browser: %w", err)
	}
	defer br.Close()

	resp, err := snapshot.NewService(br, cfg).Run(ctx, urls, opts.timeout)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if opts.output != "-" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
