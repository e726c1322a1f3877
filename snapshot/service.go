// Package snapshot runs capture batches: it owns the per-batch download
// directory, triggers the browser and reconciles what it writes.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/pagesnap/config"
	"github.com/use-agent/pagesnap/models"
	"github.com/use-agent/pagesnap/reconcile"
)

// Navigator starts capturing urls into dir. It returns once capture has
// been triggered; files appear in dir asynchronously.
type Navigator interface {
	Save(ctx context.Context, dir string, urls []string) error
}

// drainer is implemented by navigators whose captures outlive Save.
type drainer interface {
	Drain()
}

// Service runs one batch at a time: the browser's download directory is
// global, so concurrent batches would write into each other's directories.
type Service struct {
	nav   Navigator
	batch config.BatchConfig
	rec   *reconcile.Reconciler

	mu     sync.Mutex
	active atomic.Bool
}

// NewService creates a Service. opts are passed to the reconciler.
func NewService(nav Navigator, cfg *config.Config, opts ...reconcile.Option) *Service {
	return &Service{
		nav:   nav,
		batch: cfg.Batch,
		rec:   reconcile.New(cfg.Reconcile, opts...),
	}
}

// Active reports whether a batch is running.
func (s *Service) Active() bool { return s.active.Load() }

// Run captures urls and returns one mapping entry per distinct URL.
// timeout <= 0 selects the default; larger values are clamped to the
// configured maximum.
//
// Errors are reserved for faults that affect the whole batch: invalid
// input, an unusable download directory or a navigator that could not
// start. Per-URL failures are entries in the mapping.
func (s *Service) Run(ctx context.Context, urls []string, timeout time.Duration) (*models.SnapshotResponse, error) {
	if err := ValidateURLs(urls, s.batch.MaxURLs); err != nil {
		return nil, err
	}
	timeout = s.clampTimeout(timeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active.Store(true)
	defer s.active.Store(false)

	id := uuid.NewString()
	dir := filepath.Join(s.batch.DownloadRoot, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, models.NewSnapshotError(models.ErrCodeDirectory, "cannot create batch directory", err)
	}
	if !s.batch.KeepFiles {
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				slog.Warn("batch cleanup failed", "id", id, "dir", dir, "error", err)
			}
		}()
	}

	logger := slog.With("id", id)
	logger.Info("batch started", "urls", len(urls), "timeout", timeout.String(), "dir", dir)

	batch, err := s.rec.Start(dir, urls)
	if err != nil {
		return nil, err
	}

	// One budget covers triggering and reconciliation. Captures still
	// running when Run returns are cut off.
	deadline := s.rec.Now().Add(timeout)
	captureCtx, cancel := context.WithTimeout(ctx, timeout)
	defer func() {
		cancel()
		if d, ok := s.nav.(drainer); ok {
			d.Drain()
		}
	}()

	if err := s.nav.Save(captureCtx, dir, urls); err != nil {
		logger.Error("capture trigger failed", "error", err)
		return nil, err
	}

	out, err := batch.Wait(ctx, deadline)
	if err != nil {
		logger.Error("batch aborted", "error", err)
		return nil, err
	}

	msg := "Downloads completed successfully."
	if out.Stats.Unresolved > 0 {
		msg = fmt.Sprintf("%d of %d URLs unresolved.", out.Stats.Unresolved, out.Stats.Requested)
	}
	logger.Info("batch finished",
		"packaged", out.Stats.Packaged,
		"unresolved", out.Stats.Unresolved,
		"elapsed_ms", out.Stats.ElapsedMs,
	)

	return &models.SnapshotResponse{
		ID:          id,
		Message:     msg,
		URLMappings: out.Entries,
		Stats:       out.Stats,
	}, nil
}

func (s *Service) clampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		d = s.batch.DefaultTimeout
	}
	if s.batch.MaxTimeout > 0 && d > s.batch.MaxTimeout {
		d = s.batch.MaxTimeout
	}
	return d
}

// ValidateURLs checks that urls holds 1..maxURLs absolute http(s) URLs.
// maxURLs <= 0 means no upper bound.
func ValidateURLs(urls []string, maxURLs int) error {
	if len(urls) == 0 {
		return models.NewSnapshotError(models.ErrCodeInvalidInput, "no URLs provided", nil)
	}
	if maxURLs > 0 && len(urls) > maxURLs {
		return models.NewSnapshotError(models.ErrCodeInvalidInput,
			fmt.Sprintf("maximum %d URLs per batch", maxURLs), nil)
	}
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return models.NewSnapshotError(models.ErrCodeInvalidInput,
				fmt.Sprintf("not an absolute http(s) URL: %q", raw), err)
		}
	}
	return nil
}
