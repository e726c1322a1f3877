// Package browser drives the Chromium instance that captures pages into a
// batch download directory.
//
// In extension mode the SingleFile extension does the capture and the
// browser's download manager writes the files. In direct mode (no
// extension configured) each URL is rendered in a pooled page and written
// by this package using the same title-derived naming.
package browser

import (
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"

	"github.com/use-agent/pagesnap/config"
	"github.com/use-agent/pagesnap/models"
)

// Browser owns the Chromium process. It is safe for concurrent use, but
// download behaviour is browser-global, so callers run one batch at a time.
type Browser struct {
	rod      *rod.Browser
	pagePool rod.Pool[pooledPage]
	cfg      config.BrowserConfig

	// extensionID is empty in direct mode.
	extensionID string

	mu      sync.Mutex
	extPage *rod.Page

	captures    sync.WaitGroup
	activePages atomic.Int32
	startTime   time.Time
}

// New unpacks the capture extension (when configured) and launches the
// browser.
func New(cfg config.BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.DefaultProxy != "" {
		l = l.Proxy(cfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))

	var extID string
	if cfg.ExtensionCRX != "" {
		dir, err := filepath.Abs(cfg.ExtensionDir)
		if err != nil {
			return nil, models.NewSnapshotError(models.ErrCodeExtension, "bad extension directory", err)
		}
		if err := UnpackCRX(cfg.ExtensionCRX, dir); err != nil {
			return nil, models.NewSnapshotError(models.ErrCodeExtension, "failed to unpack extension", err)
		}
		slog.Info("extension unpacked", "crx", cfg.ExtensionCRX, "dir", dir)

		l.Set(flags.Flag("disable-extensions-except"), dir)
		l.Set(flags.Flag("load-extension"), dir)
		// Legacy headless mode cannot load extensions.
		if cfg.Headless {
			l.Set(flags.Headless, "new")
		}
		extID = ExtensionID(dir)
	} else {
		l.Set(flags.Flag("disable-extensions"))
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewSnapshotError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "mode", modeName(extID))

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewSnapshotError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	cfg.MaxPages = maxPages

	return &Browser{
		rod:         b,
		pagePool:    rod.NewPool[pooledPage](maxPages),
		cfg:         cfg,
		extensionID: extID,
		startTime:   time.Now(),
	}, nil
}

// Mode reports "extension" or "direct".
func (b *Browser) Mode() string { return modeName(b.extensionID) }

// ExtensionID returns the loaded extension's id, or "" in direct mode.
func (b *Browser) ExtensionID() string { return b.extensionID }

// ActivePages is the number of direct-mode captures in flight.
func (b *Browser) ActivePages() int { return int(b.activePages.Load()) }

// Drain blocks until every capture started by Save has returned.
func (b *Browser) Drain() { b.captures.Wait() }

// Close waits for in-flight captures, drains the page pool and kills the
// browser process.
func (b *Browser) Close() {
	slog.Info("browser shutting down: waiting for captures")
	b.captures.Wait()

	b.mu.Lock()
	if b.extPage != nil {
		_ = b.extPage.Close()
		b.extPage = nil
	}
	b.mu.Unlock()

	slog.Info("browser shutting down: draining page pool")
	b.pagePool.Cleanup(func(pp *pooledPage) {
		_ = pp.page.Close()
	})
	if err := b.rod.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
	slog.Info("browser shutdown complete", "uptime", time.Since(b.startTime).Round(time.Second).String())
}

func modeName(extID string) string {
	if extID != "" {
		return "extension"
	}
	return "direct"
}
