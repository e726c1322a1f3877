package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/pagesnap/models"
)

// readySelector appears on the extension's batch page once its scripts
// have loaded.
const readySelector = "#URLLabel"

// saveURLsJS hands the URL list to the extension's background script.
const saveURLsJS = `(msg) => {
	const api = globalThis.browser || globalThis.chrome;
	api.runtime.sendMessage(msg);
	return msg.urls.length;
}`

// Save starts capturing urls into dir and returns once capture has been
// triggered. Files appear in dir asynchronously; nothing here waits for
// them.
//
// In direct mode captures keep running after Save returns until they
// finish or ctx is done; Drain waits for them.
func (b *Browser) Save(ctx context.Context, dir string, urls []string) error {
	if b.extensionID != "" {
		return b.saveWithExtension(ctx, dir, urls)
	}
	b.saveDirect(ctx, dir, urls)
	return nil
}

// saveWithExtension points the download manager at dir, opens the
// extension's batch page and sends it the URL list. The whole trigger is
// bounded by NavigationTimeout and by ctx.
func (b *Browser) saveWithExtension(ctx context.Context, dir string, urls []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// The previous batch's page has done its job by now.
	if b.extPage != nil {
		_ = b.extPage.Close()
		b.extPage = nil
	}

	if b.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.NavigationTimeout)
		defer cancel()
	}

	br := b.rod.Context(ctx)
	err := proto.BrowserSetDownloadBehavior{
		Behavior:      proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath:  dir,
		EventsEnabled: true,
	}.Call(br)
	if err != nil {
		return categorizeError(err, models.ErrCodeBrowserCrash, "failed to set download directory")
	}

	pageURL := fmt.Sprintf("chrome-extension://%s/%s", b.extensionID, b.cfg.ExtensionPage)
	page, err := br.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		return categorizeError(err, models.ErrCodeExtension, "failed to open extension page")
	}
	// Kept until the next batch; detach it from ctx so Close still works.
	b.extPage = page.Context(context.Background())

	if _, err := page.Element(readySelector); err != nil {
		return categorizeError(err, models.ErrCodeExtension, "extension page did not load")
	}

	msg := gson.New(map[string]interface{}{
		"method": "downloads.saveUrls",
		"urls":   urls,
	})
	res, err := page.Eval(saveURLsJS, msg)
	if err != nil {
		return categorizeError(err, models.ErrCodeExtension, "failed to send URLs to extension")
	}
	slog.Info("extension capture triggered", "dir", dir, "urls", res.Value.Int())
	return nil
}

// saveDirect renders each URL in a pooled page, at most MaxPages at a time.
func (b *Browser) saveDirect(ctx context.Context, dir string, urls []string) {
	b.captures.Add(1)
	go func() {
		defer b.captures.Done()

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.cfg.MaxPages)
		for _, u := range urls {
			g.Go(func() error {
				name, err := b.capture(gctx, dir, u)
				if err != nil {
					slog.Warn("capture failed", "url", u, "error", err)
					return nil
				}
				slog.Info("page captured", "url", u, "file", name)
				return nil
			})
		}
		_ = g.Wait()
	}()
	slog.Info("direct capture triggered", "dir", dir, "urls", len(urls))
}

// capture renders one URL and writes it into dir.
//
// The tab goes back to the pool on every path. Cleanup uses the page
// without the request context so it still works after ctx expires.
func (b *Browser) capture(ctx context.Context, dir, pageURL string) (name string, err error) {
	if b.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.NavigationTimeout)
		defer cancel()
	}

	b.activePages.Add(1)
	defer b.activePages.Add(-1)

	pp, err := b.acquirePage()
	if err != nil {
		return "", models.NewSnapshotError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", err)
	}
	defer func() { b.releasePage(pp, err) }()

	if b.cfg.Stealth {
		js, err := pp.page.EvalOnNewDocument(stealth.JS)
		if err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		} else {
			defer func() { _ = js() }()
		}
	}

	p := pp.page.Context(ctx)
	if err := p.Navigate(pageURL); err != nil {
		return "", categorizeError(err, models.ErrCodeNavigation, "navigation to target URL failed")
	}
	if err := p.WaitLoad(); err != nil {
		return "", categorizeError(err, models.ErrCodeNavigation, "page did not finish loading")
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}

	doc, err := p.HTML()
	if err != nil {
		return "", categorizeError(err, models.ErrCodeNavigation, "failed to extract page HTML")
	}
	title := evalStringOrEmpty(p, `() => document.title`)

	now := time.Now()
	return writeSnapshot(dir, FileName(title, pageURL, now), withHeader(doc, pageURL, now))
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// categorizeError wraps err with code, or with a navigation code when the
// context ran out first.
func categorizeError(err error, code, msg string) *models.SnapshotError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewSnapshotError(models.ErrCodeNavigation, msg+": deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return models.NewSnapshotError(models.ErrCodeNavigation, "capture canceled", err)
	default:
		return models.NewSnapshotError(code, msg, err)
	}
}
