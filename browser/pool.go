package browser

import (
	"log/slog"
	"math"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Retirement thresholds for pooled capture pages. A page that keeps failing
// or has rendered many sites is replaced by a fresh tab.
const (
	retireErrScore = 3.0
	retireUses     = 50
	retireAge      = 50 * time.Minute
)

// pooledPage is a direct-mode tab plus its health record.
type pooledPage struct {
	page     *rod.Page
	uses     int
	errScore float64
	created  time.Time
}

// record scores one capture: a failure adds 1, a success takes 0.5 off.
func (p *pooledPage) record(err error) {
	p.uses++
	if err != nil {
		p.errScore++
		return
	}
	p.errScore = math.Max(0, p.errScore-0.5)
}

func (p *pooledPage) shouldRetire(now time.Time) bool {
	return p.errScore >= retireErrScore ||
		p.uses >= retireUses ||
		now.Sub(p.created) >= retireAge
}

// acquirePage takes a tab from the pool, opening one if the slot is empty.
func (b *Browser) acquirePage() (*pooledPage, error) {
	pp, err := b.pagePool.Get(func() (*pooledPage, error) {
		page, err := b.rod.Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, err
		}
		return &pooledPage{page: page, created: time.Now()}, nil
	})
	if err != nil {
		// Give the slot back so the pool keeps its size.
		b.pagePool.Put(nil)
		return nil, err
	}
	return pp, nil
}

// releasePage blanks the tab and returns it to the pool, or closes it and
// frees the slot when its health record says so.
func (b *Browser) releasePage(pp *pooledPage, captureErr error) {
	pp.record(captureErr)
	if pp.shouldRetire(time.Now()) {
		slog.Info("retiring capture page", "uses", pp.uses, "errScore", pp.errScore)
		_ = pp.page.Close()
		b.pagePool.Put(nil)
		return
	}
	if err := pp.page.Navigate("about:blank"); err != nil {
		slog.Warn("cleanup: failed to navigate to about:blank", "error", err)
	}
	b.pagePool.Put(pp)
}
