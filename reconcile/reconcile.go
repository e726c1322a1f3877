// Package reconcile ties requested URLs to the snapshot files a browser
// writes for them, under a single batch deadline.
//
// One Batch is a cooperative polling loop that probes the
// download directory, matches newly finalized files to pending URLs,
// packages each match immediately and sleeps until the next tick. The
// result always has exactly one entry per distinct requested URL.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/pagesnap/config"
	"github.com/use-agent/pagesnap/inspect"
	"github.com/use-agent/pagesnap/matcher"
	"github.com/use-agent/pagesnap/models"
	"github.com/use-agent/pagesnap/packager"
	"github.com/use-agent/pagesnap/probe"
)

const defaultPollInterval = time.Second

// Inspector reads matching hints from a finalized file.
type Inspector interface {
	Inspect(path string) inspect.Hints
}

// Packer packages a matched file.
type Packer interface {
	Package(f probe.ObservedFile) (*packager.Payload, error)
}

// Reconciler runs batches. It holds no per-batch state and may be reused.
type Reconciler struct {
	interval       time.Duration
	minSettle      time.Duration
	ignoreExisting bool
	match          matcher.Options

	clock     Clock
	inspector Inspector
	packer    Packer
}

// Option overrides a Reconciler dependency.
type Option func(*Reconciler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(r *Reconciler) { r.clock = c } }

// WithInspector replaces the hint reader.
func WithInspector(in Inspector) Option { return func(r *Reconciler) { r.inspector = in } }

// WithPacker replaces the packager.
func WithPacker(p Packer) Option { return func(r *Reconciler) { r.packer = p } }

// New creates a Reconciler from configuration.
func New(cfg config.ReconcileConfig, opts ...Option) *Reconciler {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	r := &Reconciler{
		interval:       interval,
		minSettle:      cfg.MinSettle,
		ignoreExisting: cfg.IgnoreExisting,
		match:          matcher.Options{Threshold: cfg.Threshold, Margin: cfg.Margin},
		clock:          realClock{},
		inspector:      inspect.New(cfg.PeekBytes),
		packer:         packager.New(packager.Options{Level: cfg.GzipLevel, MaxBytes: cfg.MaxFileBytes}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now reads the reconciler's clock. Deadlines passed to Wait are measured
// against it.
func (r *Reconciler) Now() time.Time { return r.clock.Now() }

// Outcome is the result of one batch.
type Outcome struct {
	// Entries has exactly one key per distinct requested URL.
	Entries map[string]models.ResultEntry

	// States is the terminal state per URL.
	States map[string]State

	Stats models.BatchStats
}

// Run is Start followed by Wait, for callers whose files are produced
// independently of the batch.
func (r *Reconciler) Run(ctx context.Context, dir string, urls []string, deadline time.Time) (*Outcome, error) {
	b, err := r.Start(dir, urls)
	if err != nil {
		return nil, err
	}
	return b.Wait(ctx, deadline)
}

// Start prepares a batch over dir. With IgnoreExisting, files already in
// dir are recorded here and never matched, so capture must be triggered
// after Start returns.
func (r *Reconciler) Start(dir string, urls []string) (*Batch, error) {
	p := probe.New(dir, probe.Options{MinSettle: r.minSettle})
	if r.ignoreExisting {
		if err := p.Baseline(); err != nil {
			return nil, err
		}
	}
	return newBatch(r, p, urls), nil
}

// Wait reconciles the batch's URLs against files appearing in its
// directory until every URL is terminal or deadline passes. Cancelling ctx
// ends the batch early the same way the deadline does.
//
// The only error returned is a directory-level probe failure; per-URL
// failures are reported in the Outcome. Wait must be called once.
func (b *Batch) Wait(ctx context.Context, deadline time.Time) (*Outcome, error) {
	clock := b.r.clock
	start := clock.Now()
	dir := b.probe.Dir()

	slog.Info("reconciliation started",
		"dir", dir,
		"urls", len(b.reqs),
		"deadline", deadline.Format(time.RFC3339),
	)

	ticks := 0
	for !b.done() && ctx.Err() == nil {
		now := clock.Now()
		if !now.Before(deadline) {
			break
		}

		snap, err := b.probe.Snapshot(now)
		if err != nil {
			return nil, err
		}
		ticks++
		b.tick(snap)
		if b.done() {
			break
		}

		wait := b.r.interval
		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 {
			break
		}
		if remaining < wait {
			wait = remaining
		}
		clock.Sleep(ctx, wait)
	}

	b.expire()

	out := b.outcome()
	out.Stats.Ticks = ticks
	out.Stats.ElapsedMs = clock.Now().Sub(start).Milliseconds()

	slog.Info("reconciliation finished",
		"dir", dir,
		"requested", out.Stats.Requested,
		"packaged", out.Stats.Packaged,
		"unresolved", out.Stats.Unresolved,
		"ticks", ticks,
	)
	return out, nil
}

// tick runs matching and packaging over one snapshot.
func (b *Batch) tick(snap *probe.Snapshot) {
	b.inProgress = snap.InProgress > 0

	var files []matcher.File
	byName := make(map[string]probe.ObservedFile)
	for _, f := range snap.Finalized() {
		if _, used := b.usedFiles[f.Name]; used {
			continue
		}
		hints, ok := b.hints[f.Name]
		if !ok {
			hints = b.r.inspector.Inspect(f.Path)
			b.hints[f.Name] = hints
		}
		byName[f.Name] = f
		files = append(files, matcher.File{Name: f.Name, Title: hints.Title, SourceURL: hints.SourceURL})
	}

	pending := b.pending()
	if len(files) == 0 || len(pending) == 0 {
		return
	}

	res := matcher.Match(pending, files, b.r.match)

	contested := make(map[int]struct{}, len(res.Contested))
	for _, id := range res.Contested {
		contested[id] = struct{}{}
	}
	for _, req := range b.reqs {
		if req.state == Pending {
			_, req.contested = contested[req.id]
		}
	}

	for _, m := range res.Matches {
		req := b.reqs[m.RequestID]
		f := byName[m.File]
		req.state = Matched
		req.file = &f
		req.score = m.Score
		b.usedFiles[f.Name] = struct{}{}

		slog.Info("url matched",
			"url", req.url,
			"file", f.Name,
			"score", fmt.Sprintf("%.3f", m.Score),
			"runner_up", fmt.Sprintf("%.3f", m.RunnerUp),
		)
		b.pack(req)
	}
}

// pack moves a Matched request to Packaged or Unresolved.
func (b *Batch) pack(req *request) {
	payload, err := b.r.packer.Package(*req.file)
	if err != nil {
		slog.Warn("packaging failed", "url", req.url, "file", req.file.Name, "error", err)
		req.unresolve(models.ReasonReadFailure, err.Error())
		return
	}
	req.state = Packaged
	req.result = models.ResultEntry{
		Filename:    payload.Filename,
		Content:     payload.Content,
		Size:        payload.Size,
		Fingerprint: payload.Fingerprint,
		Score:       req.score,
	}
}

// Batch is one reconciliation run over a directory. It is not safe for
// concurrent use.
type Batch struct {
	r     *Reconciler
	probe *probe.Probe

	reqs      []*request // index == id
	byURL     map[string]*request
	usedFiles map[string]struct{}
	hints     map[string]inspect.Hints

	// inProgress is true when the latest snapshot saw unfinished writes.
	inProgress bool
}

func newBatch(r *Reconciler, p *probe.Probe, urls []string) *Batch {
	b := &Batch{
		r:         r,
		probe:     p,
		byURL:     make(map[string]*request, len(urls)),
		usedFiles: make(map[string]struct{}),
		hints:     make(map[string]inspect.Hints),
	}
	for _, u := range urls {
		if _, dup := b.byURL[u]; dup {
			continue
		}
		req := &request{id: len(b.reqs), url: u}
		b.reqs = append(b.reqs, req)
		b.byURL[u] = req
	}
	return b
}

func (b *Batch) done() bool {
	for _, r := range b.reqs {
		if !r.state.Terminal() {
			return false
		}
	}
	return true
}

func (b *Batch) pending() []matcher.Request {
	var out []matcher.Request
	for _, r := range b.reqs {
		if r.state == Pending {
			out = append(out, matcher.Request{ID: r.id, URL: r.url})
		}
	}
	return out
}

// expire forces every non-terminal request to Unresolved.
func (b *Batch) expire() {
	for _, r := range b.reqs {
		switch r.state {
		case Pending:
			if b.inProgress || r.contested {
				r.unresolve(models.ReasonTimeout, "deadline reached while a candidate was still undecided")
			} else {
				r.unresolve(models.ReasonNoCandidate, "no file matched before the deadline")
			}
		case Matched:
			r.unresolve(models.ReasonTimeout, "deadline reached before packaging finished")
		}
	}
}

func (b *Batch) outcome() *Outcome {
	out := &Outcome{
		Entries: make(map[string]models.ResultEntry, len(b.reqs)),
		States:  make(map[string]State, len(b.reqs)),
	}
	out.Stats.Requested = len(b.reqs)
	for _, r := range b.reqs {
		out.Entries[r.url] = r.result
		out.States[r.url] = r.state
		if r.state == Packaged {
			out.Stats.Packaged++
		} else {
			out.Stats.Unresolved++
		}
	}
	return out
}
