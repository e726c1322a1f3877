// Package probe lists a download directory and decides which files the
// writer has finished with.
//
// A file is finalized once two consecutive observations at least MinSettle
// apart report the same size and modification time. The capture extension
// writes snapshots non-atomically, so a single observation is never enough.
package probe

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/use-agent/pagesnap/models"
)

// partialSuffixes mark downloads the browser has not renamed into place yet.
var partialSuffixes = []string{".crdownload", ".part", ".download", ".tmp"}

// ObservedFile is one directory entry as seen by the latest Snapshot.
type ObservedFile struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time

	// FirstSeen is the probe time the name first appeared.
	FirstSeen time.Time

	// FinalizedAt is the probe time the file became finalized (zero until then).
	FinalizedAt time.Time

	Finalized bool
}

// Snapshot is the result of one probe call.
type Snapshot struct {
	// Files is sorted by finalization time, then name; files still being
	// written sort last.
	Files []ObservedFile

	// InProgress counts partial downloads and files not yet finalized.
	InProgress int
}

// Finalized returns the finalized files in snapshot order.
func (s *Snapshot) Finalized() []ObservedFile {
	out := make([]ObservedFile, 0, len(s.Files))
	for _, f := range s.Files {
		if f.Finalized {
			out = append(out, f)
		}
	}
	return out
}

// Options tunes finalization.
type Options struct {
	// MinSettle is the minimum gap between the two matching observations.
	MinSettle time.Duration
}

// sample is the last observation kept for one name.
type sample struct {
	size        int64
	modTime     time.Time
	sampledAt   time.Time
	firstSeen   time.Time
	finalizedAt time.Time
	finalized   bool
}

// Probe tracks one directory across calls. It is not safe for concurrent use.
type Probe struct {
	dir       string
	minSettle time.Duration
	samples   map[string]*sample
	baseline  map[string]struct{}

	// stat reads one entry's metadata; replaced in tests.
	stat func(os.DirEntry) (fs.FileInfo, error)
}

// New creates a Probe for dir.
func New(dir string, opts Options) *Probe {
	return &Probe{
		dir:       dir,
		minSettle: opts.MinSettle,
		samples:   make(map[string]*sample),
		baseline:  make(map[string]struct{}),
		stat:      os.DirEntry.Info,
	}
}

// Dir returns the probed directory.
func (p *Probe) Dir() string { return p.dir }

// Baseline records every name currently in the directory; those names are
// never reported by later snapshots.
func (p *Probe) Baseline() error {
	entries, err := p.list()
	if err != nil {
		return err
	}
	for _, e := range entries {
		p.baseline[e.Name()] = struct{}{}
	}
	return nil
}

// Snapshot lists the directory at time now.
//
// Only a failure to list the directory itself is returned; entries that
// vanish or cannot be stat'ed are left out of the result.
func (p *Probe) Snapshot(now time.Time) (*Snapshot, error) {
	entries, err := p.list()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Files: make([]ObservedFile, 0, len(entries))}
	present := make(map[string]struct{}, len(entries))

	for _, e := range entries {
		name := e.Name()
		if _, skip := p.baseline[name]; skip || e.IsDir() {
			continue
		}
		if isPartial(name) {
			snap.InProgress++
			continue
		}
		// A listed name keeps its sample even when this stat fails, so a
		// finalized file stays finalized across a transient error.
		present[name] = struct{}{}
		info, err := p.stat(e)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		s := p.observe(name, info.Size(), info.ModTime(), now)
		if !s.finalized {
			snap.InProgress++
		}
		snap.Files = append(snap.Files, ObservedFile{
			Name:        name,
			Path:        filepath.Join(p.dir, name),
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			FirstSeen:   s.firstSeen,
			FinalizedAt: s.finalizedAt,
			Finalized:   s.finalized,
		})
	}

	// Samples for names that disappeared are superseded.
	for name := range p.samples {
		if _, ok := present[name]; !ok {
			delete(p.samples, name)
		}
	}

	sort.SliceStable(snap.Files, func(i, j int) bool {
		a, b := snap.Files[i], snap.Files[j]
		if a.Finalized != b.Finalized {
			return a.Finalized
		}
		if !a.FinalizedAt.Equal(b.FinalizedAt) {
			return a.FinalizedAt.Before(b.FinalizedAt)
		}
		return a.Name < b.Name
	})
	return snap, nil
}

// observe folds one stat result into the sample for name.
func (p *Probe) observe(name string, size int64, modTime, now time.Time) *sample {
	s, ok := p.samples[name]
	if !ok {
		s = &sample{size: size, modTime: modTime, sampledAt: now, firstSeen: now}
		p.samples[name] = s
		return s
	}
	if s.finalized {
		return s
	}
	if s.size != size || !s.modTime.Equal(modTime) {
		s.size, s.modTime, s.sampledAt = size, modTime, now
		return s
	}
	if size > 0 && now.Sub(s.sampledAt) >= p.minSettle {
		s.finalized = true
		s.finalizedAt = now
	}
	return s
}

func (p *Probe) list() ([]os.DirEntry, error) {
	info, err := os.Stat(p.dir)
	if err != nil {
		return nil, models.NewSnapshotError(models.ErrCodeDirectory, "download directory is not accessible", err)
	}
	if !info.IsDir() {
		return nil, models.NewSnapshotError(models.ErrCodeDirectory, "download path is not a directory",
			errors.New(p.dir))
	}
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, models.NewSnapshotError(models.ErrCodeDirectory, "download directory is not listable", err)
	}
	return entries, nil
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suf := range partialSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}
