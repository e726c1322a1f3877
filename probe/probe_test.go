package probe

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pagesnap/models"
)

var t0 = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func byName(s *Snapshot) map[string]ObservedFile {
	out := make(map[string]ObservedFile, len(s.Files))
	for _, f := range s.Files {
		out[f.Name] = f
	}
	return out
}

func TestSnapshot_FinalizesAfterTwoStableObservations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "page.html", "<html></html>")
	p := New(dir, Options{MinSettle: 500 * time.Millisecond})

	first, err := p.Snapshot(t0)
	require.NoError(t, err)
	require.Len(t, first.Files, 1)
	assert.False(t, first.Files[0].Finalized, "first sighting is never finalized")
	assert.Equal(t, 1, first.InProgress)

	second, err := p.Snapshot(t0.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, second.Files, 1)
	f := second.Files[0]
	assert.True(t, f.Finalized)
	assert.Equal(t, t0, f.FirstSeen)
	assert.Equal(t, t0.Add(time.Second), f.FinalizedAt)
	assert.Equal(t, filepath.Join(dir, "page.html"), f.Path)
	assert.Equal(t, int64(len("<html></html>")), f.Size)
	assert.Zero(t, second.InProgress)
}

func TestSnapshot_GrowingFileIsNotFinalized(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "page.html", "<html>")
	p := New(dir, Options{})

	_, err := p.Snapshot(t0)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("<html><body>more</body></html>"), 0o644))
	snap, err := p.Snapshot(t0.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, snap.Files[0].Finalized)

	snap, err = p.Snapshot(t0.Add(2 * time.Second))
	require.NoError(t, err)
	assert.True(t, snap.Files[0].Finalized)
}

func TestSnapshot_ModTimeChangeResetsSample(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "page.html", "<html></html>")
	p := New(dir, Options{})

	_, err := p.Snapshot(t0)
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	snap, err := p.Snapshot(t0.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, snap.Files[0].Finalized, "same size but new mtime is still being written")
}

func TestSnapshot_RespectsMinSettle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "page.html", "<html></html>")
	p := New(dir, Options{MinSettle: 500 * time.Millisecond})

	_, err := p.Snapshot(t0)
	require.NoError(t, err)

	snap, err := p.Snapshot(t0.Add(100 * time.Millisecond))
	require.NoError(t, err)
	assert.False(t, snap.Files[0].Finalized)

	snap, err = p.Snapshot(t0.Add(600 * time.Millisecond))
	require.NoError(t, err)
	assert.True(t, snap.Files[0].Finalized, "stable since the first sample, gap now exceeds MinSettle")
}

func TestSnapshot_FinalizationIsMonotonic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "page.html", "<html></html>")
	p := New(dir, Options{})

	_, err := p.Snapshot(t0)
	require.NoError(t, err)
	snap, err := p.Snapshot(t0.Add(time.Second))
	require.NoError(t, err)
	require.True(t, snap.Files[0].Finalized)

	require.NoError(t, os.WriteFile(path, []byte("rewritten by someone else"), 0o644))
	for i := 2; i < 5; i++ {
		snap, err = p.Snapshot(t0.Add(time.Duration(i) * time.Second))
		require.NoError(t, err)
		require.Len(t, snap.Files, 1)
		assert.True(t, snap.Files[0].Finalized)
		assert.Equal(t, t0.Add(time.Second), snap.Files[0].FinalizedAt)
	}
}

func TestSnapshot_EmptyFileNeverFinalizes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.html", "")
	p := New(dir, Options{})

	for i := 0; i < 3; i++ {
		snap, err := p.Snapshot(t0.Add(time.Duration(i) * time.Second))
		require.NoError(t, err)
		require.Len(t, snap.Files, 1)
		assert.False(t, snap.Files[0].Finalized)
	}
}

func TestSnapshot_PartialDownloadsCountedNotListed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Example Domain.html.crdownload", "<html>")
	writeFile(t, dir, "other.part", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	p := New(dir, Options{})
	snap, err := p.Snapshot(t0)
	require.NoError(t, err)
	assert.Empty(t, snap.Files)
	assert.Equal(t, 2, snap.InProgress)
}

func TestSnapshot_BaselineExcluded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "old.html", "<html>old</html>")

	p := New(dir, Options{})
	require.NoError(t, p.Baseline())
	writeFile(t, dir, "new.html", "<html>new</html>")

	_, err := p.Snapshot(t0)
	require.NoError(t, err)
	snap, err := p.Snapshot(t0.Add(time.Second))
	require.NoError(t, err)

	files := byName(snap)
	assert.NotContains(t, files, "old.html")
	assert.True(t, files["new.html"].Finalized)
}

func TestSnapshot_VanishedFileDropped(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gone.html", "<html></html>")
	writeFile(t, dir, "kept.html", "<html></html>")
	p := New(dir, Options{})

	_, err := p.Snapshot(t0)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	snap, err := p.Snapshot(t0.Add(time.Second))
	require.NoError(t, err)
	files := byName(snap)
	assert.NotContains(t, files, "gone.html")
	assert.True(t, files["kept.html"].Finalized)

	// Reappearing under the same name starts over.
	writeFile(t, dir, "gone.html", "<html></html>")
	snap, err = p.Snapshot(t0.Add(2 * time.Second))
	require.NoError(t, err)
	assert.False(t, byName(snap)["gone.html"].Finalized)
}

func TestSnapshot_StatFailureKeepsFinalizedState(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "page.html", "<html></html>")
	p := New(dir, Options{})

	_, err := p.Snapshot(t0)
	require.NoError(t, err)
	snap, err := p.Snapshot(t0.Add(time.Second))
	require.NoError(t, err)
	require.True(t, snap.Files[0].Finalized)

	p.stat = func(os.DirEntry) (fs.FileInfo, error) { return nil, fs.ErrPermission }
	snap, err = p.Snapshot(t0.Add(2 * time.Second))
	require.NoError(t, err)
	assert.Empty(t, snap.Files, "an entry that cannot be stat'ed is left out")

	p.stat = os.DirEntry.Info
	snap, err = p.Snapshot(t0.Add(3 * time.Second))
	require.NoError(t, err)
	require.Len(t, snap.Files, 1)
	assert.True(t, snap.Files[0].Finalized)
	assert.Equal(t, t0.Add(time.Second), snap.Files[0].FinalizedAt)
}

func TestSnapshot_OrderByFinalizationThenName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.html", "<html>b</html>")
	writeFile(t, dir, "a.html", "<html>a</html>")
	p := New(dir, Options{})

	_, err := p.Snapshot(t0)
	require.NoError(t, err)
	writeFile(t, dir, "0-late.html", "<html>late</html>")
	_, err = p.Snapshot(t0.Add(time.Second))
	require.NoError(t, err)
	snap, err := p.Snapshot(t0.Add(2 * time.Second))
	require.NoError(t, err)

	names := make([]string, 0, len(snap.Files))
	for _, f := range snap.Files {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"a.html", "b.html", "0-late.html"}, names)
	assert.Len(t, snap.Finalized(), 3)
}

func TestSnapshot_MissingDirectoryIsFatal(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "nope"), Options{})

	_, err := p.Snapshot(t0)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeDirectory, models.CodeOf(err))

	require.Error(t, p.Baseline())
}

func TestSnapshot_FileInsteadOfDirectoryIsFatal(t *testing.T) {
	path := writeFile(t, t.TempDir(), "plain", "x")
	_, err := New(path, Options{}).Snapshot(t0)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeDirectory, models.CodeOf(err))
}
