package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAGESNAP_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Reconcile.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Reconcile.MinSettle)
	assert.InDelta(t, 0.6, cfg.Reconcile.Threshold, 1e-9)
	assert.InDelta(t, 0.1, cfg.Reconcile.Margin, 1e-9)
	assert.True(t, cfg.Reconcile.IgnoreExisting)
	assert.Equal(t, int64(1<<20), cfg.Reconcile.PeekBytes)
	assert.Equal(t, "/tmp/snapshots", cfg.Batch.DownloadRoot)
	assert.Equal(t, 300*time.Second, cfg.Batch.DefaultTimeout)
	assert.Equal(t, "src/ui/pages/batch-save-urls.html", cfg.Browser.ExtensionPage)
	assert.Empty(t, cfg.Browser.ExtensionCRX)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PAGESNAP_CONFIG", "")
	t.Setenv("PAGESNAP_MATCH_THRESHOLD", "0.75")
	t.Setenv("PAGESNAP_POLL_INTERVAL", "250ms")
	t.Setenv("PAGESNAP_API_KEYS", "a, b,,c")
	t.Setenv("PAGESNAP_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.75, cfg.Reconcile.Threshold, 1e-9)
	assert.Equal(t, 250*time.Millisecond, cfg.Reconcile.PollInterval)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Auth.APIKeys)
	assert.Equal(t, 8080, cfg.Server.Port, "unparseable values fall back to the default")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagesnap.yaml")
	body := "" +
		"PAGESNAP_MATCH_MARGIN: 0.2\n" +
		"PAGESNAP_KEEP_FILES: true\n" +
		"PAGESNAP_DOWNLOAD_ROOT: /data/snaps\n" +
		"PAGESNAP_API_KEYS: [k1, k2]\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	t.Setenv("PAGESNAP_CONFIG", path)
	t.Setenv("PAGESNAP_DOWNLOAD_ROOT", "/env/wins")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.2, cfg.Reconcile.Margin, 1e-9)
	assert.True(t, cfg.Batch.KeepFiles)
	assert.Equal(t, "/env/wins", cfg.Batch.DownloadRoot)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Auth.APIKeys)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("PAGESNAP_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.yaml")
}
