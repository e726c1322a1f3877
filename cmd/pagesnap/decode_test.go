package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pagesnap/models"
	"github.com/use-agent/pagesnap/packager"
)

func encoded(t *testing.T, s string) string {
	t.Helper()
	c, err := packager.Encode([]byte(s), 0)
	require.NoError(t, err)
	return c
}

func TestDecodeMapping(t *testing.T) {
	resp := models.SnapshotResponse{
		ID: "b",
		URLMappings: map[string]models.ResultEntry{
			"https://example.com": {Filename: "Example Domain (10_15_2026 12_00_00 PM).html", Content: encoded(t, "<html>ex</html>")},
			"https://github.com":  {Error: &models.ErrorDetail{Code: models.ReasonTimeout, Message: "deadline"}},
		},
	}
	body, err := json.Marshal(resp)
	require.NoError(t, err)
	out := t.TempDir()
	var log bytes.Buffer

	n, err := decodeMapping(bytes.NewReader(body), out, &log)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	got, err := os.ReadFile(filepath.Join(out, "ExampleDomain10_15_202612_00_00PM.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html>ex</html>", string(got))
	assert.Contains(t, log.String(), "skipped https://github.com (timeout: deadline)")
}

func TestDecodeMapping_BareMapAndCollisions(t *testing.T) {
	mappings := map[string]models.ResultEntry{
		"https://a.test": {Filename: "page.html", Content: encoded(t, "a")},
		"https://b.test": {Filename: "page.html", Content: encoded(t, "b")},
	}
	body, err := json.Marshal(mappings)
	require.NoError(t, err)
	out := t.TempDir()

	n, err := decodeMapping(bytes.NewReader(body), out, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	a, _ := os.ReadFile(filepath.Join(out, "page.html"))
	b, _ := os.ReadFile(filepath.Join(out, "page-1.html"))
	assert.Equal(t, "a", string(a))
	assert.Equal(t, "b", string(b))
}

func TestDecodeMapping_BadContent(t *testing.T) {
	body := `{"url_mappings":{"https://a.test":{"filename":"a.html","content":"!!!"}}}`

	n, err := decodeMapping(strings.NewReader(body), t.TempDir(), &bytes.Buffer{})

	assert.Zero(t, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https://a.test")
}

func TestDecodeMapping_NotJSON(t *testing.T) {
	_, err := decodeMapping(strings.NewReader("nope"), t.TempDir(), &bytes.Buffer{})
	assert.ErrorContains(t, err, "parse mapping")
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "GoDocs.html", safeFilename("Go: Docs?.html"))
	assert.Equal(t, "café.html", safeFilename("café.html"))
	assert.Equal(t, "etcpasswd", safeFilename("../../etc/passwd"))
	assert.Equal(t, "snapshot.html", safeFilename("///"))
}

func TestDecodeCommand_Stdin(t *testing.T) {
	body := `{"https://a.test":{"filename":"a.html","content":"` + encoded(t, "hello") + `"}}`
	out := t.TempDir()
	var stdout bytes.Buffer

	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(body))
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"decode", "-", "--out", out})
	require.NoError(t, cmd.Execute())

	got, err := os.ReadFile(filepath.Join(out, "a.html"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.Contains(t, stdout.String(), "saved https://a.test")
}
