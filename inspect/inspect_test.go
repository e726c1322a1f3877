package inspect

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const singleFilePage = `<!DOCTYPE html> <html lang="en"><!--
 Page saved with SingleFile 
 url: https://example.com/ 
 saved date: Thu Oct 15 2026 12:00:00 GMT+0000 (Coordinated Universal Time)
--><meta charset="utf-8">
<title>Example
   Domain</title>
<link rel="canonical" href="https://canonical.example.com/">
</html>`

func TestParse_SingleFileHeaderWins(t *testing.T) {
	h := Parse([]byte(singleFilePage))
	assert.Equal(t, "https://example.com/", h.SourceURL)
	assert.Equal(t, "Example Domain", h.Title)
}

func TestParse_PageMetadata(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantTitle string
		wantURL   string
	}{
		{
			name:      "canonical link is not a source",
			doc:       `<html><head><title>GitHub</title><link rel="alternate canonical" href=" https://github.com/ "></head></html>`,
			wantTitle: "GitHub",
		},
		{
			name:      "og:url is not a source",
			doc:       `<html><head><meta property="og:url" content="https://dailyplanet.example/"><title>World News - Daily Planet</title></head></html>`,
			wantTitle: "World News - Daily Planet",
		},
		{
			name:      "relative header url rejected",
			doc:       "<html><!--\n Page saved with SingleFile\n url: /docs\n--><head><title>Docs</title></head></html>",
			wantTitle: "Docs",
		},
		{
			name:      "pagesnap header",
			doc:       "<html><!--\n Page saved with pagesnap\n url: https://dailyplanet.example/world-news\n--><head><title>World News</title></head></html>",
			wantTitle: "World News",
			wantURL:   "https://dailyplanet.example/world-news",
		},
		{
			name: "no hints",
			doc:  `<p>plain fragment</p>`,
		},
		{
			name:      "url line outside the header ignored",
			doc:       "<html><head><title>Notes</title></head><body><pre>\nurl: https://elsewhere.example/\n</pre></body></html>",
			wantTitle: "Notes",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Parse([]byte(tt.doc))
			assert.Equal(t, tt.wantTitle, h.Title)
			assert.Equal(t, tt.wantURL, h.SourceURL)
		})
	}
}

func TestInspect_ReadsOnlyPeekBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late-title.html")
	body := "<html><head>" + strings.Repeat("<!-- padding -->", 100) + "<title>Too Late</title></head></html>"
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	assert.Empty(t, New(64).Inspect(path).Title)
	assert.Equal(t, "Too Late", New(0).Inspect(path).Title)
}

func TestInspect_MissingFile(t *testing.T) {
	assert.Equal(t, Hints{}, New(0).Inspect(filepath.Join(t.TempDir(), "gone.html")))
}
