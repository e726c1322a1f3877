// Package inspect reads matching hints out of a finalized snapshot: the
// page title and, when the capture tool recorded it, the URL the page was
// saved from.
package inspect

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// DefaultPeekBytes is how much of a file is read for hints.
const DefaultPeekBytes = 1 << 20

// singleFileHeader matches the url line of the comment SingleFile writes
// into every snapshot:
//
//	<!--
//	 Page saved with SingleFile
//	 url: https://example.com/
//	 saved date: ...
//	-->
var singleFileHeader = regexp.MustCompile(`(?m)^\s*url:\s*(\S+)\s*$`)

var titleSel = cascadia.MustCompile("head > title, title")

// Hints are optional; empty fields mean "not found".
type Hints struct {
	Title string

	// SourceURL comes only from the capture header. Page metadata such as
	// link[rel=canonical] or og:url often names a parent page or the site
	// root, so it is not read.
	SourceURL string
}

// Inspector is safe for concurrent use.
type Inspector struct {
	peek int64
}

// New creates an Inspector that reads at most peekBytes of each file.
func New(peekBytes int64) *Inspector {
	if peekBytes <= 0 {
		peekBytes = DefaultPeekBytes
	}
	return &Inspector{peek: peekBytes}
}

// Inspect reads hints from the file at path. Errors yield empty hints.
func (in *Inspector) Inspect(path string) Hints {
	f, err := os.Open(path)
	if err != nil {
		slog.Debug("inspect: open failed", "path", path, "error", err)
		return Hints{}
	}
	defer f.Close()

	head, err := io.ReadAll(io.LimitReader(f, in.peek))
	if err != nil {
		slog.Debug("inspect: read failed", "path", path, "error", err)
		return Hints{}
	}
	return Parse(head)
}

// Parse extracts hints from (the head of) an HTML document.
func Parse(head []byte) Hints {
	var h Hints
	if m := singleFileHeader.FindSubmatch(headerComment(head)); m != nil && isAbsoluteHTTP(string(m[1])) {
		h.SourceURL = string(m[1])
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(head))
	if err != nil {
		return h
	}
	h.Title = strings.Join(strings.Fields(doc.FindMatcher(titleSel).First().Text()), " ")
	return h
}

// headerMarkers open the header comment written by SingleFile and by
// direct-mode capture.
var headerMarkers = [][]byte{[]byte("saved with SingleFile"), []byte("saved with pagesnap")}

// headerComment returns the body of the capture header comment, which
// sits just inside the <html> element.
func headerComment(head []byte) []byte {
	for _, m := range headerMarkers {
		start := bytes.Index(head, m)
		if start < 0 {
			continue
		}
		end := bytes.Index(head[start:], []byte("-->"))
		if end < 0 {
			return nil
		}
		return head[start : start+end]
	}
	return nil
}

func isAbsoluteHTTP(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
