package browser

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// maxNameBytes keeps generated names well under common filesystem limits.
const maxNameBytes = 200

// FileName returns the name a capture of pageURL titled title is saved
// under, in the extension's "{title} ({date} {time}).html" layout. An
// empty title falls back to the host name.
func FileName(title, pageURL string, savedAt time.Time) string {
	base := sanitize(title)
	if base == "" {
		if u, err := url.Parse(pageURL); err == nil && u.Hostname() != "" {
			base = sanitize(u.Hostname())
		}
	}
	if base == "" {
		base = "snapshot"
	}
	return fmt.Sprintf("%s (%s).html", base, savedAt.Format("1_2_2006 3_04_05 PM"))
}

// Header returns the comment written at the top of direct-mode captures.
// It carries the page URL the same way the extension's header does.
func Header(pageURL string, savedAt time.Time) string {
	return fmt.Sprintf("<!--\n Page saved with pagesnap\n url: %s\n saved date: %s\n-->\n",
		pageURL, savedAt.Format(time.RFC1123))
}

// withHeader places the header just inside the <html> element, or in
// front of the document when there is none.
func withHeader(doc, pageURL string, savedAt time.Time) string {
	h := Header(pageURL, savedAt)
	i := strings.Index(strings.ToLower(doc), "<html")
	if i < 0 {
		return h + doc
	}
	end := strings.IndexByte(doc[i:], '>')
	if end < 0 {
		return h + doc
	}
	at := i + end + 1
	return doc[:at] + "\n" + h + doc[at:]
}

// writeSnapshot writes doc into dir under name. The bytes go to a ".part"
// file first so the directory never shows a half-written snapshot under
// its final name. An existing name is uniquified the way a browser does:
// "name (1).html", "name (2).html", ...
func writeSnapshot(dir, name, doc string) (string, error) {
	tmp, err := os.CreateTemp(dir, ".capture-*.part")
	if err != nil {
		return "", err
	}
	if _, err := tmp.WriteString(doc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 0; n < 1000; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		target := filepath.Join(dir, candidate)
		if _, err := os.Lstat(target); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			os.Remove(tmp.Name())
			return "", err
		}
		if err := os.Rename(tmp.Name(), target); err != nil {
			os.Remove(tmp.Name())
			return "", err
		}
		return candidate, nil
	}
	os.Remove(tmp.Name())
	return "", fmt.Errorf("no free name for %s", name)
}

// sanitize makes title safe as a filename component.
func sanitize(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case strings.ContainsRune(`/\:*?"<>|~`, r), unicode.IsControl(r):
			b.WriteRune('_')
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	s := strings.Join(strings.Fields(b.String()), " ")
	s = strings.Trim(s, ". ")
	for len(s) > maxNameBytes {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return strings.TrimSpace(s)
}
