package matcher

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"
)

// noiseTokens carry no information about which page a file came from.
var noiseTokens = map[string]struct{}{
	"www": {}, "http": {}, "https": {},
	"com": {}, "org": {}, "net": {}, "io": {}, "co": {},
	"html": {}, "htm": {}, "index": {},
}

// savedDateSuffix matches the " (10_15_2026 12_00_00 PM)" group SingleFile
// appends to title-derived filenames, plus any " (1)" the browser adds to
// keep names unique.
var savedDateSuffix = regexp.MustCompile(`(\s*\([^()]*\d[^()]*\))+\s*$`)

// Key is a normalized, tokenized form of a URL, filename or title.
type Key struct {
	Tokens []string
	Joined string
}

// Empty reports whether the key has no usable tokens.
func (k Key) Empty() bool { return len(k.Tokens) == 0 }

// Normalize reduces a URL to a Key: lowercased, scheme and "www." removed,
// host and path tokenized. Query and fragment are ignored.
func Normalize(rawURL string) Key {
	return keyOf(Canonical(rawURL))
}

// Canonical returns host+path of rawURL, lowercased, without scheme,
// "www." or a trailing slash. Strings that do not parse as URLs are
// lowercased and trimmed.
func Canonical(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(rawURL)), "/")
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	p := strings.TrimSuffix(strings.ToLower(u.EscapedPath()), "/")
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}
	return host + p
}

// NormalizeName reduces a filename to a Key: the extension
// and any trailing saved-date group are removed before tokenizing.
func NormalizeName(name string) Key {
	base := strings.TrimSpace(name)
	if ext := path.Ext(base); ext != "" && len(ext) <= 6 && !strings.ContainsAny(ext, " ") {
		base = strings.TrimSuffix(base, ext)
	}
	return NormalizeTitle(base)
}

// NormalizeTitle reduces a page title to a Key.
func NormalizeTitle(title string) Key {
	base := savedDateSuffix.ReplaceAllString(strings.TrimSpace(title), "")
	return keyOf(strings.ToLower(base))
}

func keyOf(s string) Key {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, noise := noiseTokens[f]; noise {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return Key{Tokens: tokens, Joined: strings.Join(tokens, "")}
}
