package simhash

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// shingleSize is the tag n-gram length.
const shingleSize = 3

// FingerprintDOM fingerprints the tag structure of an HTML document,
// ignoring text and attributes. SingleFile inlines every resource as data
// URIs, so hashing text would be dominated by base64 noise.
func FingerprintDOM(doc []byte) uint64 {
	tags := extractTags(doc)
	if len(tags) == 0 {
		return 0
	}
	if shingles := makeShingles(tags, shingleSize); len(shingles) > 0 {
		return Fingerprint(shingles)
	}
	return Fingerprint(tags)
}

// extractTags collects opening tag names in document order.
func extractTags(doc []byte) []string {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}

// makeShingles builds n-gram shingles; nil when there are fewer than n tokens.
func makeShingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], "_"))
	}
	return out
}
