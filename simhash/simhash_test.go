package simhash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Deterministic(t *testing.T) {
	tokens := strings.Fields("the quick brown fox jumps over the lazy dog")
	assert.Equal(t, Fingerprint(tokens), Fingerprint(tokens))
}

func TestFingerprint_SimilarVersusDifferent(t *testing.T) {
	a := Fingerprint(strings.Fields("the quick brown fox jumps over the lazy dog"))
	b := Fingerprint(strings.Fields("the quick brown fox leaps over the lazy dog"))
	c := Fingerprint(strings.Fields("completely unrelated content about quantum physics and mathematics"))

	assert.LessOrEqual(t, Distance(a, b), 10)
	assert.GreaterOrEqual(t, Distance(a, c), 5)
}

func TestFingerprint_Empty(t *testing.T) {
	assert.Zero(t, Fingerprint(nil))
	assert.NotZero(t, Fingerprint([]string{"hello"}))
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
		{"two bits", 0, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Distance(tt.a, tt.b))
		})
	}
}

func TestSimilar(t *testing.T) {
	a := Fingerprint([]string{"a", "b", "c"})
	b := Fingerprint([]string{"x", "y", "z", "w"})
	d := Distance(a, b)
	require.Positive(t, d)

	assert.True(t, Similar(a, a, 0))
	assert.True(t, Similar(a, b, d))
	assert.False(t, Similar(a, b, d-1))
}

func TestHex(t *testing.T) {
	assert.Equal(t, "0000000000000000", Hex(0))
	assert.Equal(t, "00000000000000ff", Hex(0xff))
	assert.Len(t, Hex(^uint64(0)), 16)
}

func TestFingerprintDOM_SameStructureDifferentText(t *testing.T) {
	a := []byte(`<html><head><title>Page 1</title></head><body><div><h1>Hello</h1><p>World</p></div></body></html>`)
	b := []byte(`<html><head><title>Page 2</title></head><body><div><h1>Hi</h1><p>Earth</p></div></body></html>`)
	assert.Equal(t, FingerprintDOM(a), FingerprintDOM(b))
}

func TestFingerprintDOM_DifferentStructure(t *testing.T) {
	a := []byte(`<html><body><div><h1>Title</h1><p>Text</p><p>More text</p></div></body></html>`)
	b := []byte(`<html><body><table><tr><td>A</td><td>B</td></tr><tr><td>C</td><td>D</td></tr></table></body></html>`)
	assert.GreaterOrEqual(t, Distance(FingerprintDOM(a), FingerprintDOM(b)), 3)
}

func TestFingerprintDOM_NoTags(t *testing.T) {
	assert.Zero(t, FingerprintDOM(nil))
	assert.Zero(t, FingerprintDOM([]byte("just some plain text with no tags")))
	assert.NotZero(t, FingerprintDOM([]byte("<br/>")))
}

func TestExtractTags(t *testing.T) {
	got := extractTags([]byte(`<html><head><title>Test</title></head><body><div><p>Hello</p></div></body></html>`))
	assert.Equal(t, []string{"html", "head", "title", "body", "div", "p"}, got)
}

func TestMakeShingles(t *testing.T) {
	assert.Equal(t, []string{"a_b_c", "b_c_d"}, makeShingles([]string{"a", "b", "c", "d"}, 3))
	assert.Nil(t, makeShingles([]string{"a", "b"}, 3))
}
