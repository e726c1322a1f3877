// Package packager turns a finalized snapshot file into a transport-safe
// payload: base64(gzip(bytes)). It only reads; the source file is left
// where it is.
package packager

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/use-agent/pagesnap/models"
	"github.com/use-agent/pagesnap/probe"
	"github.com/use-agent/pagesnap/simhash"
)

// Payload is a packaged snapshot.
type Payload struct {
	Filename       string
	Content        string
	Size           int64
	CompressedSize int
	Fingerprint    string
}

// Options tunes packaging.
type Options struct {
	// Level is the gzip level; 0 selects gzip.DefaultCompression.
	Level int

	// MaxBytes rejects larger files; 0 means no limit.
	MaxBytes int64
}

// Packager is safe for concurrent use.
type Packager struct {
	level    int
	maxBytes int64
}

// New creates a Packager.
func New(opts Options) *Packager {
	level := opts.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return &Packager{level: level, maxBytes: opts.MaxBytes}
}

// Package reads f in full and encodes it. Any read failure is returned as
// an ErrCodeReadFailure SnapshotError.
func (p *Packager) Package(f probe.ObservedFile) (*Payload, error) {
	raw, err := p.read(f.Path)
	if err != nil {
		return nil, models.NewSnapshotError(models.ErrCodeReadFailure,
			fmt.Sprintf("cannot read %s", f.Name), err)
	}

	content, compressed, err := p.encode(raw)
	if err != nil {
		return nil, models.NewSnapshotError(models.ErrCodeInternal, "compression failed", err)
	}

	return &Payload{
		Filename:       f.Name,
		Content:        content,
		Size:           int64(len(raw)),
		CompressedSize: compressed,
		Fingerprint:    simhash.Hex(simhash.FingerprintDOM(raw)),
	}, nil
}

func (p *Packager) read(path string) ([]byte, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var r io.Reader = fh
	if p.maxBytes > 0 {
		r = io.LimitReader(fh, p.maxBytes+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if p.maxBytes > 0 && int64(len(raw)) > p.maxBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", p.maxBytes)
	}
	return raw, nil
}

// Encode compresses raw with the given gzip level and base64-encodes it.
func Encode(raw []byte, level int) (string, error) {
	s, _, err := New(Options{Level: level}).encode(raw)
	return s, err
}

func (p *Packager) encode(raw []byte) (string, int, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, p.level)
	if err != nil {
		return "", 0, err
	}
	if _, err := zw.Write(raw); err != nil {
		return "", 0, err
	}
	if err := zw.Close(); err != nil {
		return "", 0, err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), buf.Len(), nil
}

// Decode reverses Encode and returns the original bytes.
func Decode(content string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("packager: base64: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("packager: gzip header: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("packager: gzip body: %w", err)
	}
	return raw, nil
}
