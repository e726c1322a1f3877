package browser

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// crxMagic opens every packed Chrome extension.
var crxMagic = []byte("Cr24")

// ExtensionID returns the id Chrome assigns to an unpacked extension
// loaded from path: the first 32 hex digits of sha256(path), each digit
// mapped onto 'a'..'p'.
func ExtensionID(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	digits := hex.EncodeToString(sum[:])[:32]

	var b strings.Builder
	b.Grow(32)
	for _, d := range digits {
		switch {
		case d >= '0' && d <= '9':
			b.WriteByte(byte('a' + d - '0'))
		default:
			b.WriteByte(byte('a' + 10 + d - 'a'))
		}
	}
	return b.String()
}

// UnpackCRX extracts the packed extension at crx into dest. Both CRX2 and
// CRX3 headers are understood; a plain zip is accepted as well.
func UnpackCRX(crx, dest string) error {
	data, err := os.ReadFile(crx)
	if err != nil {
		return fmt.Errorf("read extension: %w", err)
	}
	archive, err := crxArchive(data)
	if err != nil {
		return err
	}
	// ErrInsecurePath still yields a usable reader; extract rejects those
	// entries itself.
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("invalid or corrupted extension file: %w", err)
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create extension dir: %w", err)
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		if err := extract(f, root); err != nil {
			return err
		}
	}
	return nil
}

// crxArchive strips the CRX header and returns the embedded zip.
func crxArchive(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, crxMagic) {
		return data, nil
	}
	if len(data) < 12 {
		return nil, fmt.Errorf("invalid or corrupted extension file: short header")
	}
	version := binary.LittleEndian.Uint32(data[4:8])

	var offset uint64
	switch version {
	case 2:
		if len(data) < 16 {
			return nil, fmt.Errorf("invalid or corrupted extension file: short header")
		}
		keyLen := binary.LittleEndian.Uint32(data[8:12])
		sigLen := binary.LittleEndian.Uint32(data[12:16])
		offset = 16 + uint64(keyLen) + uint64(sigLen)
	case 3:
		headerLen := binary.LittleEndian.Uint32(data[8:12])
		offset = 12 + uint64(headerLen)
	default:
		return nil, fmt.Errorf("invalid or corrupted extension file: crx version %d", version)
	}
	if offset > uint64(len(data)) {
		return nil, fmt.Errorf("invalid or corrupted extension file: header overruns file")
	}
	return data[offset:], nil
}

func extract(f *zip.File, root string) error {
	target := filepath.Join(root, filepath.FromSlash(f.Name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return fmt.Errorf("extension entry %q escapes %s", f.Name, root)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return out.Close()
}
