// Package textio opens model text files for reading and replaces output
// files atomically. Files saved by
// spreadsheet tools often carry a byte order mark or are UTF-16; readers
// returned here always yield plain UTF-8.
package textio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// NewReader wraps r so that a leading UTF-8 or UTF-16 byte order mark is
// consumed and the content is decoded to UTF-8. Input without a mark passes
// through unchanged.
func NewReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// ReadFile reads path and returns its UTF-8 content.
func ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b, err := io.ReadAll(NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

// Open opens path for streaming UTF-8 reads. The caller closes the result.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &readCloser{Reader: NewReader(f), Closer: f}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// WriteFileAtomic writes b to a temp file beside path and renames it into
// place, so readers see either the old file or the complete new one. The
// temp file is removed on failure.
func WriteFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".modelconv-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(b)
	if writeErr == nil {
		// CreateTemp uses 0600.
		writeErr = tmp.Chmod(0o644)
	}
	closeErr := tmp.Close()

	if writeErr != nil {
		_ = os.Remove(tmpName)
		return writeErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return closeErr
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
