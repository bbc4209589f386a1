//go:build windows

package backend

import (
	"fmt"
	"os"
)

// sourceFile is a read-only view of the filesystem image on platforms
// without pread(2); falls back to the standard library's ReaderAt,
// which os.File implements with an internal, per-call positioned read.
type sourceFile struct {
	f *os.File
}

// OpenSource opens path read-only for use as the XFS source image.
func OpenSource(path string) (Reader, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open source image %s: %w", path, err)
	}
	return &sourceFile{f: f}, nil
}

func (s *sourceFile) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *sourceFile) Close() error {
	return s.f.Close()
}
