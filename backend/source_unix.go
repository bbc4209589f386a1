//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package backend

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// sourceFile is a read-only view of the filesystem image, backed by
// pread(2) so that concurrent-looking random access never disturbs a
// shared file offset and never requires a preceding Seek.
type sourceFile struct {
	f  *os.File
	fd int
}

// OpenSource opens path read-only for use as the XFS source image.
func OpenSource(path string) (Reader, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open source image %s: %w", path, err)
	}
	return &sourceFile{f: f, fd: int(f.Fd())}, nil
}

func (s *sourceFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := unix.Pread(s.fd, p, off)
	if err != nil {
		return n, fmt.Errorf("pread at offset %d: %w", off, err)
	}
	return n, nil
}

func (s *sourceFile) Close() error {
	return s.f.Close()
}
