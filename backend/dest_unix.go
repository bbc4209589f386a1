//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package backend

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// destFile is a recovered output file, opened for sparse, non-truncating
// writes at arbitrary offsets via pwrite(2).
type destFile struct {
	f  *os.File
	fd int
}

// CreateDest opens (creating if needed) path for recovery output. An
// existing file at path is never truncated: each write replaces only the
// bytes in its own range, so the offset-0 probe block can later be
// rewritten by the full first-extent copy without losing other data.
func CreateDest(path string) (Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create recovery output %s: %w", path, err)
	}
	return &destFile{f: f, fd: int(f.Fd())}, nil
}

func (d *destFile) WriteAt(p []byte, off int64) (int, error) {
	n, err := unix.Pwrite(d.fd, p, off)
	if err != nil {
		return n, fmt.Errorf("pwrite at offset %d: %w", off, err)
	}
	return n, nil
}

func (d *destFile) Close() error {
	return d.f.Close()
}
