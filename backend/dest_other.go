//go:build windows

package backend

import (
	"fmt"
	"os"
)

// destFile is a recovered output file on platforms without pwrite(2).
type destFile struct {
	f *os.File
}

// CreateDest opens (creating if needed) path for recovery output.
func CreateDest(path string) (Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create recovery output %s: %w", path, err)
	}
	return &destFile{f: f}, nil
}

func (d *destFile) WriteAt(p []byte, off int64) (int, error) {
	return d.f.WriteAt(p, off)
}

func (d *destFile) Close() error {
	return d.f.Close()
}
