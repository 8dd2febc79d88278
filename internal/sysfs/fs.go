// Package sysfs provides device discovery and attribute I/O over the
// kernel's sysfs class directories.
package sysfs

import (
	"io"
	"os"
	"path/filepath"
)

// FileSystem abstracts the file operations used against sysfs and /dev nodes.
// Tests can replace `FS` with a fake implementation.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	ReadDir(path string) ([]string, error)
	OpenFile(path string, flag int, perm os.FileMode) (io.WriteCloser, error)
	Glob(pattern string) ([]string, error)
}

type defaultFS struct{}

func (defaultFS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (defaultFS) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (defaultFS) OpenFile(path string, flag int, perm os.FileMode) (io.WriteCloser, error) {
	return os.OpenFile(path, flag, perm)
}

func (defaultFS) Glob(pattern string) ([]string, error) { return filepath.Glob(pattern) }

// FS is the package-level FileSystem used by code accessing sysfs. Tests may replace it.
var FS FileSystem = defaultFS{}
