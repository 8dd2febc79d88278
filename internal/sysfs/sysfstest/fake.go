// Package sysfstest provides an in-memory sysfs.FileSystem for tests.
package sysfstest

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

// FakeFS keeps attribute contents in memory and records every write made
// through handles returned by OpenFile.
type FakeFS struct {
	mu     sync.Mutex
	files  map[string][]byte
	writes map[string][]string

	// WriteErr, when set, is returned by writes to any open handle.
	WriteErr error
}

// New returns an empty FakeFS.
func New() *FakeFS {
	return &FakeFS{
		files:  map[string][]byte{},
		writes: map[string][]string{},
	}
}

// Set stores the content of a file, creating its parents implicitly.
func (f *FakeFS) Set(p, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[p] = []byte(content)
}

// Remove deletes a file.
func (f *FakeFS) Remove(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, p)
}

// Writes returns every value written to p, in order.
func (f *FakeFS) Writes(p string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes[p]...)
}

func (f *FakeFS) ReadFile(p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.files[p]; ok {
		return append([]byte(nil), b...), nil
	}
	return nil, fmt.Errorf("open %s: %w", p, os.ErrNotExist)
}

func (f *FakeFS) ReadDir(dir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	prefix := strings.TrimSuffix(dir, "/") + "/"
	for p := range f.files {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(rest, "/")
		seen[name] = true
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("open %s: %w", dir, os.ErrNotExist)
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *FakeFS) OpenFile(p string, _ int, _ os.FileMode) (io.WriteCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[p]; !ok {
		return nil, fmt.Errorf("open %s: %w", p, os.ErrNotExist)
	}
	return &handle{fs: f, path: p}, nil
}

func (f *FakeFS) Glob(pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.files {
		if ok, err := path.Match(pattern, p); err != nil {
			return nil, err
		} else if ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

type handle struct {
	fs     *FakeFS
	path   string
	closed bool
}

func (h *handle) Write(b []byte) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return 0, os.ErrClosed
	}
	if h.fs.WriteErr != nil {
		return 0, h.fs.WriteErr
	}
	h.fs.writes[h.path] = append(h.fs.writes[h.path], string(b))
	h.fs.files[h.path] = append([]byte(nil), b...)
	return len(b), nil
}

func (h *handle) Close() error {
	h.closed = true
	return nil
}
