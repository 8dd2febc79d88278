package sysfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ClassBacklight is the default backlight class directory.
const ClassBacklight = "/sys/class/backlight"

// ErrNotFound is returned when no device name matches a pattern.
var ErrNotFound = errors.New("no matching device")

// ListDevices returns the device names under a class directory, sorted.
func ListDevices(classDir string) ([]string, error) {
	names, err := FS.ReadDir(classDir)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// FindDevice returns the path of the first device under classDir whose name
// contains pattern.
func FindDevice(classDir, pattern string) (string, error) {
	names, err := ListDevices(classDir)
	if err != nil {
		return "", err
	}
	for _, name := range names {
		if strings.Contains(name, pattern) {
			return filepath.Join(classDir, name), nil
		}
	}
	return "", fmt.Errorf("%q in %s: %w", pattern, classDir, ErrNotFound)
}

// ReadAttr reads a single non-negative integer attribute of a device.
func ReadAttr(dir, attr string) (uint32, error) {
	data, err := FS.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", attr, err)
	}
	return uint32(v), nil
}

// Attr is a write handle on a device attribute.
type Attr struct {
	path string
	f    io.WriteCloser
}

// OpenAttr opens a device attribute for writing.
func OpenAttr(dir, attr string) (*Attr, error) {
	path := filepath.Join(dir, attr)
	f, err := FS.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, err
	}
	return &Attr{path: path, f: f}, nil
}

// Path returns the attribute's file path.
func (a *Attr) Path() string { return a.path }

// WriteUint writes v as one line of decimal text.
func (a *Attr) WriteUint(v uint32) error {
	buf := strconv.AppendUint(nil, uint64(v), 10)
	_, err := a.f.Write(append(buf, '\n'))
	return err
}

func (a *Attr) Close() error { return a.f.Close() }
