package modelcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidName is returned for names that would leave the backend's directory
var ErrInvalidName = errors.New("invalid cache file name")

// Backend stores the cache's flat files
type Backend interface {
	ReadFile(name string) ([]byte, error)
	// WriteFile replaces name atomically
	WriteFile(name string, data []byte) error
	Exists(name string) bool
	// Remove deletes name; a missing file is not an error
	Remove(name string) error
	// List returns the names ending in suffix
	List(suffix string) ([]string, error)
}

// DirBackend keeps every file directly in Dir
type DirBackend struct {
	Dir string
}

// NewDirBackend creates dir if needed
func NewDirBackend(dir string) (*DirBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &DirBackend{Dir: dir}, nil
}

// path maps name to a file directly inside Dir
func (d *DirBackend) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	p := filepath.Join(d.Dir, name)
	if filepath.Dir(p) != filepath.Clean(d.Dir) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return p, nil
}

func (d *DirBackend) ReadFile(name string) ([]byte, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// WriteFile writes to a temp file in the same directory and renames it into place
func (d *DirBackend) WriteFile(name string, data []byte) error {
	dest, err := d.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.Dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move file: %w", err)
	}

	success = true
	return nil
}

func (d *DirBackend) Exists(name string) bool {
	p, err := d.path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func (d *DirBackend) Remove(name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (d *DirBackend) List(suffix string) ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
