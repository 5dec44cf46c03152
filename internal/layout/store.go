package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/furnisher/internal/models"
)

// ErrPersistence wraps every failure to save, load or list layouts
var ErrPersistence = errors.New("layout persistence failed")

// ErrInvalidName is returned alongside ErrPersistence for names that cannot be a file name
var ErrInvalidName = errors.New("invalid layout name")

const fileExt = ".json"

// Store keeps one JSON file per named layout in a directory
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name+fileExt), nil
}

// Save writes layout under name, replacing any earlier layout of that name.
// The file is written to a temp file and renamed so a failed save never
// leaves a truncated layout behind.
func (s *Store) Save(layout *models.Layout, name string) error {
	if err := s.save(layout, name); err != nil {
		slog.Error("Error saving layout", "name", name, "error", err)
		return fmt.Errorf("%w: saving %q: %w", ErrPersistence, name, err)
	}
	slog.Info("Layout saved", "name", name, "dir", s.dir)
	return nil
}

func (s *Store) save(layout *models.Layout, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if layout == nil {
		layout = models.NewLayout()
	}
	data, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create layouts directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
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
		return fmt.Errorf("failed to write layout: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to move layout into place: %w", err)
	}
	success = true
	return nil
}

// Load reads the layout stored under name. A missing layout returns nil, nil.
func (s *Store) Load(name string) (*models.Layout, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, fmt.Errorf("%w: loading %q: %w", ErrPersistence, name, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("No save file found", "path", path)
			return nil, nil
		}
		slog.Error("Error loading layout", "name", name, "error", err)
		return nil, fmt.Errorf("%w: loading %q: %w", ErrPersistence, name, err)
	}

	var layout models.Layout
	if err := json.Unmarshal(data, &layout); err != nil {
		slog.Error("Error loading layout", "name", name, "error", err)
		return nil, fmt.Errorf("%w: decoding %q: %w", ErrPersistence, name, err)
	}
	return &layout, nil
}

// List returns the names of every stored layout, sorted
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: listing layouts: %w", ErrPersistence, err)
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), fileExt))
	}
	sort.Strings(names)
	return names, nil
}
