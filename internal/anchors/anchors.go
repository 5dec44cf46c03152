// Package anchors resolves durable spatial anchors. On a headset these come
// from the device's anchor store; FileStore keeps them in a YAML file so
// layouts can be exercised without one.
package anchors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/furnisher/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no requested anchor exists
var ErrNotFound = errors.New("anchor not found")

// Anchor is a bound, live anchor that models can be parented to
type Anchor struct {
	ID    uuid.UUID
	Label string
	Pose  models.Pose
}

// Unbound is a loaded anchor that has not been localized or bound yet
type Unbound interface {
	UUID() uuid.UUID
	// Localize finds the anchor in the current space. false means it could not be found.
	Localize(ctx context.Context) (bool, error)
	BindTo(label string) *Anchor
}

// Store loads and creates anchors
type Store interface {
	LoadUnbound(ctx context.Context, ids []uuid.UUID) ([]Unbound, error)
	Create(ctx context.Context, label string, pose models.Pose) (*Anchor, error)
}

type record struct {
	ID    string      `yaml:"id"`
	Label string      `yaml:"label,omitempty"`
	Pose  models.Pose `yaml:"pose"`
	// Lost anchors load but never localize
	Lost bool `yaml:"lost,omitempty"`
}

type document struct {
	Anchors []record `yaml:"anchors"`
}

// FileStore keeps anchors in a YAML document
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) read() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return doc, fmt.Errorf("failed to read anchors: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse anchors: %w", err)
	}
	return doc, nil
}

func (s *FileStore) write(doc document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode anchors: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create anchors directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write anchors: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move anchors file: %w", err)
	}
	return nil
}

// LoadUnbound returns the stored anchors among ids, in file order
func (s *FileStore) LoadUnbound(ctx context.Context, ids []uuid.UUID) ([]Unbound, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	doc, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	var found []Unbound
	for _, rec := range doc.Anchors {
		id, err := uuid.Parse(rec.ID)
		if err != nil {
			continue
		}
		if _, ok := want[id]; ok {
			found = append(found, &fileAnchor{id: id, rec: rec})
		}
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found, nil
}

// Create stores a new anchor at pose
func (s *FileStore) Create(ctx context.Context, label string, pose models.Pose) (*Anchor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	a := &Anchor{ID: uuid.New(), Label: label, Pose: pose}
	doc.Anchors = append(doc.Anchors, record{ID: a.ID.String(), Label: label, Pose: pose})
	if err := s.write(doc); err != nil {
		return nil, err
	}
	return a, nil
}

type fileAnchor struct {
	id  uuid.UUID
	rec record
}

func (a *fileAnchor) UUID() uuid.UUID {
	return a.id
}

func (a *fileAnchor) Localize(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !a.rec.Lost, nil
}

func (a *fileAnchor) BindTo(label string) *Anchor {
	return &Anchor{ID: a.id, Label: label, Pose: a.rec.Pose}
}
