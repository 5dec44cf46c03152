package modelcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/lehigh-university-libraries/furnisher/internal/model3d"
)

const (
	// IndexFileName is the well-known name of the persisted index
	IndexFileName = "index.json"

	// BlobExt is appended to an item name to get its blob file name
	BlobExt = ".glb"
)

// Index records which catalogs were scanned and what they held. It is a
// hint only: a listed item may still be missing its blob.
type Index struct {
	Complete map[string]bool     `json:"complete"`
	Items    map[string][]string `json:"items"`
	// Sources maps an item name to the detail page it was found on
	Sources map[string]string `json:"sources"`
}

func newIndex() Index {
	return Index{
		Complete: make(map[string]bool),
		Items:    make(map[string][]string),
		Sources:  make(map[string]string),
	}
}

// Cache holds decoded assets in memory and the index plus model blobs on a Backend.
// The in-memory asset table is the only authority on what has been decoded.
type Cache struct {
	backend Backend

	mu     sync.RWMutex
	index  Index
	assets map[string]*model3d.Asset

	// serializes index writes so the newest snapshot is the one left on disk
	persistMu sync.Mutex
}

// Open creates a cache on backend and loads its index. An unreadable index
// is logged and treated as empty.
func Open(backend Backend) *Cache {
	c := &Cache{
		backend: backend,
		index:   newIndex(),
		assets:  make(map[string]*model3d.Asset),
	}
	c.loadIndex()
	return c
}

func (c *Cache) loadIndex() {
	data, err := c.backend.ReadFile(IndexFileName)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Unable to read cache index", "error", err)
		}
		return
	}

	idx := newIndex()
	if err := json.Unmarshal(data, &idx); err != nil {
		slog.Warn("Ignoring corrupt cache index", "error", err)
		return
	}
	if idx.Complete == nil {
		idx.Complete = make(map[string]bool)
	}
	if idx.Items == nil {
		idx.Items = make(map[string][]string)
	}
	if idx.Sources == nil {
		idx.Sources = make(map[string]string)
	}

	c.mu.Lock()
	c.index = idx
	c.mu.Unlock()
	slog.Debug("Loaded cache index", "catalogs", len(idx.Items))
}

// Lookup returns what the index says about catalogURL. ok is false when the
// catalog was never scanned.
func (c *Cache) Lookup(catalogURL string) (complete bool, names []string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names, ok = c.index.Items[catalogURL]
	return c.index.Complete[catalogURL], slices.Clone(names), ok
}

// Begin resets catalogURL to incomplete with no items ahead of a fresh scan
func (c *Cache) Begin(catalogURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.Complete[catalogURL] = false
	c.index.Items[catalogURL] = []string{}
}

// RecordDiscovered appends name to catalogURL's item list and remembers
// where it came from. Returns false if the name was already listed.
func (c *Cache) RecordDiscovered(catalogURL, name, sourceURL string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sourceURL != "" {
		c.index.Sources[name] = sourceURL
	}
	if slices.Contains(c.index.Items[catalogURL], name) {
		return false
	}
	c.index.Items[catalogURL] = append(c.index.Items[catalogURL], name)
	return true
}

// MarkComplete flags catalogURL as fully resolved
func (c *Cache) MarkComplete(catalogURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index.Complete[catalogURL] = true
}

// Source returns the detail page an item was discovered on
func (c *Cache) Source(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src, ok := c.index.Sources[name]
	return src, ok
}

// Persist rewrites the whole index file
func (c *Cache) Persist() error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.RLock()
	data, err := json.MarshalIndent(c.index, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode cache index: %w", err)
	}

	if err := c.backend.WriteFile(IndexFileName, data); err != nil {
		return fmt.Errorf("failed to save cache index: %w", err)
	}
	return nil
}

// Clear deletes every blob and the index file and empties all in-memory state.
// Work already in flight may repopulate the cache afterwards.
func (c *Cache) Clear() error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	blobs, err := c.backend.List(BlobExt)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list blobs: %w", err))
	}
	for _, b := range blobs {
		if err := c.backend.Remove(b); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", b, err))
		}
	}
	if err := c.backend.Remove(IndexFileName); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove index: %w", err))
	}

	c.index = newIndex()
	c.assets = make(map[string]*model3d.Asset)

	slog.Info("Cleared model cache", "blobs_removed", len(blobs))
	return errors.Join(errs...)
}

// Asset returns the decoded asset for name
func (c *Cache) Asset(name string) (*model3d.Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.assets[name]
	return a, ok
}

// StoreAsset records a decoded asset
func (c *Cache) StoreAsset(name string, asset *model3d.Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets[name] = asset
}

// BlobName is the file an item's model is stored under
func BlobName(name string) string {
	return name + BlobExt
}

// HasBlob checks the backend, never the index
func (c *Cache) HasBlob(name string) bool {
	return c.backend.Exists(BlobName(name))
}

func (c *Cache) ReadBlob(name string) ([]byte, error) {
	return c.backend.ReadFile(BlobName(name))
}

// WriteBlob stores data atomically; concurrent writers of the same name leave the last one
func (c *Cache) WriteBlob(name string, data []byte) error {
	return c.backend.WriteFile(BlobName(name), data)
}

func (c *Cache) RemoveBlob(name string) error {
	return c.backend.Remove(BlobName(name))
}
