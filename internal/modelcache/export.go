package modelcache

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/parquet-go/parquet-go"
)

// Entry is one item of one catalog as seen by the cache
type Entry struct {
	CatalogURL string `json:"catalog_url" parquet:"catalog_url"`
	Position   int    `json:"position" parquet:"position"`
	ItemName   string `json:"item_name" parquet:"item_name"`
	SourceURL  string `json:"source_url" parquet:"source_url"`
	Complete   bool   `json:"complete" parquet:"complete"`
	Cached     bool   `json:"cached" parquet:"cached"`   // blob on disk
	Decoded    bool   `json:"decoded" parquet:"decoded"` // asset in memory
}

// Entries lists every indexed item ordered by catalog then discovery order
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	urls := make([]string, 0, len(c.index.Items))
	for u := range c.index.Items {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	entries := []Entry{}
	for _, u := range urls {
		for i, name := range c.index.Items[u] {
			_, decoded := c.assets[name]
			entries = append(entries, Entry{
				CatalogURL: u,
				Position:   i,
				ItemName:   name,
				SourceURL:  c.index.Sources[name],
				Complete:   c.index.Complete[u],
				Decoded:    decoded,
			})
		}
	}
	c.mu.RUnlock()

	for i := range entries {
		entries[i].Cached = c.HasBlob(entries[i].ItemName)
	}
	return entries
}

// ExportParquet writes Entries to a parquet file and returns the row count
func (c *Cache) ExportParquet(path string) (int, error) {
	entries := c.Entries()
	if err := parquet.WriteFile(path, entries); err != nil {
		return 0, fmt.Errorf("failed to write parquet export: %w", err)
	}
	slog.Info("Exported cache index", "path", path, "rows", len(entries))
	return len(entries), nil
}
