// Package testutil serves a fake furniture catalog over HTTP for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Product is one item listed by the fake catalog
type Product struct {
	Name string
	// NoModel omits the 3DModel JSON-LD block from the detail page
	NoModel bool
	// Model is served as the item's glTF binary
	Model []byte
	// BrokenDetail makes the detail page return 500
	BrokenDetail bool
}

// CatalogServer lists Products PageSize at a time under /catalog
type CatalogServer struct {
	*httptest.Server
	PageSize int

	mu       sync.Mutex
	products []Product
	hits     map[string]int
}

// NewCatalogServer starts a server that is closed when the test ends
func NewCatalogServer(t testing.TB, pageSize int, products ...Product) *CatalogServer {
	t.Helper()
	cs := &CatalogServer{
		PageSize: pageSize,
		products: products,
		hits:     make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/catalog", cs.handleListing)
	mux.HandleFunc("/p/", cs.handleDetail)
	mux.HandleFunc("/models/", cs.handleModel)
	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

// CatalogURL is the listing URL to scan
func (cs *CatalogServer) CatalogURL() string {
	return cs.URL + "/catalog"
}

// ItemURL is the detail page of product i
func (cs *CatalogServer) ItemURL(i int) string {
	return fmt.Sprintf("%s/p/item-%d", cs.URL, i)
}

// Hits returns how many requests were made to path
func (cs *CatalogServer) Hits(path string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.hits[path]
}

// TotalHits returns the number of requests served
func (cs *CatalogServer) TotalHits() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	total := 0
	for _, n := range cs.hits {
		total += n
	}
	return total
}

func (cs *CatalogServer) hit(path string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.hits[path]++
}

func (cs *CatalogServer) product(path, prefix string) (int, Product, bool) {
	slug := strings.TrimSuffix(strings.TrimPrefix(path, prefix), ".glb")
	i, err := strconv.Atoi(strings.TrimPrefix(slug, "item-"))
	if err != nil || i < 0 || i >= len(cs.products) {
		return 0, Product{}, false
	}
	return i, cs.products[i], true
}

func (cs *CatalogServer) handleListing(w http.ResponseWriter, r *http.Request) {
	cs.hit(r.URL.Path)
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	start := (page - 1) * cs.PageSize
	var entries []string
	for i := start; i < start+cs.PageSize && i < len(cs.products); i++ {
		entries = append(entries, fmt.Sprintf(`{"name": %q, "url": %q}`, cs.products[i].Name, cs.ItemURL(i)))
	}
	fmt.Fprintf(w, `<html><body><script>window.listing = {"products": [%s]};</script></body></html>`, strings.Join(entries, ","))
}

func (cs *CatalogServer) handleDetail(w http.ResponseWriter, r *http.Request) {
	cs.hit(r.URL.Path)
	i, p, ok := cs.product(r.URL.Path, "/p/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if p.BrokenDetail {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}

	product, _ := json.Marshal(map[string]any{"@type": "Product", "name": p.Name})
	fmt.Fprintf(w, "<html><head><script type=\"application/ld+json\">%s</script>", product)
	if !p.NoModel {
		model, _ := json.Marshal(map[string]any{
			"@type": "3DModel",
			"name":  p.Name,
			"encoding": []map[string]string{
				{"@type": "MediaObject", "encodingFormat": "model/gltf-binary", "contentUrl": fmt.Sprintf("%s/models/item-%d.glb", cs.URL, i)},
			},
		})
		fmt.Fprintf(w, "<script type=\"application/ld+json\">%s</script>", model)
	}
	fmt.Fprintf(w, "</head><body><h1 class=\"product-title\">%s</h1></body></html>", p.Name)
}

func (cs *CatalogServer) handleModel(w http.ResponseWriter, r *http.Request) {
	cs.hit(r.URL.Path)
	_, p, ok := cs.product(r.URL.Path, "/models/")
	if !ok || p.NoModel {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "model/gltf-binary")
	_, _ = w.Write(p.Model)
}
