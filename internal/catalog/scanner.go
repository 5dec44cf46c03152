package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultListingPattern matches item page links embedded in a listing page's JSON
var DefaultListingPattern = regexp.MustCompile(`"url"\s*:\s*"(?P<url>https?://[^"]+/p/[^"]+)"`)

const (
	DefaultPageConcurrency = 8
	DefaultMaxPages        = 50
)

// ItemReference points at an accepted item's detail page
type ItemReference struct {
	URL        string
	Name       string // product name, the key of the scanner's seen set
	CatalogURL string

	// ModelName and ModelURL come from FindModel on the same page. Empty when
	// the page has a model block but no glTF binary.
	ModelName string
	ModelURL  string
}

// ScannerConfig configures a Scanner
type ScannerConfig struct {
	// PageConcurrency bounds concurrent detail fetches within one page
	PageConcurrency int
	// MaxPages stops a scan on catalogs that never run out of pages
	MaxPages int
	// ListingPattern extracts item URLs from a listing page. A group named
	// "url" is used when present, otherwise the first group.
	ListingPattern *regexp.Regexp
}

// Scanner walks paginated catalog listings looking for items that have a 3D model.
// The set of accepted names is shared by every scan run through the same Scanner.
type Scanner struct {
	client *Client
	cfg    ScannerConfig

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewScanner creates a scanner
func NewScanner(client *Client, cfg ScannerConfig) *Scanner {
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = DefaultPageConcurrency
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.ListingPattern == nil {
		cfg.ListingPattern = DefaultListingPattern
	}
	return &Scanner{
		client: client,
		cfg:    cfg,
		seen:   make(map[string]struct{}),
	}
}

// Discover scans catalogURL and streams up to maxItems accepted items on the
// returned channel, which is closed when the scan ends. The caller must drain
// the channel or cancel ctx.
func (s *Scanner) Discover(ctx context.Context, catalogURL string, maxItems int) <-chan ItemReference {
	out := make(chan ItemReference)
	go func() {
		defer close(out)
		if maxItems <= 0 {
			return
		}
		sc := &scan{
			scanner:    s,
			catalogURL: catalogURL,
			maxItems:   maxItems,
			out:        out,
			visited:    make(map[string]struct{}),
		}
		sc.run(ctx)
	}()
	return out
}

// Reset forgets every accepted name
func (s *Scanner) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
}

// Forget lets the given names be accepted again by a later scan
func (s *Scanner) Forget(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		delete(s.seen, n)
	}
}

func (s *Scanner) markSeen(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[name]; ok {
		return false
	}
	s.seen[name] = struct{}{}
	return true
}

func (s *Scanner) candidates(page []byte) []string {
	group := s.cfg.ListingPattern.SubexpIndex("url")
	if group < 0 {
		group = 1
	}
	if group >= s.cfg.ListingPattern.NumSubexp()+1 {
		group = 0
	}

	var urls []string
	dedup := make(map[string]struct{})
	for _, m := range s.cfg.ListingPattern.FindAllSubmatch(page, -1) {
		u := string(m[group])
		if _, ok := dedup[u]; ok {
			continue
		}
		dedup[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

// PageURL sets the page query parameter on a listing URL
func PageURL(catalogURL string, page int) (string, error) {
	u, err := url.Parse(catalogURL)
	if err != nil {
		return "", fmt.Errorf("invalid catalog url %q: %w", catalogURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid catalog url %q: missing scheme or host", catalogURL)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type scan struct {
	scanner    *Scanner
	catalogURL string
	maxItems   int
	out        chan<- ItemReference

	mu       sync.Mutex
	accepted int

	// only touched by the goroutine driving the page loop
	visited map[string]struct{}
}

func (sc *scan) full() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.accepted >= sc.maxItems
}

func (sc *scan) run(ctx context.Context) {
	s := sc.scanner
	for page := 1; page <= s.cfg.MaxPages; page++ {
		if sc.full() || ctx.Err() != nil {
			return
		}

		pageURL, err := PageURL(sc.catalogURL, page)
		if err != nil {
			slog.Error("Aborting catalog scan", "catalog", sc.catalogURL, "error", err)
			return
		}

		body, err := s.client.Get(ctx, pageURL)
		if err != nil {
			slog.Warn("Failed to fetch catalog page", "url", pageURL, "error", err)
			return
		}

		var fresh []string
		for _, c := range s.candidates(body) {
			if _, ok := sc.visited[c]; ok {
				continue
			}
			sc.visited[c] = struct{}{}
			fresh = append(fresh, c)
		}
		if len(fresh) == 0 {
			slog.Debug("Catalog exhausted", "catalog", sc.catalogURL, "page", page)
			return
		}
		slog.Debug("Scanning catalog page", "catalog", sc.catalogURL, "page", page, "candidates", len(fresh))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.PageConcurrency)
		for _, itemURL := range fresh {
			if sc.full() {
				break
			}
			g.Go(func() error {
				sc.inspect(gctx, itemURL)
				return nil
			})
		}
		_ = g.Wait()
	}
	if !sc.full() {
		slog.Warn("Catalog scan hit page limit", "catalog", sc.catalogURL, "max_pages", s.cfg.MaxPages)
	}
}

func (sc *scan) inspect(ctx context.Context, itemURL string) {
	if sc.full() {
		return
	}

	body, err := sc.scanner.client.Get(ctx, itemURL)
	if err != nil {
		slog.Warn("Failed to fetch item page", "url", itemURL, "error", err)
		return
	}

	blocks := ParseBlocks(body)
	name := ProductName(body, blocks)
	if name == "" || !HasModel(blocks) {
		slog.Debug("Item has no 3D model", "url", itemURL, "name", name)
		return
	}

	sc.mu.Lock()
	if sc.accepted >= sc.maxItems || !sc.scanner.markSeen(name) {
		sc.mu.Unlock()
		return
	}
	sc.accepted++
	sc.mu.Unlock()

	ref := ItemReference{URL: itemURL, Name: name, CatalogURL: sc.catalogURL}
	ref.ModelName, ref.ModelURL, _ = FindModel(blocks)
	select {
	case sc.out <- ref:
	case <-ctx.Done():
	}
}
