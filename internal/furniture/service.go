// Package furniture runs catalog requests end to end: it scans a listing,
// acquires each accepted item's model, keeps the cache index current and
// feeds resolved models to the request's placeholders.
package furniture

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/furnisher/internal/acquire"
	"github.com/lehigh-university-libraries/furnisher/internal/catalog"
	"github.com/lehigh-university-libraries/furnisher/internal/events"
	"github.com/lehigh-university-libraries/furnisher/internal/model3d"
	"github.com/lehigh-university-libraries/furnisher/internal/modelcache"
	"github.com/lehigh-university-libraries/furnisher/internal/models"
	"github.com/lehigh-university-libraries/furnisher/internal/spawn"
	"github.com/lehigh-university-libraries/furnisher/internal/storage"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxItems    = 10
	defaultConcurrency = 4
)

// Options wires a Service. Display may be nil.
type Options struct {
	Cache    *modelcache.Cache
	Scanner  *catalog.Scanner
	Acquirer *acquire.Acquirer
	Requests *storage.RequestStore
	Bus      *events.Bus
	Display  spawn.Display

	// MaxItems caps how many items one catalog request acquires
	MaxItems int
	// Concurrency bounds how many accepted items are acquired at once
	Concurrency int
}

type Service struct {
	cache       *modelcache.Cache
	scanner     *catalog.Scanner
	acquirer    *acquire.Acquirer
	requests    *storage.RequestStore
	reconciler  *spawn.Reconciler
	detach      func()
	maxItems    int
	concurrency int
}

func NewService(opts Options) *Service {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Requests == nil {
		opts.Requests = storage.New()
	}

	s := &Service{
		cache:       opts.Cache,
		scanner:     opts.Scanner,
		acquirer:    opts.Acquirer,
		requests:    opts.Requests,
		maxItems:    opts.MaxItems,
		concurrency: opts.Concurrency,
	}
	s.reconciler = spawn.New(&trackingDisplay{requests: opts.Requests, next: opts.Display})
	s.detach = func() {}
	if opts.Bus != nil {
		s.detach = s.reconciler.Attach(opts.Bus)
	}
	return s
}

// Close unsubscribes the service from the bus
func (s *Service) Close() {
	s.detach()
}

// Requests is the registry every catalog request is tracked in
func (s *Service) Requests() *storage.RequestStore {
	return s.requests
}

// Request runs a catalog request to completion and returns its final state
func (s *Service) Request(ctx context.Context, catalogURL string) (*models.CatalogRequest, error) {
	req, err := s.register(catalogURL)
	if err != nil {
		return nil, err
	}
	s.run(ctx, req.ID, catalogURL)
	final, _ := s.requests.Get(req.ID)
	return final, nil
}

// Start registers a catalog request and runs it in the background. The
// returned snapshot can be polled through Requests.
func (s *Service) Start(ctx context.Context, catalogURL string) (*models.CatalogRequest, error) {
	req, err := s.register(catalogURL)
	if err != nil {
		return nil, err
	}
	snapshot := req.Clone()
	go s.run(context.WithoutCancel(ctx), req.ID, catalogURL)
	return snapshot, nil
}

func (s *Service) register(catalogURL string) (*models.CatalogRequest, error) {
	if _, err := catalog.PageURL(catalogURL, 1); err != nil {
		return nil, fmt.Errorf("invalid catalog url: %w", err)
	}
	req := &models.CatalogRequest{
		ID:        uuid.NewString(),
		SourceURL: catalogURL,
		ItemNames: []string{},
		Resolved:  []string{},
		CreatedAt: time.Now(),
	}
	s.requests.Set(req.ID, req)
	return req, nil
}

func (s *Service) run(ctx context.Context, requestID, catalogURL string) {
	start := time.Now()
	defer func() {
		if n := s.reconciler.Release(requestID); n > 0 {
			slog.Debug("Released unfilled placeholders", "request", requestID, "count", n)
		}
		s.requests.Update(requestID, func(r *models.CatalogRequest) {
			r.Done = true
		})
		slog.Info("Catalog request finished", "request", requestID, "catalog", catalogURL, "duration", time.Since(start))
	}()

	complete, names, _ := s.cache.Lookup(catalogURL)
	if complete {
		s.replay(ctx, requestID, catalogURL, names)
		return
	}
	s.scan(ctx, requestID, catalogURL)
}

// replay serves a completed catalog from the cache without touching the listing
func (s *Service) replay(ctx context.Context, requestID, catalogURL string, names []string) {
	slog.Info("Loading catalog from cache", "request", requestID, "catalog", catalogURL, "items", len(names))
	s.requests.Update(requestID, func(r *models.CatalogRequest) {
		r.FromCache = true
		r.Complete = true
		r.ItemNames = append(r.ItemNames, names...)
	})

	for _, name := range names {
		s.reconciler.CreatePlaceholder(requestID, name)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, name := range names {
		g.Go(func() error {
			s.acquirer.Replay(gctx, requestID, name)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) scan(ctx context.Context, requestID, catalogURL string) {
	slog.Info("Scanning catalog", "request", requestID, "catalog", catalogURL, "max_items", s.maxItems)
	s.cache.Begin(catalogURL)

	var acquired atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for item := range s.scanner.Discover(ctx, catalogURL, s.maxItems) {
		g.Go(func() error {
			if s.acquireItem(gctx, requestID, item) {
				acquired.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if acquired.Load() > 0 {
		s.cache.MarkComplete(catalogURL)
		s.requests.Update(requestID, func(r *models.CatalogRequest) {
			r.Complete = true
		})
	} else {
		slog.Warn("No models acquired from catalog", "request", requestID, "catalog", catalogURL)
	}
	if err := s.cache.Persist(); err != nil {
		slog.Error("Unable to persist cache index", "catalog", catalogURL, "error", err)
	}
}

// acquireItem acquires a scanned item. Items that fail are forgotten by the
// scanner so a later request can pick them up again.
func (s *Service) acquireItem(ctx context.Context, requestID string, item catalog.ItemReference) bool {
	if item.ModelURL == "" {
		slog.Debug("No downloadable model on item page", "url", item.URL)
		s.scanner.Forget(item.Name)
		return false
	}
	ref := acquire.ModelRef{ItemURL: item.URL, Name: item.ModelName, ModelURL: item.ModelURL}

	if !s.cache.RecordDiscovered(item.CatalogURL, ref.Name, item.URL) {
		slog.Debug("Item already listed for catalog", "item", ref.Name, "url", item.URL)
		return false
	}
	s.requests.Update(requestID, func(r *models.CatalogRequest) {
		r.ItemNames = append(r.ItemNames, ref.Name)
	})
	s.reconciler.CreatePlaceholder(requestID, ref.Name)

	_, ok := s.acquirer.Acquire(ctx, requestID, ref)
	if !ok {
		s.scanner.Forget(item.Name)
	}
	if err := s.cache.Persist(); err != nil {
		slog.Warn("Unable to persist cache index", "item", ref.Name, "error", err)
	}
	return ok
}

// Ensure makes itemID's model available, announcing it on the bus with no
// request id. sourceURL is used when the cache has never seen the item.
// itemID is sanitized the same way scanned names are.
func (s *Service) Ensure(ctx context.Context, itemID, sourceURL string) bool {
	itemID = catalog.SanitizeName(itemID)
	_, known := s.cache.Source(itemID)
	if _, ok := s.cache.Asset(itemID); ok || known || s.cache.HasBlob(itemID) {
		_, ok := s.acquirer.Replay(ctx, "", itemID)
		return ok
	}
	if sourceURL == "" {
		slog.Warn("Item is not cached and has no source page", "item", itemID)
		return false
	}

	ref, ok := s.acquirer.Inspect(ctx, sourceURL)
	if !ok {
		return false
	}
	ref.Name = itemID
	_, ok = s.acquirer.Acquire(ctx, "", ref)
	return ok
}

// ClearCache empties the model cache and lets every item be discovered again
func (s *Service) ClearCache() error {
	err := s.cache.Clear()
	s.scanner.Reset()
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

// trackingDisplay records presentations on the request before passing them on
type trackingDisplay struct {
	requests *storage.RequestStore
	next     spawn.Display
}

func (d *trackingDisplay) Present(p *spawn.Placeholder, itemName string, asset *model3d.Asset) error {
	d.requests.Update(p.RequestID, func(r *models.CatalogRequest) {
		r.Resolved = append(r.Resolved, itemName)
	})
	if d.next == nil {
		return nil
	}
	return d.next.Present(p, itemName, asset)
}
