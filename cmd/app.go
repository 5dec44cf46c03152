package cmd

import (
	"fmt"

	"github.com/lehigh-university-libraries/furnisher/internal/acquire"
	"github.com/lehigh-university-libraries/furnisher/internal/anchors"
	"github.com/lehigh-university-libraries/furnisher/internal/catalog"
	"github.com/lehigh-university-libraries/furnisher/internal/config"
	"github.com/lehigh-university-libraries/furnisher/internal/events"
	"github.com/lehigh-university-libraries/furnisher/internal/furniture"
	"github.com/lehigh-university-libraries/furnisher/internal/layout"
	"github.com/lehigh-university-libraries/furnisher/internal/model3d"
	"github.com/lehigh-university-libraries/furnisher/internal/modelcache"
	"github.com/lehigh-university-libraries/furnisher/internal/scene"
)

// app is the fully wired pipeline shared by every command
type app struct {
	cfg     *config.Config
	cache   *modelcache.Cache
	bus     *events.Bus
	console *scene.Console
	service *furniture.Service
	layouts *layout.Store
	anchors *anchors.FileStore
	manager *layout.Manager

	detach func()
}

func newApp(cfg *config.Config, maxItems int) (*app, error) {
	backend, err := modelcache.NewDirBackend(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open model cache: %w", err)
	}
	if maxItems <= 0 {
		maxItems = cfg.MaxItems
	}

	a := &app{
		cfg:     cfg,
		cache:   modelcache.Open(backend),
		bus:     events.NewBus(),
		console: scene.NewConsole(),
		layouts: layout.NewStore(cfg.LayoutDir),
		anchors: anchors.NewFileStore(cfg.AnchorsFile),
	}

	client := catalog.NewClient(cfg.HTTPTimeout, cfg.UserAgent)
	scanner := catalog.NewScanner(client, catalog.ScannerConfig{
		PageConcurrency: cfg.PageConcurrency,
		MaxPages:        cfg.MaxPages,
		ListingPattern:  cfg.ListingPattern,
	})
	a.service = furniture.NewService(furniture.Options{
		Cache:    a.cache,
		Scanner:  scanner,
		Acquirer: acquire.New(client, a.cache, model3d.GLBDecoder{}, a.bus),
		Bus:      a.bus,
		Display:  a.console,
		MaxItems: maxItems,
	})
	a.manager = layout.NewManager(a.layouts, a.anchors, a.console, a.service)
	a.detach = a.manager.Attach(a.bus)
	return a, nil
}

func (a *app) Close() {
	a.detach()
	a.service.Close()
}
