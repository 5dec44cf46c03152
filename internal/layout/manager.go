package layout

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/furnisher/internal/anchors"
	"github.com/lehigh-university-libraries/furnisher/internal/catalog"
	"github.com/lehigh-university-libraries/furnisher/internal/events"
	"github.com/lehigh-university-libraries/furnisher/internal/model3d"
	"github.com/lehigh-university-libraries/furnisher/internal/models"
	"golang.org/x/sync/errgroup"
)

const defaultLoadConcurrency = 4

// Trigger starts acquisition of an item's model. The model is announced on
// the bus when it is ready, which may be before Ensure returns.
type Trigger interface {
	Ensure(ctx context.Context, itemID, sourceURL string) bool
}

// Scene instantiates a model parented to an anchor
type Scene interface {
	Spawn(asset *model3d.Asset, anchor *anchors.Anchor, rotation models.Quaternion, scale models.Vector3) error
}

// PendingSpawn is a placed item waiting for its model
type PendingSpawn struct {
	ItemID string
	Record models.PlacedItemRecord
	Anchor *anchors.Anchor
}

// LoadReport summarizes a layout load. Individual skipped records are only
// visible in the logs.
type LoadReport struct {
	Name    string `json:"name"`
	Found   bool   `json:"found"`
	Records int    `json:"records"`
	Queued  int    `json:"queued"`
	Skipped int    `json:"skipped"`
	// Waiting is the number of spawns still waiting for a model once the load returned
	Waiting int `json:"waiting"`
}

// Manager owns the layout being edited and rebuilds saved layouts
type Manager struct {
	store       *Store
	anchors     anchors.Store
	scene       Scene
	trigger     Trigger
	concurrency int

	mu      sync.Mutex
	pending map[string][]PendingSpawn
	current *models.Layout
	status  string
}

func NewManager(store *Store, anchorStore anchors.Store, scene Scene, trigger Trigger) *Manager {
	return &Manager{
		store:       store,
		anchors:     anchorStore,
		scene:       scene,
		trigger:     trigger,
		concurrency: defaultLoadConcurrency,
		pending:     make(map[string][]PendingSpawn),
		current:     models.NewLayout(),
	}
}

// Attach subscribes the manager to resolution events
func (m *Manager) Attach(bus *events.Bus) (detach func()) {
	return bus.Subscribe(m.HandleResolved)
}

// HandleResolved spawns every pending item waiting for ev's model
func (m *Manager) HandleResolved(ev events.Resolved) {
	m.mu.Lock()
	queue := m.pending[ev.ItemName]
	delete(m.pending, ev.ItemName)
	m.mu.Unlock()

	for _, p := range queue {
		if err := m.scene.Spawn(ev.Asset, p.Anchor, p.Record.RelativeRotation, p.Record.Scale); err != nil {
			slog.Error("Unable to spawn furniture", "item", p.ItemID, "anchor", p.Anchor.ID, "error", err)
		}
	}
}

// QueueSpawn waits for itemID's model before spawning rec on anchor
func (m *Manager) QueueSpawn(itemID string, rec models.PlacedItemRecord, anchor *anchors.Anchor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[itemID] = append(m.pending[itemID], PendingSpawn{ItemID: itemID, Record: rec, Anchor: anchor})
}

// Waiting is the number of queued spawns across all items
func (m *Manager) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, q := range m.pending {
		n += len(q)
	}
	return n
}

// Register adds a newly placed item to the current layout
func (m *Manager) Register(rec models.PlacedItemRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Furniture = append(m.current.Furniture, rec)
}

// Current returns a copy of the layout being edited
func (m *Manager) Current() *models.Layout {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &models.Layout{
		Furniture: slices.Clone(m.current.Furniture),
		Surfaces:  slices.Clone(m.current.Surfaces),
	}
}

// Status is the message describing the last save or load
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) setStatus(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = fmt.Sprintf(format, args...)
}

// SaveCurrent stores the current layout under name
func (m *Manager) SaveCurrent(name string) error {
	if err := m.store.Save(m.Current(), name); err != nil {
		m.setStatus("Failed to save because of: %v", err)
		return err
	}
	m.setStatus("Layout saved successfully as: %s", name)
	return nil
}

// List returns the stored layout names
func (m *Manager) List() ([]string, error) {
	return m.store.List()
}

// Clear drops the current layout and every pending spawn
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = models.NewLayout()
	m.pending = make(map[string][]PendingSpawn)
}

// Load reads a saved layout, makes it current and rebuilds it. Records are
// handled concurrently; a record whose anchor cannot be restored is skipped
// without affecting the others. Only a failure to read the layout itself is
// returned as an error.
func (m *Manager) Load(ctx context.Context, name string) (*LoadReport, error) {
	layout, err := m.store.Load(name)
	if err != nil {
		m.setStatus("Failed to load: %s", name)
		return nil, err
	}
	report := &LoadReport{Name: name}
	if layout == nil {
		m.setStatus("Couldn't find save data: %s", name)
		return report, nil
	}
	report.Found = true
	report.Records = len(layout.Furniture)

	m.mu.Lock()
	m.current = layout
	if m.current.Furniture == nil {
		m.current.Furniture = []models.PlacedItemRecord{}
	}
	if m.current.Surfaces == nil {
		m.current.Surfaces = []models.SurfaceRecord{}
	}
	records := slices.Clone(layout.Furniture)
	m.mu.Unlock()

	var queued atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, rec := range records {
		g.Go(func() error {
			if m.restore(gctx, rec) {
				queued.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Queued = int(queued.Load())
	report.Skipped = report.Records - report.Queued
	report.Waiting = m.Waiting()

	slog.Info("Layout loaded", "name", name, "records", report.Records, "queued", report.Queued, "skipped", report.Skipped)
	m.setStatus("Loaded layout from %s", name)
	return report, nil
}

// restore binds rec's anchor and queues its spawn
func (m *Manager) restore(ctx context.Context, rec models.PlacedItemRecord) bool {
	id, err := uuid.Parse(rec.SpatialAnchorID)
	if err != nil {
		slog.Warn("Invalid anchor UUID", "anchor", rec.SpatialAnchorID, "item", rec.ItemID)
		return false
	}

	unbound, err := m.anchors.LoadUnbound(ctx, []uuid.UUID{id})
	if err != nil {
		slog.Warn("Failed to load anchor", "anchor", id, "item", rec.ItemID, "error", err)
		return false
	}
	idx := slices.IndexFunc(unbound, func(u anchors.Unbound) bool { return u.UUID() == id })
	if idx < 0 {
		slog.Warn("Anchor was loaded but missing from collection", "anchor", id)
		return false
	}

	localized, err := unbound[idx].Localize(ctx)
	if err != nil || !localized {
		slog.Warn("Localization failed for anchor", "anchor", id, "item", rec.ItemID, "error", err)
		return false
	}

	// models are cached and announced under their sanitized names
	itemID := catalog.SanitizeName(rec.ItemID)
	anchor := unbound[idx].BindTo("Anchor_" + itemID)
	m.QueueSpawn(itemID, rec, anchor)

	if m.trigger != nil && !m.trigger.Ensure(ctx, itemID, rec.SourceURL) {
		slog.Debug("Model not available yet, spawn stays queued", "item", itemID)
	}
	return true
}
