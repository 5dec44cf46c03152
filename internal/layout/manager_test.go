package layout

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/furnisher/internal/anchors"
	"github.com/lehigh-university-libraries/furnisher/internal/events"
	"github.com/lehigh-university-libraries/furnisher/internal/model3d"
	"github.com/lehigh-university-libraries/furnisher/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type spawned struct {
	item   string
	anchor uuid.UUID
	scale  models.Vector3
}

type recordingScene struct {
	mu     sync.Mutex
	spawns []spawned
}

func (s *recordingScene) Spawn(asset *model3d.Asset, anchor *anchors.Anchor, _ models.Quaternion, scale models.Vector3) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawns = append(s.spawns, spawned{item: asset.Name, anchor: anchor.ID, scale: scale})
	return nil
}

func (s *recordingScene) items() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, sp := range s.spawns {
		out = append(out, sp.item)
	}
	sort.Strings(out)
	return out
}

// cachedTrigger publishes immediately for items it has, like an acquirer with a warm cache
type cachedTrigger struct {
	bus       *events.Bus
	available map[string]bool

	mu      sync.Mutex
	ensured []string
}

func (c *cachedTrigger) Ensure(_ context.Context, itemID, _ string) bool {
	c.mu.Lock()
	c.ensured = append(c.ensured, itemID)
	c.mu.Unlock()
	if !c.available[itemID] {
		return false
	}
	c.bus.Publish(events.Resolved{ItemName: itemID, Asset: &model3d.Asset{Name: itemID}})
	return true
}

type harness struct {
	manager *Manager
	store   *Store
	anchors *anchors.FileStore
	scene   *recordingScene
	trigger *cachedTrigger
	bus     *events.Bus
	dir     string
}

func newHarness(t *testing.T, available ...string) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		store:   NewStore(filepath.Join(dir, "layouts")),
		anchors: anchors.NewFileStore(filepath.Join(dir, "anchors.yaml")),
		scene:   &recordingScene{},
		bus:     events.NewBus(),
		dir:     dir,
	}
	h.trigger = &cachedTrigger{bus: h.bus, available: make(map[string]bool)}
	for _, a := range available {
		h.trigger.available[a] = true
	}
	h.manager = NewManager(h.store, h.anchors, h.scene, h.trigger)
	t.Cleanup(h.manager.Attach(h.bus))
	return h
}

func (h *harness) anchor(t *testing.T, label string) string {
	t.Helper()
	a, err := h.anchors.Create(context.Background(), label, models.Pose{Rotation: models.IdentityRotation})
	require.NoError(t, err)
	return a.ID.String()
}

func placed(item, anchor string) models.PlacedItemRecord {
	return models.PlacedItemRecord{ItemID: item, SpatialAnchorID: anchor, RelativeRotation: models.IdentityRotation, Scale: models.UnitScale}
}

func TestLoadSkipsAnchorThatFailsToLocalize(t *testing.T) {
	h := newHarness(t, "Sofa", "Lamp", "Desk")
	sofa, lost, desk := uuid.NewString(), uuid.New(), uuid.NewString()

	doc := "anchors:\n" +
		"  - id: " + sofa + "\n" +
		"  - id: " + lost.String() + "\n    lost: true\n" +
		"  - id: " + desk + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "anchors.yaml"), []byte(doc), 0644))

	layout := &models.Layout{Furniture: []models.PlacedItemRecord{
		placed("Sofa", sofa),
		placed("Lamp", lost.String()),
		placed("Desk", desk),
	}}
	require.NoError(t, h.store.Save(layout, "room"))

	report, err := h.manager.Load(context.Background(), "room")
	require.NoError(t, err)
	assert.Equal(t, &LoadReport{Name: "room", Found: true, Records: 3, Queued: 2, Skipped: 1}, report)
	assert.Equal(t, []string{"Desk", "Sofa"}, h.scene.items())
	assert.Equal(t, "Loaded layout from room", h.manager.Status())
}

func TestLoadSkipsBadRecords(t *testing.T) {
	h := newHarness(t, "Sofa", "Lamp", "Desk")
	sofa := h.anchor(t, "sofa")

	layout := &models.Layout{Furniture: []models.PlacedItemRecord{
		placed("Lamp", "not-a-uuid"),
		placed("Desk", uuid.NewString()),
		placed("Sofa", sofa),
	}}
	require.NoError(t, h.store.Save(layout, "room"))

	report, err := h.manager.Load(context.Background(), "room")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Queued)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, []string{"Sofa"}, h.scene.items())
	// acquisition is only triggered once an anchor is bound
	assert.Equal(t, []string{"Sofa"}, h.trigger.ensured)
}

func TestDeferredSpawnsWaitForResolution(t *testing.T) {
	h := newHarness(t)
	a1 := h.anchor(t, "one")
	a2 := h.anchor(t, "two")

	layout := &models.Layout{Furniture: []models.PlacedItemRecord{placed("Chair", a1), placed("Chair", a2)}}
	layout.Furniture[1].Scale = models.Vector3{X: 2, Y: 2, Z: 2}
	require.NoError(t, h.store.Save(layout, "room"))

	report, err := h.manager.Load(context.Background(), "room")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Queued)
	assert.Equal(t, 2, report.Waiting)
	assert.Empty(t, h.scene.items())

	// unrelated items leave the queue alone
	h.bus.Publish(events.Resolved{ItemName: "Table", Asset: &model3d.Asset{Name: "Table"}})
	assert.Equal(t, 2, h.manager.Waiting())

	h.bus.Publish(events.Resolved{RequestID: "some-catalog", ItemName: "Chair", Asset: &model3d.Asset{Name: "Chair"}})
	assert.Equal(t, []string{"Chair", "Chair"}, h.scene.items())
	assert.Zero(t, h.manager.Waiting())

	// each pending spawn is consumed exactly once
	h.bus.Publish(events.Resolved{ItemName: "Chair", Asset: &model3d.Asset{Name: "Chair"}})
	assert.Len(t, h.scene.items(), 2)

	byAnchor := map[string]models.Vector3{}
	for _, sp := range h.scene.spawns {
		byAnchor[sp.anchor.String()] = sp.scale
	}
	assert.Equal(t, models.UnitScale, byAnchor[a1])
	assert.Equal(t, models.Vector3{X: 2, Y: 2, Z: 2}, byAnchor[a2])
}

func TestLoadUsesSanitizedItemIDs(t *testing.T) {
	h := newHarness(t, "Desk_Table", ".._victim")
	a1 := h.anchor(t, "desk")
	a2 := h.anchor(t, "victim")

	layout := &models.Layout{Furniture: []models.PlacedItemRecord{placed("Desk/Table", a1), placed("../victim", a2)}}
	require.NoError(t, h.store.Save(layout, "room"))

	report, err := h.manager.Load(context.Background(), "room")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Queued)
	assert.Zero(t, report.Waiting)
	assert.ElementsMatch(t, []string{"Desk_Table", ".._victim"}, h.trigger.ensured)
	assert.Equal(t, []string{".._victim", "Desk_Table"}, h.scene.items())
}

func TestLoadMissingLayout(t *testing.T) {
	h := newHarness(t)
	report, err := h.manager.Load(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, report.Found)
	assert.Equal(t, "Couldn't find save data: nowhere", h.manager.Status())
}

func TestLoadCorruptLayoutFails(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.MkdirAll(h.store.Dir(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(h.store.Dir(), "bad.json"), []byte("{"), 0644))

	_, err := h.manager.Load(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, "Failed to load: bad", h.manager.Status())
}

func TestRegisterSaveAndClear(t *testing.T) {
	h := newHarness(t, "Sofa")
	sofa := h.anchor(t, "sofa")

	h.manager.Register(placed("Sofa", sofa))
	require.NoError(t, h.manager.SaveCurrent("mine"))
	assert.Equal(t, "Layout saved successfully as: mine", h.manager.Status())

	h.manager.Clear()
	assert.Empty(t, h.manager.Current().Furniture)

	_, err := h.manager.Load(context.Background(), "mine")
	require.NoError(t, err)
	assert.Equal(t, []models.PlacedItemRecord{placed("Sofa", sofa)}, h.manager.Current().Furniture)

	names, err := h.manager.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"mine"}, names)

	err = h.manager.SaveCurrent("../nope")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, h.manager.Status(), "Failed to save because of")
}

func TestClearDropsPendingSpawns(t *testing.T) {
	h := newHarness(t)
	anchorID := h.anchor(t, "a")
	require.NoError(t, h.store.Save(&models.Layout{Furniture: []models.PlacedItemRecord{placed("Bed", anchorID)}}, "room"))

	_, err := h.manager.Load(context.Background(), "room")
	require.NoError(t, err)
	require.Equal(t, 1, h.manager.Waiting())

	h.manager.Clear()
	h.bus.Publish(events.Resolved{ItemName: "Bed", Asset: &model3d.Asset{Name: "Bed"}})
	assert.Empty(t, h.scene.items())
}
