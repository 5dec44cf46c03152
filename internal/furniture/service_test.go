package furniture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/furnisher/internal/acquire"
	"github.com/lehigh-university-libraries/furnisher/internal/catalog"
	"github.com/lehigh-university-libraries/furnisher/internal/events"
	"github.com/lehigh-university-libraries/furnisher/internal/modelcache"
	"github.com/lehigh-university-libraries/furnisher/internal/scene"
	"github.com/lehigh-university-libraries/furnisher/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rig struct {
	service *Service
	console *scene.Console
	decoder *testutil.Decoder
	cache   *modelcache.Cache
	bus     *events.Bus
}

// newRig builds a service over dir with sequential scanning so request order is deterministic
func newRig(t *testing.T, dir string, maxItems int) *rig {
	t.Helper()
	backend, err := modelcache.NewDirBackend(dir)
	require.NoError(t, err)

	r := &rig{
		console: scene.NewConsole(),
		decoder: &testutil.Decoder{},
		cache:   modelcache.Open(backend),
		bus:     events.NewBus(),
	}
	client := catalog.NewClient(5*time.Second, "")
	r.service = NewService(Options{
		Cache:       r.cache,
		Scanner:     catalog.NewScanner(client, catalog.ScannerConfig{PageConcurrency: 1}),
		Acquirer:    acquire.New(client, r.cache, r.decoder, r.bus),
		Bus:         r.bus,
		Display:     r.console,
		MaxItems:    maxItems,
		Concurrency: 1,
	})
	t.Cleanup(r.service.Close)
	return r
}

func shop(n int) []testutil.Product {
	out := make([]testutil.Product, n)
	for i := range out {
		out[i] = testutil.Product{Name: fmt.Sprintf("Table %02d", i), Model: []byte(fmt.Sprintf("glb-%d", i))}
	}
	return out
}

func TestRequestScansAndCaches(t *testing.T) {
	srv := testutil.NewCatalogServer(t, 12, shop(12)...)
	dir := t.TempDir()
	r := newRig(t, dir, 10)

	req, err := r.service.Request(context.Background(), srv.CatalogURL())
	require.NoError(t, err)
	assert.True(t, req.Done)
	assert.True(t, req.Complete)
	assert.False(t, req.FromCache)
	require.Len(t, req.ItemNames, 10)
	assert.Equal(t, req.ItemNames, req.Resolved)
	assert.Len(t, r.console.Presented(), 10)

	complete, names, ok := r.cache.Lookup(srv.CatalogURL())
	require.True(t, ok)
	assert.True(t, complete)
	assert.Equal(t, req.ItemNames, names)
	assert.FileExists(t, filepath.Join(dir, modelcache.IndexFileName))
	assert.FileExists(t, filepath.Join(dir, "Table 00.glb"))

	assert.Zero(t, srv.Hits("/p/item-10"))
	assert.Zero(t, srv.Hits("/p/item-11"))
	// the scanner's parse of each detail page is reused for acquisition
	for i := 0; i < 10; i++ {
		assert.Equal(t, 1, srv.Hits(fmt.Sprintf("/p/item-%d", i)))
	}

	stored, ok := r.service.Requests().Get(req.ID)
	require.True(t, ok)
	assert.Equal(t, req, stored)
}

func TestCompletedCatalogReplaysWithoutNetwork(t *testing.T) {
	srv := testutil.NewCatalogServer(t, 5, shop(3)...)
	dir := t.TempDir()
	r := newRig(t, dir, 10)
	ctx := context.Background()

	first, err := r.service.Request(ctx, srv.CatalogURL())
	require.NoError(t, err)
	require.Len(t, first.ItemNames, 3)
	hits := srv.TotalHits()
	decodes := r.decoder.Calls()

	// same process: assets are still in memory
	again, err := r.service.Request(ctx, srv.CatalogURL())
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Equal(t, first.ItemNames, again.ItemNames)
	assert.Equal(t, first.ItemNames, again.Resolved)
	assert.Equal(t, hits, srv.TotalHits())
	assert.Equal(t, decodes, r.decoder.Calls())

	// new process on the same directory: blobs are decoded, nothing fetched
	fresh := newRig(t, dir, 10)
	restored, err := fresh.service.Request(ctx, srv.CatalogURL())
	require.NoError(t, err)
	assert.True(t, restored.FromCache)
	assert.Equal(t, first.ItemNames, restored.Resolved)
	assert.Equal(t, hits, srv.TotalHits())
	assert.Equal(t, 3, fresh.decoder.Calls())
}

func TestMissingBlobIsDownloadedAgain(t *testing.T) {
	srv := testutil.NewCatalogServer(t, 5, shop(2)...)
	dir := t.TempDir()
	r := newRig(t, dir, 10)
	ctx := context.Background()

	_, err := r.service.Request(ctx, srv.CatalogURL())
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "Table 01.glb")))
	listing := srv.Hits("/catalog")

	fresh := newRig(t, dir, 10)
	req, err := fresh.service.Request(ctx, srv.CatalogURL())
	require.NoError(t, err)
	assert.Equal(t, []string{"Table 00", "Table 01"}, req.Resolved)
	assert.Equal(t, listing, srv.Hits("/catalog"))
	assert.Equal(t, 2, srv.Hits("/models/item-1.glb"))
	assert.Equal(t, 1, srv.Hits("/models/item-0.glb"))
}

func TestCatalogWithoutModelsStaysIncomplete(t *testing.T) {
	srv := testutil.NewCatalogServer(t, 5,
		testutil.Product{Name: "Rug", NoModel: true},
		testutil.Product{Name: "Broken", Model: testutil.CorruptModel},
	)
	r := newRig(t, t.TempDir(), 10)

	req, err := r.service.Request(context.Background(), srv.CatalogURL())
	require.NoError(t, err)
	assert.False(t, req.Complete)
	assert.True(t, req.Done)
	assert.Equal(t, []string{"Broken"}, req.ItemNames)
	assert.Empty(t, req.Resolved)

	complete, _, ok := r.cache.Lookup(srv.CatalogURL())
	assert.True(t, ok)
	assert.False(t, complete)
}

func TestRequestRejectsInvalidURL(t *testing.T) {
	r := newRig(t, t.TempDir(), 10)
	_, err := r.service.Request(context.Background(), "not a url")
	assert.Error(t, err)
	assert.Empty(t, r.service.Requests().GetAll())
}

func TestStartRunsInBackground(t *testing.T) {
	srv := testutil.NewCatalogServer(t, 5, shop(2)...)
	r := newRig(t, t.TempDir(), 10)

	req, err := r.service.Start(context.Background(), srv.CatalogURL())
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	// the snapshot is taken before the run starts and never changes
	assert.Empty(t, req.ItemNames)
	assert.Empty(t, req.Resolved)
	assert.False(t, req.Done)

	require.Eventually(t, func() bool {
		got, ok := r.service.Requests().Get(req.ID)
		return ok && got.Done
	}, 10*time.Second, 10*time.Millisecond)

	got, _ := r.service.Requests().Get(req.ID)
	assert.Len(t, got.Resolved, 2)
	assert.Empty(t, req.Resolved)
	assert.False(t, req.Done)
}

func TestEnsure(t *testing.T) {
	srv := testutil.NewCatalogServer(t, 5, shop(2)...)
	r := newRig(t, t.TempDir(), 10)
	ctx := context.Background()

	var announced []string
	r.bus.Subscribe(func(ev events.Resolved) {
		if ev.RequestID == "" {
			announced = append(announced, ev.ItemName)
		}
	})

	// never seen and no source page
	assert.False(t, r.service.Ensure(ctx, "Ghost", ""))

	// never seen, fetched through its source page under the saved id
	assert.True(t, r.service.Ensure(ctx, "Saved Table", srv.ItemURL(1)))
	_, ok := r.cache.Asset("Saved Table")
	assert.True(t, ok)

	// known to the cache
	assert.True(t, r.service.Ensure(ctx, "Saved Table", ""))
	assert.Equal(t, []string{"Saved Table", "Saved Table"}, announced)
	assert.Equal(t, 1, srv.Hits("/models/item-1.glb"))
}

func TestClearCacheAllowsRediscovery(t *testing.T) {
	srv := testutil.NewCatalogServer(t, 5, shop(2)...)
	dir := t.TempDir()
	r := newRig(t, dir, 10)
	ctx := context.Background()

	_, err := r.service.Request(ctx, srv.CatalogURL())
	require.NoError(t, err)

	require.NoError(t, r.service.ClearCache())
	require.NoError(t, r.service.ClearCache())
	assert.NoFileExists(t, filepath.Join(dir, "Table 00.glb"))

	req, err := r.service.Request(ctx, srv.CatalogURL())
	require.NoError(t, err)
	assert.False(t, req.FromCache)
	assert.Equal(t, []string{"Table 00", "Table 01"}, req.ItemNames)
	assert.Equal(t, 2, srv.Hits("/models/item-0.glb"))
}

func TestFailedItemIsRediscovered(t *testing.T) {
	srv := testutil.NewCatalogServer(t, 5, testutil.Product{Name: "Broken", Model: testutil.CorruptModel})
	r := newRig(t, t.TempDir(), 10)
	ctx := context.Background()

	first, err := r.service.Request(ctx, srv.CatalogURL())
	require.NoError(t, err)
	assert.Equal(t, []string{"Broken"}, first.ItemNames)

	// the scanner forgot the failed item, so the next scan accepts it again
	second, err := r.service.Request(ctx, srv.CatalogURL())
	require.NoError(t, err)
	assert.False(t, second.FromCache)
	assert.Equal(t, []string{"Broken"}, second.ItemNames)
	assert.Equal(t, 2, srv.Hits("/models/item-0.glb"))
}

func TestEnsureKeepsFilesInsideCache(t *testing.T) {
	srv := testutil.NewCatalogServer(t, 5, shop(2)...)
	root := t.TempDir()
	dir := filepath.Join(root, "cache")
	r := newRig(t, dir, 10)
	ctx := context.Background()

	victim := filepath.Join(root, "victim.glb")
	require.NoError(t, os.WriteFile(victim, testutil.CorruptModel, 0644))

	assert.False(t, r.service.Ensure(ctx, "../victim", ""))
	data, err := os.ReadFile(victim)
	require.NoError(t, err)
	assert.Equal(t, testutil.CorruptModel, data)

	// separators are sanitized like scanned names, so the model can be stored
	assert.True(t, r.service.Ensure(ctx, "Desk/Table", srv.ItemURL(1)))
	_, ok := r.cache.Asset("Desk_Table")
	assert.True(t, ok)
	assert.FileExists(t, filepath.Join(dir, "Desk_Table.glb"))
}
