package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/furnisher/internal/acquire"
	"github.com/lehigh-university-libraries/furnisher/internal/anchors"
	"github.com/lehigh-university-libraries/furnisher/internal/catalog"
	"github.com/lehigh-university-libraries/furnisher/internal/events"
	"github.com/lehigh-university-libraries/furnisher/internal/furniture"
	"github.com/lehigh-university-libraries/furnisher/internal/layout"
	"github.com/lehigh-university-libraries/furnisher/internal/modelcache"
	"github.com/lehigh-university-libraries/furnisher/internal/models"
	"github.com/lehigh-university-libraries/furnisher/internal/scene"
	"github.com/lehigh-university-libraries/furnisher/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type api struct {
	mux     *http.ServeMux
	srv     *testutil.CatalogServer
	anchors *anchors.FileStore
	console *scene.Console
}

func newAPI(t *testing.T) *api {
	t.Helper()
	dir := t.TempDir()
	srv := testutil.NewCatalogServer(t, 5,
		testutil.Product{Name: "Desk", Model: []byte("desk")},
		testutil.Product{Name: "Stool", Model: []byte("stool")},
	)

	backend, err := modelcache.NewDirBackend(filepath.Join(dir, "models"))
	require.NoError(t, err)
	cache := modelcache.Open(backend)
	bus := events.NewBus()
	client := catalog.NewClient(5*time.Second, "")
	console := scene.NewConsole()

	service := furniture.NewService(furniture.Options{
		Cache:    cache,
		Scanner:  catalog.NewScanner(client, catalog.ScannerConfig{}),
		Acquirer: acquire.New(client, cache, &testutil.Decoder{}, bus),
		Bus:      bus,
		Display:  console,
	})
	t.Cleanup(service.Close)

	store := layout.NewStore(filepath.Join(dir, "layouts"))
	anchorStore := anchors.NewFileStore(filepath.Join(dir, "anchors.yaml"))
	manager := layout.NewManager(store, anchorStore, console, service)
	t.Cleanup(manager.Attach(bus))

	mux := http.NewServeMux()
	New(service, cache, store, manager).Routes(mux)
	return &api{mux: mux, srv: srv, anchors: anchorStore, console: console}
}

func (a *api) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCatalogRequestLifecycle(t *testing.T) {
	a := newAPI(t)

	rec := a.do(t, "POST", "/api/catalog", `{"url": "`+a.srv.CatalogURL()+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	started := decode[models.CatalogRequest](t, rec)
	require.NotEmpty(t, started.ID)

	var final models.CatalogRequest
	require.Eventually(t, func() bool {
		rec := a.do(t, "GET", "/api/requests/"+started.ID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		final = decode[models.CatalogRequest](t, rec)
		return final.Done
	}, 10*time.Second, 10*time.Millisecond)

	assert.True(t, final.Complete)
	assert.ElementsMatch(t, []string{"Desk", "Stool"}, final.Resolved)

	list := decode[[]models.CatalogRequest](t, a.do(t, "GET", "/api/requests", ""))
	assert.Len(t, list, 1)

	entries := decode[[]modelcache.Entry](t, a.do(t, "GET", "/api/cache", ""))
	assert.Len(t, entries, 2)

	assert.Equal(t, http.StatusNoContent, a.do(t, "DELETE", "/api/requests/"+started.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, "GET", "/api/requests/"+started.ID, "").Code)

	assert.Equal(t, http.StatusNoContent, a.do(t, "DELETE", "/api/cache", "").Code)
	entries = decode[[]modelcache.Entry](t, a.do(t, "GET", "/api/cache", ""))
	assert.Empty(t, entries)
}

func TestCatalogRejectsBadInput(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusBadRequest, a.do(t, "POST", "/api/catalog", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, "POST", "/api/catalog", `{"url": "nope"}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, a.do(t, "GET", "/api/catalog", "").Code)
}

func TestLayoutEndpoints(t *testing.T) {
	a := newAPI(t)

	anchor, err := a.anchors.Create(context.Background(), "desk", models.Pose{Rotation: models.IdentityRotation})
	require.NoError(t, err)

	body, err := json.Marshal(models.Layout{Furniture: []models.PlacedItemRecord{{
		ItemID:           "Desk",
		SpatialAnchorID:  anchor.ID.String(),
		RelativeRotation: models.IdentityRotation,
		Scale:            models.UnitScale,
		SourceURL:        a.srv.ItemURL(0),
	}}})
	require.NoError(t, err)

	rec := a.do(t, "PUT", "/api/layouts/office", string(body))
	require.Equal(t, http.StatusOK, rec.Code)

	names := decode[[]string](t, a.do(t, "GET", "/api/layouts", ""))
	assert.Equal(t, []string{"office"}, names)

	saved := decode[models.Layout](t, a.do(t, "GET", "/api/layouts/office", ""))
	require.Len(t, saved.Furniture, 1)
	assert.Empty(t, saved.Surfaces)

	rec = a.do(t, "POST", "/api/layouts/office/load", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[layout.LoadReport](t, rec)
	assert.Equal(t, 1, report.Queued)
	assert.Zero(t, report.Waiting)

	spawned := a.console.Spawned()
	require.Len(t, spawned, 1)
	assert.Equal(t, "Desk", spawned[0].ItemName)
	assert.Equal(t, "Anchor_Desk", spawned[0].Label)
}

func TestLayoutErrors(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusNotFound, a.do(t, "GET", "/api/layouts/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, "POST", "/api/layouts/missing/load", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, a.do(t, "GET", "/api/layouts/missing/load", "").Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, "PUT", "/api/layouts/x", "not json").Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, "GET", "/api/layouts/a%5Cb", "").Code)
}
