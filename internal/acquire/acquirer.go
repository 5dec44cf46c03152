package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/furnisher/internal/catalog"
	"github.com/lehigh-university-libraries/furnisher/internal/events"
	"github.com/lehigh-university-libraries/furnisher/internal/model3d"
	"github.com/lehigh-university-libraries/furnisher/internal/modelcache"
	"golang.org/x/sync/singleflight"
)

var errNoSource = errors.New("no blob on disk and no model url to download from")

// ModelRef is what an item's detail page says about its model
type ModelRef struct {
	ItemURL  string
	Name     string // sanitized display name, the item's identity
	ModelURL string
}

// Acquirer turns item references into decoded assets, going through the
// cache's memory table, then its blobs, then the network. Each name is
// loaded by at most one goroutine at a time.
type Acquirer struct {
	client  *catalog.Client
	cache   *modelcache.Cache
	decoder model3d.Decoder
	bus     *events.Bus

	group singleflight.Group
}

// New creates an Acquirer that announces every success on bus
func New(client *catalog.Client, cache *modelcache.Cache, decoder model3d.Decoder, bus *events.Bus) *Acquirer {
	return &Acquirer{
		client:  client,
		cache:   cache,
		decoder: decoder,
		bus:     bus,
	}
}

// Inspect fetches an item page and finds its glTF binary. ok is false when the
// page cannot be fetched or has no downloadable model.
func (a *Acquirer) Inspect(ctx context.Context, itemURL string) (ModelRef, bool) {
	body, err := a.client.Get(ctx, itemURL)
	if err != nil {
		slog.Warn("Failed to fetch item page", "url", itemURL, "error", err)
		return ModelRef{}, false
	}

	name, modelURL, ok := catalog.FindModel(catalog.ParseBlocks(body))
	if !ok {
		slog.Debug("No downloadable model on item page", "url", itemURL)
		return ModelRef{}, false
	}
	return ModelRef{ItemURL: itemURL, Name: name, ModelURL: modelURL}, true
}

// Acquire makes sure ref's model is decoded and publishes it for requestID.
// Failures are logged and reported only through ok.
func (a *Acquirer) Acquire(ctx context.Context, requestID string, ref ModelRef) (*model3d.Asset, bool) {
	asset, err := a.load(ctx, ref.Name, ref.ModelURL)
	if err != nil {
		slog.Warn("Model acquisition skipped", "item", ref.Name, "error", err)
		return nil, false
	}
	a.publish(requestID, ref.Name, asset)
	return asset, true
}

// Replay republishes an item known from the index. It decodes the blob if
// the asset is not in memory, and re-downloads through the item's recorded
// source page if the blob is gone too.
func (a *Acquirer) Replay(ctx context.Context, requestID, name string) (*model3d.Asset, bool) {
	if asset, ok := a.cache.Asset(name); ok {
		a.publish(requestID, name, asset)
		return asset, true
	}
	if a.cache.HasBlob(name) {
		return a.Acquire(ctx, requestID, ModelRef{Name: name})
	}

	source, ok := a.cache.Source(name)
	if !ok {
		slog.Warn("Cached item has no blob and no source page", "item", name)
		return nil, false
	}
	slog.Info("Blob missing, re-downloading", "item", name, "source", source)
	ref, ok := a.Inspect(ctx, source)
	if !ok {
		return nil, false
	}
	if ref.Name != name {
		slog.Debug("Item page renamed its model", "item", name, "page_name", ref.Name)
		ref.Name = name
	}
	return a.Acquire(ctx, requestID, ref)
}

func (a *Acquirer) publish(requestID, name string, asset *model3d.Asset) {
	if a.bus != nil {
		a.bus.Publish(events.Resolved{RequestID: requestID, ItemName: name, Asset: asset})
	}
}

func (a *Acquirer) load(ctx context.Context, name, modelURL string) (*model3d.Asset, error) {
	if asset, ok := a.cache.Asset(name); ok {
		return asset, nil
	}

	v, err, shared := a.group.Do(name, func() (any, error) {
		if asset, ok := a.cache.Asset(name); ok {
			return asset, nil
		}

		if !a.cache.HasBlob(name) {
			if modelURL == "" {
				return nil, errNoSource
			}
			slog.Info("Downloading model", "item", name, "url", modelURL)
			data, err := a.client.Get(ctx, modelURL)
			if err != nil {
				return nil, err
			}
			if err := a.cache.WriteBlob(name, data); err != nil {
				return nil, fmt.Errorf("failed to cache model: %w", err)
			}
		}

		data, err := a.cache.ReadBlob(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read cached model: %w", err)
		}

		asset, err := a.decoder.Decode(name, data)
		if err != nil {
			// a blob that does not decode would be reused forever otherwise
			if rmErr := a.cache.RemoveBlob(name); rmErr != nil {
				slog.Warn("Unable to remove undecodable blob", "item", name, "error", rmErr)
			}
			return nil, err
		}

		a.cache.StoreAsset(name, asset)
		slog.Debug("Decoded model", "item", name, "nodes", asset.Nodes, "meshes", asset.Meshes)
		return asset, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("Joined in-flight acquisition", "item", name)
	}
	return v.(*model3d.Asset), nil
}
