// Package scene stands in for the engine. Console logs what a headset would
// render and keeps a record of it for the CLI and tests.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lehigh-university-libraries/furnisher/internal/anchors"
	"github.com/lehigh-university-libraries/furnisher/internal/model3d"
	"github.com/lehigh-university-libraries/furnisher/internal/models"
	"github.com/lehigh-university-libraries/furnisher/internal/spawn"
)

// Presentation is a model shown in a menu slot
type Presentation struct {
	RequestID string `json:"request_id"`
	Slot      int    `json:"slot"`
	ItemName  string `json:"item_name"`
	Nodes     int    `json:"nodes"`
}

// Instance is a model spawned on an anchor
type Instance struct {
	ItemName string            `json:"item_name"`
	AnchorID string            `json:"anchor_id"`
	Label    string            `json:"label"`
	Rotation models.Quaternion `json:"rotation"`
	Scale    models.Vector3    `json:"scale"`
}

type Console struct {
	mu        sync.Mutex
	presented []Presentation
	spawned   []Instance
}

func NewConsole() *Console {
	return &Console{}
}

func (c *Console) Present(p *spawn.Placeholder, itemName string, asset *model3d.Asset) error {
	if asset == nil {
		return fmt.Errorf("no asset for %q", itemName)
	}
	slog.Info("Model ready", "request", p.RequestID, "slot", p.Slot, "item", itemName, "nodes", asset.Nodes)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.presented = append(c.presented, Presentation{
		RequestID: p.RequestID,
		Slot:      p.Slot,
		ItemName:  itemName,
		Nodes:     asset.Nodes,
	})
	return nil
}

func (c *Console) Spawn(asset *model3d.Asset, anchor *anchors.Anchor, rotation models.Quaternion, scale models.Vector3) error {
	if asset == nil || anchor == nil {
		return errors.New("spawn needs an asset and an anchor")
	}
	slog.Info("Spawned furniture", "item", asset.Name, "anchor", anchor.ID, "label", anchor.Label)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.spawned = append(c.spawned, Instance{
		ItemName: asset.Name,
		AnchorID: anchor.ID.String(),
		Label:    anchor.Label,
		Rotation: rotation,
		Scale:    scale,
	})
	return nil
}

// Presented returns every presentation so far, in order
func (c *Console) Presented() []Presentation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Presentation(nil), c.presented...)
}

// Spawned returns every spawned instance so far, in order
func (c *Console) Spawned() []Instance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Instance(nil), c.spawned...)
}
