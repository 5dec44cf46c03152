package models

import (
	"slices"
	"time"
)

// CatalogRequest tracks one user request to browse a catalog listing
type CatalogRequest struct {
	ID        string    `json:"id"`
	SourceURL string    `json:"source_url"`
	ItemNames []string  `json:"item_names"` // discovered, in discovery order
	Resolved  []string  `json:"resolved"`   // presented, in placeholder order
	Complete  bool      `json:"complete"`
	FromCache bool      `json:"from_cache"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a copy that shares no slices with r
func (r *CatalogRequest) Clone() *CatalogRequest {
	c := *r
	c.ItemNames = slices.Clone(r.ItemNames)
	c.Resolved = slices.Clone(r.Resolved)
	return &c
}

// Vector3 is a position or scale
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Quaternion is a rotation
type Quaternion struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
	W float64 `json:"w" yaml:"w"`
}

// IdentityRotation is the zero rotation
var IdentityRotation = Quaternion{W: 1}

// UnitScale leaves a model at its authored size
var UnitScale = Vector3{X: 1, Y: 1, Z: 1}

// Pose places something in world space
type Pose struct {
	Position Vector3    `json:"position" yaml:"position"`
	Rotation Quaternion `json:"rotation" yaml:"rotation"`
}

// Color is an RGBA color with components in [0, 1]
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// PlacedItemRecord is one piece of furniture bound to a spatial anchor
type PlacedItemRecord struct {
	ItemID           string     `json:"modelId"`
	SpatialAnchorID  string     `json:"spatialAnchorId"` // anchor UUID
	RelativeRotation Quaternion `json:"relativeRotation"`
	Scale            Vector3    `json:"scale"`
	SourceURL        string     `json:"sourceUrl,omitempty"` // item detail page, used to re-acquire the model
}

// SurfaceRecord is a painted surface. Persisted but not reconciled on load.
type SurfaceRecord struct {
	SurfaceType string `json:"surfaceType"`
	Color       Color  `json:"color"`
}

// Layout is a saved room arrangement
type Layout struct {
	Furniture []PlacedItemRecord `json:"furniture"`
	Surfaces  []SurfaceRecord    `json:"surfaces"`
}

// NewLayout returns an empty layout with non-nil lists so it serializes as [] rather than null
func NewLayout() *Layout {
	return &Layout{
		Furniture: []PlacedItemRecord{},
		Surfaces:  []SurfaceRecord{},
	}
}
