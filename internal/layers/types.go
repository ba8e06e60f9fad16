// Package layers owns the map's layer groups (user-facing toggles) and render
// layers (granular render units), computes their effective visibility from a
// layered visibility store, and keeps a stable render order.
package layers

import (
	"errors"
	"maps"
)

// Category classifies a group.
type Category string

const (
	CategoryBase     Category = "base"
	CategoryFeature  Category = "feature"
	CategoryInternal Category = "internal"
)

// Configuration errors. They indicate a wiring defect in the layer tree and
// are not meant to be recovered from.
var (
	ErrDuplicateGroup = errors.New("layer group already registered")
	ErrDuplicateLayer = errors.New("layer already registered")
	ErrUnknownGroup   = errors.New("layer group not registered")
	ErrSourceMismatch = errors.New("layer source differs from its group")
)

// Interactivity flags which pointer interactions a group accepts.
type Interactivity struct {
	Select bool `json:"select" yaml:"select"`
	Hover  bool `json:"hover" yaml:"hover"`
}

// Group is a semantic toggle unit bundling render layers that share a data
// source. Visible, Order, Source and SourceLayer are owned by the registry.
type Group struct {
	ID            string        `json:"id" doc:"Unique group identifier" example:"base-osm"`
	Name          string        `json:"name" doc:"Display name" example:"OpenStreetMap"`
	Thumbnail     string        `json:"thumbnail,omitempty" doc:"Thumbnail reference"`
	Category      Category      `json:"category" enum:"base,feature,internal" doc:"Group category"`
	Visible       bool          `json:"visible" doc:"Effective visibility"`
	Order         int           `json:"order" doc:"Registration order"`
	Source        string        `json:"source,omitempty" doc:"Data source, stamped from the first layer"`
	SourceLayer   string        `json:"sourceLayer,omitempty" doc:"Source layer, stamped from the first layer"`
	Interactivity Interactivity `json:"interactivity" doc:"Accepted interactions"`
}

// Visibility is the render-engine visibility flag of a layer.
type Visibility string

const (
	Visible    Visibility = "visible"
	NotVisible Visibility = "none"
)

func visibilityOf(v bool) Visibility {
	if v {
		return Visible
	}
	return NotVisible
}

// Layout carries render hints plus the authoritative visibility flag.
type Layout struct {
	Visibility Visibility     `json:"visibility,omitempty" doc:"visible or none"`
	Hints      map[string]any `json:"hints,omitempty" doc:"Render hints passed to the map view"`
}

func (l Layout) clone() Layout {
	l.Hints = maps.Clone(l.Hints)
	return l
}

// LayerInfo is one render unit belonging to exactly one group.
// Order and SubOrder are assigned by the registry.
type LayerInfo struct {
	ID          string `json:"id" doc:"Unique layer identifier" example:"osm-raster"`
	GroupID     string `json:"groupId" doc:"Owning group"`
	Kind        string `json:"kind,omitempty" doc:"Render kind (fill, line, circle, raster...)"`
	Layout      Layout `json:"layout" doc:"Render layout with baked visibility"`
	Source      string `json:"source" doc:"Data source"`
	SourceLayer string `json:"sourceLayer,omitempty" doc:"Source layer; empty sorts first"`
	Order       int    `json:"order" doc:"Group order"`
	SubOrder    int    `json:"subOrder" doc:"Registration sequence within the group"`
}

func (l LayerInfo) clone() LayerInfo {
	l.Layout = l.Layout.clone()
	return l
}
