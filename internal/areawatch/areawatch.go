// Package areawatch holds the area-watch entity: a named geographic area a
// user wants to be notified about, plus its transports and the flows that
// create or edit one from a drawing.
package areawatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Source is the feature source area watches are rendered from.
const Source = "area-watches"

var (
	ErrNotFound = errors.New("area watch not found")
	ErrInvalid  = errors.New("invalid area watch")
	ErrExists   = errors.New("area watch already exists")
)

// AreaWatch is a watched area.
type AreaWatch struct {
	ID          string            `json:"id,omitempty" validate:"required,uuid" required:"false" doc:"Area watch identifier (UUID), generated when empty" example:"0b8f3c52-5f0e-4d7c-a4f5-0a1d9e3b2c11"`
	Name        string            `json:"name" validate:"required,max=100" minLength:"1" maxLength:"100" doc:"Display name" example:"Harbour"`
	Description string            `json:"description,omitempty" validate:"max=1000" maxLength:"1000" doc:"Free text description"`
	Geometry    *geojson.Geometry `json:"geometry,omitempty" doc:"GeoJSON geometry of the watched area"`
	Enabled     bool              `json:"enabled" required:"false" doc:"Whether notifications are enabled"`
	CreatedAt   time.Time         `json:"createdAt,omitzero" required:"false" doc:"Creation time (server assigned)"`
	UpdatedAt   time.Time         `json:"updatedAt,omitzero" required:"false" doc:"Last update time (server assigned)"`
}

func (w AreaWatch) EntityID() string { return w.ID }

func (w AreaWatch) WithEntityID(id string) AreaWatch {
	w.ID = id
	return w
}

// Geom returns the orb geometry, or nil when the watch has none.
func (w AreaWatch) Geom() orb.Geometry {
	if w.Geometry == nil {
		return nil
	}
	return w.Geometry.Geometry()
}

// WithGeom returns a copy with g as its geometry.
func (w AreaWatch) WithGeom(g orb.Geometry) AreaWatch {
	if g == nil {
		w.Geometry = nil
		return w
	}
	w.Geometry = geojson.NewGeometry(g)
	return w
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the entity's fields and that its geometry, when present,
// is an area.
func (w AreaWatch) Validate() error {
	if err := validate.Struct(w); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch g := w.Geom().(type) {
	case nil, orb.Polygon, orb.MultiPolygon:
	default:
		return fmt.Errorf("%w: geometry must be a polygon, got %s", ErrInvalid, g.GeoJSONType())
	}
	return nil
}
