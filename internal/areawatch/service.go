package areawatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-watch/internal/draw"
	"github.com/joeblew999/plat-watch/internal/optimistic"
	"github.com/joeblew999/plat-watch/internal/selection"
)

// Drawer starts and ends draw sessions.
type Drawer interface {
	Start(ctx context.Context, cmd draw.Command) (*draw.Session, error)
	End()
}

// Service runs the draw-then-save flows for area watches.
type Service struct {
	watches *optimistic.Collection[AreaWatch]
	drawer  Drawer
	logger  *slog.Logger
}

func NewService(watches *optimistic.Collection[AreaWatch], drawer Drawer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{watches: watches, drawer: drawer, logger: logger}
}

// Collection returns the synced area-watch collection.
func (s *Service) Collection() *optimistic.Collection[AreaWatch] { return s.watches }

// FeatureID is the render id of an area watch.
func (s *Service) FeatureID(id string) selection.FeatureID {
	return selection.FeatureID{Source: Source, ID: s.watches.Aliases().Alias(id)}
}

// CreateFromDrawing opens a polygon draw session, waits for the user to
// finish it and adds a new area watch with the drawn area. The session is
// ended whatever the outcome.
func (s *Service) CreateFromDrawing(ctx context.Context, partial AreaWatch) (AreaWatch, error) {
	session, err := s.drawer.Start(ctx, draw.Command{Mode: draw.EngineModePolygon})
	if err != nil {
		return AreaWatch{}, err
	}
	defer s.drawer.End()

	g, err := session.Wait(ctx)
	if err != nil {
		return AreaWatch{}, err
	}

	w, _ := s.watches.CreateID(partial.WithGeom(g))
	w.Enabled = true
	if err := w.Validate(); err != nil {
		return AreaWatch{}, err
	}
	if err := s.watches.Add(ctx, w); err != nil {
		return AreaWatch{}, fmt.Errorf("create area watch: %w", err)
	}
	s.logger.Info("area watch created", slog.String("id", w.ID), slog.String("name", w.Name))

	if it, ok := s.watches.Get(w.ID); ok {
		return it.Value, nil
	}
	return w, nil
}

// EditGeometry opens a session preloaded with the watch's area, hides the
// rendered watch while it is edited and patches the new area in.
func (s *Service) EditGeometry(ctx context.Context, id string) (AreaWatch, error) {
	it, ok := s.watches.Get(id)
	if !ok {
		return AreaWatch{}, fmt.Errorf("edit %s: %w", id, ErrNotFound)
	}

	fid := s.FeatureID(id)
	session, err := s.drawer.Start(ctx, draw.Command{ID: &fid, Geometry: it.Value.Geom()})
	if err != nil {
		return AreaWatch{}, err
	}
	defer s.drawer.End()

	g, err := session.Wait(ctx)
	if err != nil {
		return AreaWatch{}, err
	}

	patch, err := json.Marshal(map[string]any{"geometry": geojson.NewGeometry(g)})
	if err != nil {
		return AreaWatch{}, err
	}
	if err := s.watches.Patch(ctx, id, patch); err != nil {
		return AreaWatch{}, fmt.Errorf("update area watch %s: %w", id, err)
	}

	// Deleted while the session was open; the patch had nothing to apply to.
	updated, ok := s.watches.Get(id)
	if !ok {
		return AreaWatch{}, fmt.Errorf("update area watch %s: %w", id, ErrNotFound)
	}
	return updated.Value, nil
}

// Canceled reports whether err means the user left the draw session.
func Canceled(err error) bool {
	return errors.Is(err, draw.ErrCanceled) || errors.Is(err, context.Canceled)
}
