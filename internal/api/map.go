package api

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-watch/internal/areawatch"
	"github.com/joeblew999/plat-watch/internal/draw"
	"github.com/joeblew999/plat-watch/internal/humastar"
	"github.com/joeblew999/plat-watch/internal/layers"
	"github.com/joeblew999/plat-watch/internal/selection"
)

type GroupsInput struct {
	Category string `query:"category" enum:"base,feature,internal" doc:"Only groups of this category"`
}

type GroupInput struct {
	ID string `path:"id" doc:"Layer group ID" example:"base-osm"`
}

type LayersBody struct {
	Layers    []layers.LayerInfo `json:"layers" doc:"Render layers in render order"`
	Signature string             `json:"signature" doc:"Order signature of the layers"`
}

type VisibilityBody struct {
	Visible  bool   `json:"visible" doc:"Target visibility"`
	Snapshot string `json:"snapshot,omitempty" doc:"Snapshot layer to write, default layer when empty"`
}

type SnapshotBody struct {
	Name string `json:"name" minLength:"1" doc:"Snapshot name" example:"draw"`
}

type SnapshotInput struct {
	Name string `path:"name" doc:"Snapshot name"`
}

type BaseLayerBody struct {
	GroupID string `json:"groupId" doc:"Base group to show" example:"base-osm"`
}

type ModeBody struct {
	Mode selection.Mode `json:"mode" enum:"select,draw,none" doc:"Interaction mode"`
}

type FeatureBody struct {
	Source      string `json:"source" minLength:"1" doc:"Feature source" example:"area-watches"`
	SourceLayer string `json:"sourceLayer,omitempty" doc:"Feature source layer"`
	ID          int64  `json:"id" doc:"Numeric feature id"`
}

func (f FeatureBody) featureID() selection.FeatureID {
	return selection.FeatureID{Source: f.Source, SourceLayer: f.SourceLayer, ID: f.ID}
}

type SelectBody struct {
	FeatureBody
	Toggle bool `json:"toggle,omitempty" doc:"Unselect when already selected"`
}

type FeatureStateInput struct {
	Source      string `query:"source" required:"true" doc:"Feature source"`
	SourceLayer string `query:"sourceLayer" doc:"Feature source layer"`
	ID          int64  `query:"id" doc:"Numeric feature id"`
}

type SelectionBody struct {
	Mode     selection.Mode        `json:"mode" doc:"Interaction mode"`
	Selected *selection.Selection  `json:"selected,omitempty" doc:"Selected feature"`
	Hovered  []selection.Selection `json:"hovered" doc:"Hovered features"`
	Hidden   []selection.FeatureID `json:"hidden" doc:"Hidden features"`
}

type DrawBody struct {
	Mode    string `json:"mode,omitempty" enum:"polygon,linestring,point" doc:"Drawing mode for a new geometry"`
	WatchID string `json:"watchId,omitempty" doc:"Edit the area of this watch"`
	Name    string `json:"name,omitempty" doc:"Create a watch with this name from the drawing"`
}

type DrawStatusBody struct {
	Active bool   `json:"active" doc:"Whether a draw session is active"`
	Mode   string `json:"mode" doc:"Drawing engine mode"`
}

type FinishBody struct {
	Geometry *geojson.Geometry `json:"geometry" doc:"Finished GeoJSON geometry"`
}

// RegisterMap registers layer, selection and draw routes.
func (h *APIHandler) RegisterMap(api huma.API) {
	huma.Get(api, "/api/v1/map/groups", h.GetGroups, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/map/layers", h.GetLayers, huma.OperationTags("map"))
	huma.Put(api, "/api/v1/map/groups/{id}/visibility", h.PutVisibility, huma.OperationTags("map"))
	huma.Post(api, "/api/v1/map/snapshots", h.PushSnapshot, huma.OperationTags("map"))
	huma.Delete(api, "/api/v1/map/snapshots/{name}", h.PopSnapshot, huma.OperationTags("map"))
	huma.Put(api, "/api/v1/map/base-layer", h.PutBaseLayer, huma.OperationTags("map"))

	huma.Get(api, "/api/v1/map/selection", h.GetSelection, huma.OperationTags("selection"))
	huma.Put(api, "/api/v1/map/mode", h.PutMode, huma.OperationTags("selection"))
	huma.Post(api, "/api/v1/map/selection", h.PostSelection, huma.OperationTags("selection"))
	huma.Delete(api, "/api/v1/map/selection", h.DeleteSelection, huma.OperationTags("selection"))
	huma.Post(api, "/api/v1/map/hover", h.PostHover, huma.OperationTags("selection"))
	huma.Delete(api, "/api/v1/map/hover", h.DeleteHover, huma.OperationTags("selection"))
	huma.Get(api, "/api/v1/map/features/state", h.GetFeatureState, huma.OperationTags("selection"))

	huma.Get(api, "/api/v1/map/draw", h.GetDraw, huma.OperationTags("draw"))
	huma.Post(api, "/api/v1/map/draw", h.PostDraw, huma.OperationTags("draw"))
	huma.Post(api, "/api/v1/map/draw/finish", h.FinishDraw, huma.OperationTags("draw"))
	huma.Delete(api, "/api/v1/map/draw", h.DeleteDraw, huma.OperationTags("draw"))
}

func (h *APIHandler) GetGroups(ctx context.Context, input *GroupsInput) (*struct{ Body []layers.Group }, error) {
	var categories []layers.Category
	if input.Category != "" {
		categories = append(categories, layers.Category(input.Category))
	}
	return &struct{ Body []layers.Group }{Body: h.app.Layers.Groups(categories...)}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*struct{ Body LayersBody }, error) {
	return &struct{ Body LayersBody }{Body: LayersBody{
		Layers:    h.app.Layers.Layers(),
		Signature: h.app.Layers.OrderSignature(),
	}}, nil
}

func (h *APIHandler) PutVisibility(ctx context.Context, input *struct {
	GroupInput
	Body VisibilityBody
}) (*struct{ Body layers.Group }, error) {
	if _, ok := h.app.Layers.Group(input.ID); !ok {
		return nil, toHTTPError(fmt.Errorf("%w: %q", layers.ErrUnknownGroup, input.ID))
	}
	if input.Body.Snapshot != "" {
		if _, ok := h.app.Layers.Snapshot(input.Body.Snapshot); !ok {
			return nil, huma.Error404NotFound(fmt.Sprintf("snapshot %q not found", input.Body.Snapshot))
		}
	}
	h.app.Layers.SetVisibility(input.ID, input.Body.Visible, input.Body.Snapshot)
	g, _ := h.app.Layers.Group(input.ID)
	return &struct{ Body layers.Group }{Body: g}, nil
}

func (h *APIHandler) PushSnapshot(ctx context.Context, input *struct{ Body SnapshotBody }) (*struct{ Body MessageBody }, error) {
	if !h.app.Layers.PushVisibilitySnapshot(input.Body.Name) {
		return nil, huma.Error409Conflict(fmt.Sprintf("snapshot %q already exists", input.Body.Name))
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Snapshot pushed"}}, nil
}

func (h *APIHandler) PopSnapshot(ctx context.Context, input *SnapshotInput) (*struct{ Body map[string]bool }, error) {
	removed, ok := h.app.Layers.PopVisibilitySnapshot(input.Name)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("snapshot %q not found", input.Name))
	}
	if removed == nil {
		removed = map[string]bool{}
	}
	return &struct{ Body map[string]bool }{Body: removed}, nil
}

func (h *APIHandler) PutBaseLayer(ctx context.Context, input *struct{ Body BaseLayerBody }) (*struct{ Body []layers.Group }, error) {
	g, ok := h.app.Layers.Group(input.Body.GroupID)
	if !ok || g.Category != layers.CategoryBase {
		return nil, huma.Error404NotFound(fmt.Sprintf("base layer %q not found", input.Body.GroupID))
	}
	h.app.Layers.SelectBaseLayer(input.Body.GroupID)
	return &struct{ Body []layers.Group }{Body: h.app.Layers.Groups(layers.CategoryBase)}, nil
}

func (h *APIHandler) selection() SelectionBody {
	s := h.app.Selection
	body := SelectionBody{Mode: s.Mode(), Hovered: s.Hovered(), Hidden: s.Hidden()}
	if sel, ok := s.Selected(); ok {
		body.Selected = &sel
	}
	return body
}

func (h *APIHandler) GetSelection(ctx context.Context, input *struct{}) (*struct{ Body SelectionBody }, error) {
	return &struct{ Body SelectionBody }{Body: h.selection()}, nil
}

func (h *APIHandler) PutMode(ctx context.Context, input *struct{ Body ModeBody }) (*struct{ Body SelectionBody }, error) {
	h.app.Selection.SetMode(input.Body.Mode)
	return &struct{ Body SelectionBody }{Body: h.selection()}, nil
}

func (h *APIHandler) PostSelection(ctx context.Context, input *struct{ Body SelectBody }) (*struct{ Body SelectionBody }, error) {
	id := input.Body.featureID()
	if input.Body.Toggle {
		h.app.Selection.ToggleSelect(id)
	} else {
		h.app.Selection.Select(id)
	}
	return &struct{ Body SelectionBody }{Body: h.selection()}, nil
}

func (h *APIHandler) DeleteSelection(ctx context.Context, input *struct{}) (*struct{ Body SelectionBody }, error) {
	h.app.Selection.ClearSelection()
	return &struct{ Body SelectionBody }{Body: h.selection()}, nil
}

// PostHover takes Datastar signals (source, sourceLayer, id, on) so the map
// view can post pointer events straight from its signal store.
func (h *APIHandler) PostHover(ctx context.Context, input *humastar.SignalsInput) (*struct{}, error) {
	signals, err := input.Parse()
	if err != nil {
		return nil, err
	}
	source := signals.String("source")
	if source == "" {
		return nil, huma.Error400BadRequest("source signal is required")
	}
	id := selection.FeatureID{Source: source, SourceLayer: signals.String("sourceLayer"), ID: signals.Int("id")}
	if signals.Has("on") && !signals.Bool("on") {
		h.app.Selection.RemoveHover(id)
	} else {
		h.app.Selection.AddHover(id)
	}
	return nil, nil
}

func (h *APIHandler) DeleteHover(ctx context.Context, input *struct{}) (*struct{}, error) {
	h.app.Selection.ClearHover()
	return nil, nil
}

func (h *APIHandler) GetFeatureState(ctx context.Context, input *FeatureStateInput) (*struct{ Body selection.FeatureState }, error) {
	id := selection.FeatureID{Source: input.Source, SourceLayer: input.SourceLayer, ID: input.ID}
	return &struct{ Body selection.FeatureState }{Body: h.app.Selection.FeatureState(id)}, nil
}

func (h *APIHandler) drawStatus() DrawStatusBody {
	_, active := h.app.Draw.Active()
	return DrawStatusBody{Active: active, Mode: h.app.Engine.Mode()}
}

func (h *APIHandler) GetDraw(ctx context.Context, input *struct{}) (*struct{ Body DrawStatusBody }, error) {
	return &struct{ Body DrawStatusBody }{Body: h.drawStatus()}, nil
}

// PostDraw starts a draw session. With a watch id the session edits that
// watch's area; with a name the drawing becomes a new watch. Either flow
// completes in the background once the drawing is finished.
func (h *APIHandler) PostDraw(ctx context.Context, input *struct{ Body DrawBody }) (*struct{ Body DrawStatusBody }, error) {
	body := input.Body
	if _, active := h.app.Draw.Active(); active {
		return &struct{ Body DrawStatusBody }{Body: h.drawStatus()}, nil
	}

	switch {
	case body.WatchID != "":
		if _, ok := h.app.Watches.Collection().Get(body.WatchID); !ok {
			return nil, huma.Error404NotFound(fmt.Sprintf("area watch %q not found", body.WatchID))
		}
		h.app.Go(func(ctx context.Context) {
			_, err := h.app.Watches.EditGeometry(ctx, body.WatchID)
			h.reportFlow(err)
		})
	case body.Name != "":
		h.app.Go(func(ctx context.Context) {
			_, err := h.app.Watches.CreateFromDrawing(ctx, areawatch.AreaWatch{Name: body.Name})
			h.reportFlow(err)
		})
	default:
		if _, err := h.app.Draw.Start(ctx, draw.Command{Mode: body.Mode}); err != nil {
			return nil, huma.Error503ServiceUnavailable("drawing engine unavailable", err)
		}
	}
	return &struct{ Body DrawStatusBody }{Body: h.drawStatus()}, nil
}

// reportFlow reports a failed background draw flow. Leaving the session is
// not a failure.
func (h *APIHandler) reportFlow(err error) {
	if err != nil && !areawatch.Canceled(err) {
		h.app.Reporter.Report(err)
	}
}

func (h *APIHandler) FinishDraw(ctx context.Context, input *struct{ Body FinishBody }) (*struct{ Body DrawStatusBody }, error) {
	if _, active := h.app.Draw.Active(); !active {
		return nil, huma.Error409Conflict("no active draw session")
	}
	if input.Body.Geometry == nil || input.Body.Geometry.Geometry() == nil {
		return nil, huma.Error422UnprocessableEntity("geometry is required")
	}
	h.app.Engine.Finish(draw.EditFeatureID, input.Body.Geometry.Geometry())
	return &struct{ Body DrawStatusBody }{Body: h.drawStatus()}, nil
}

func (h *APIHandler) DeleteDraw(ctx context.Context, input *struct{}) (*struct{ Body DrawStatusBody }, error) {
	h.app.Draw.End()
	return &struct{ Body DrawStatusBody }{Body: h.drawStatus()}, nil
}
