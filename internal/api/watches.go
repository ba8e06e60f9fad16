package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-watch/internal/areawatch"
	"github.com/joeblew999/plat-watch/internal/optimistic"
)

type WatchItem = optimistic.Item[areawatch.AreaWatch]

type WatchesBody struct {
	State string      `json:"state" enum:"idle,loading,ready,error" doc:"Collection load state"`
	Error string      `json:"error,omitempty" doc:"Load error, when state is error"`
	Items []WatchItem `json:"items" doc:"Local items with their sync state"`
}

type NewWatchBody struct {
	Name        string            `json:"name" minLength:"1" maxLength:"100" doc:"Display name"`
	Description string            `json:"description,omitempty" maxLength:"1000" doc:"Free text description"`
	Geometry    *geojson.Geometry `json:"geometry,omitempty" doc:"GeoJSON polygon"`
}

type WatchOutput struct {
	Body WatchItem
}

type SessionBody struct {
	SignedIn bool `json:"signedIn" doc:"Whether a user is signed in"`
}

type FlyBody struct {
	Outcome string `json:"outcome" enum:"arrived,superseded" doc:"How the flight ended"`
}

// RegisterWatches registers the client-side area-watch collection routes.
// Writes go through the optimistic collection, so a failed server call rolls
// the local item back before the error is returned.
func (h *APIHandler) RegisterWatches(api huma.API) {
	huma.Get(api, "/api/v1/watches", h.ListWatches, huma.OperationTags("watches"))
	huma.Register(api, huma.Operation{
		OperationID:   "add-watch",
		Method:        "POST",
		Path:          "/api/v1/watches",
		Summary:       "Add watch",
		Tags:          []string{"watches"},
		DefaultStatus: 201,
	}, h.AddWatch)
	huma.Patch(api, "/api/v1/watches/{id}", h.PatchWatch, huma.OperationTags("watches"))
	huma.Delete(api, "/api/v1/watches/{id}", h.DeleteWatch, huma.OperationTags("watches"))
	huma.Post(api, "/api/v1/watches/{id}/fly", h.FlyToWatch, huma.OperationTags("watches"))
	huma.Post(api, "/api/v1/session", h.PostSession, huma.OperationTags("session"))
}

func (h *APIHandler) ListWatches(ctx context.Context, input *struct{}) (*struct{ Body WatchesBody }, error) {
	watches := h.app.Watches.Collection()
	state, err := watches.State()
	body := WatchesBody{State: string(state), Items: watches.Items()}
	if err != nil {
		body.Error = err.Error()
	}
	return &struct{ Body WatchesBody }{Body: body}, nil
}

func (h *APIHandler) AddWatch(ctx context.Context, input *struct{ Body NewWatchBody }) (*WatchOutput, error) {
	watches := h.app.Watches.Collection()
	w, _ := watches.CreateID(areawatch.AreaWatch{
		Name:        input.Body.Name,
		Description: input.Body.Description,
		Geometry:    input.Body.Geometry,
		Enabled:     true,
	})
	if err := w.Validate(); err != nil {
		return nil, toHTTPError(err)
	}
	if err := watches.Add(ctx, w); err != nil {
		return nil, toHTTPError(err)
	}
	it, _ := watches.Get(w.ID)
	return &WatchOutput{Body: it}, nil
}

func (h *APIHandler) PatchWatch(ctx context.Context, input *PatchInput) (*WatchOutput, error) {
	watches := h.app.Watches.Collection()
	if _, ok := watches.Get(input.ID); !ok {
		return nil, toHTTPError(areawatch.ErrNotFound)
	}
	if err := watches.Patch(ctx, input.ID, input.RawBody); err != nil {
		return nil, toHTTPError(err)
	}
	it, _ := watches.Get(input.ID)
	return &WatchOutput{Body: it}, nil
}

func (h *APIHandler) DeleteWatch(ctx context.Context, input *IDInput) (*struct{}, error) {
	watches := h.app.Watches.Collection()
	if _, ok := watches.Get(input.ID); !ok {
		return nil, toHTTPError(areawatch.ErrNotFound)
	}
	if err := watches.Delete(ctx, input.ID); err != nil {
		return nil, toHTTPError(err)
	}
	return nil, nil
}

func (h *APIHandler) FlyToWatch(ctx context.Context, input *IDInput) (*struct{ Body FlyBody }, error) {
	outcome, err := h.app.FlyToWatch(ctx, input.ID)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &struct{ Body FlyBody }{Body: FlyBody{Outcome: outcome.String()}}, nil
}

func (h *APIHandler) PostSession(ctx context.Context, input *struct{ Body SessionBody }) (*struct{ Body SessionBody }, error) {
	h.app.Identity.Set(input.Body.SignedIn)
	return &struct{ Body SessionBody }{Body: SessionBody{SignedIn: h.app.Identity.Ready()}}, nil
}
