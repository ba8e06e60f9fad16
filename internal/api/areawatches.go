package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-watch/internal/areawatch"
)

type AreaWatchOutput struct {
	Body areawatch.AreaWatch
}

type AreaWatchesOutput struct {
	Body []areawatch.AreaWatch
}

type PatchInput struct {
	IDInput
	RawBody []byte `contentType:"application/merge-patch+json" doc:"RFC 7386 JSON merge patch"`
}

// RegisterAreaWatches registers the area-watch collection routes. They are
// the server side of the optimistic collection and only exist when this
// process owns the store.
func (h *APIHandler) RegisterAreaWatches(api huma.API) {
	if h.app.Store == nil {
		return
	}
	huma.Get(api, "/api/v1/area-watches", h.ListAreaWatches, huma.OperationTags("area-watches"))
	huma.Register(api, huma.Operation{
		OperationID:   "create-area-watch",
		Method:        "POST",
		Path:          "/api/v1/area-watches",
		Summary:       "Create area watch",
		Tags:          []string{"area-watches"},
		DefaultStatus: 201,
	}, h.CreateAreaWatch)
	huma.Get(api, "/api/v1/area-watches/{id}", h.GetAreaWatch, huma.OperationTags("area-watches"))
	huma.Patch(api, "/api/v1/area-watches/{id}", h.PatchAreaWatch, huma.OperationTags("area-watches"))
	huma.Delete(api, "/api/v1/area-watches/{id}", h.DeleteAreaWatch, huma.OperationTags("area-watches"))
}

func (h *APIHandler) ListAreaWatches(ctx context.Context, input *struct{}) (*AreaWatchesOutput, error) {
	return &AreaWatchesOutput{Body: h.app.Store.List()}, nil
}

func (h *APIHandler) CreateAreaWatch(ctx context.Context, input *struct{ Body areawatch.AreaWatch }) (*AreaWatchOutput, error) {
	created, err := h.app.Store.Create(input.Body)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &AreaWatchOutput{Body: created}, nil
}

func (h *APIHandler) GetAreaWatch(ctx context.Context, input *IDInput) (*AreaWatchOutput, error) {
	w, err := h.app.Store.Get(input.ID)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &AreaWatchOutput{Body: w}, nil
}

func (h *APIHandler) PatchAreaWatch(ctx context.Context, input *PatchInput) (*AreaWatchOutput, error) {
	updated, err := h.app.Store.Patch(input.ID, input.RawBody)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &AreaWatchOutput{Body: updated}, nil
}

func (h *APIHandler) DeleteAreaWatch(ctx context.Context, input *IDInput) (*struct{}, error) {
	if err := h.app.Store.Delete(input.ID); err != nil {
		return nil, toHTTPError(err)
	}
	return nil, nil
}
