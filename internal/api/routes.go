// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-watch/internal/areawatch"
	"github.com/joeblew999/plat-watch/internal/camera"
	"github.com/joeblew999/plat-watch/internal/draw"
	"github.com/joeblew999/plat-watch/internal/layers"
	"github.com/joeblew999/plat-watch/internal/mapstate"
	"github.com/joeblew999/plat-watch/internal/optimistic"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Types

type IDInput struct {
	ID string `path:"id" doc:"Area watch ID" example:"0b8f3c52-5f0e-4d7c-a4f5-0a1d9e3b2c11"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.1.0"`
}

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	DataDir    string   `json:"data_dir" doc:"Data directory path"`
	Settings   string   `json:"settings" doc:"Settings backend"`
	Remote     string   `json:"remote,omitempty" doc:"Remote area-watch server, if any"`
	Features   []string `json:"features" doc:"Available features"`
	Signature  string   `json:"signature" doc:"Current render order signature"`
	LoadStatus string   `json:"loadStatus" doc:"Area-watch collection load state"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	app *mapstate.App
	cfg mapstate.Config
}

func NewAPIHandler(app *mapstate.App, cfg mapstate.Config) *APIHandler {
	return &APIHandler{app: app, cfg: cfg}
}

// RegisterRoutes registers every API route on api.
func RegisterRoutes(api huma.API, app *mapstate.App, cfg mapstate.Config) {
	huma.AutoRegister(api, NewAPIHandler(app, cfg))
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	state, _ := h.app.Watches.Collection().State()
	backend := h.cfg.SettingsBackend
	if backend == "" {
		backend = mapstate.BackendFile
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:       "plat-watch",
		Version:    Version,
		DataDir:    h.cfg.DataDir,
		Settings:   backend,
		Remote:     h.cfg.RemoteURL,
		Features:   []string{"layers", "selection", "draw", "area-watches", "datastar"},
		Signature:  h.app.Layers.OrderSignature(),
		LoadStatus: string(state),
	}}, nil
}

// toHTTPError maps domain errors onto Huma status errors.
func toHTTPError(err error) error {
	var status *areawatch.StatusError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, areawatch.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, areawatch.ErrInvalid), errors.Is(err, camera.ErrNoGeometry):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, areawatch.ErrExists):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, optimistic.ErrNotReady), errors.Is(err, draw.ErrCanceled):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, layers.ErrUnknownGroup):
		return huma.Error404NotFound(err.Error())
	case errors.As(err, &status), errors.Is(err, optimistic.ErrNotCollection):
		return huma.Error502BadGateway("area-watch server error", err)
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}
