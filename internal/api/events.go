package api

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-watch/internal/bus"
	"github.com/joeblew999/plat-watch/internal/humastar"
	"github.com/joeblew999/plat-watch/internal/layers"
	"github.com/joeblew999/plat-watch/internal/selection"
)

// MapSignals is the map-state snapshot patched into the view's Datastar
// signal store.
type MapSignals struct {
	Mode      selection.Mode                    `json:"mode"`
	Groups    []layers.Group                    `json:"groups"`
	Layers    []layers.LayerInfo                `json:"layers"`
	Signature string                            `json:"signature"`
	Features  map[string]selection.FeatureState `json:"features"`
	Draw      DrawStatusBody                    `json:"draw"`
	Watches   WatchesBody                       `json:"watches"`
	SignedIn  bool                              `json:"signedIn"`
	Camera    []float64                         `json:"camera,omitempty"`
}

// RegisterEvents registers the map-state SSE stream.
func (h *APIHandler) RegisterEvents(api huma.API) {
	huma.Get(api, "/api/v1/map/events", h.Events, huma.OperationTags("events"))
}

// mapSignals collects the current map state. Features lists every feature
// with a non-default state, keyed by FeatureID.String().
func (h *APIHandler) mapSignals() MapSignals {
	a := h.app
	s := a.Selection

	features := map[string]selection.FeatureState{}
	mark := func(id selection.FeatureID) {
		features[id.String()] = s.FeatureState(id)
	}
	if sel, ok := s.Selected(); ok {
		mark(sel.Feature)
	}
	for _, hv := range s.Hovered() {
		mark(hv.Feature)
	}
	for _, id := range s.Hidden() {
		mark(id)
	}
	for _, id := range s.Alerts() {
		mark(id)
	}

	watches, _ := h.ListWatches(context.Background(), nil)
	signals := MapSignals{
		Mode:      s.Mode(),
		Groups:    a.Layers.Groups(),
		Layers:    a.AppliedOrder(),
		Signature: a.Layers.OrderSignature(),
		Features:  features,
		Draw:      h.drawStatus(),
		Watches:   watches.Body,
		SignedIn:  a.Identity.Ready(),
	}
	if b := a.Camera.Target(); b != (orb.Bound{}) {
		signals.Camera = []float64{b.Left(), b.Bottom(), b.Right(), b.Top()}
	}
	return signals
}

// Events streams the map state as Datastar signal patches: one full snapshot
// on connect, then one per burst of changes. Every change is also dispatched
// as a resource-changed DOM event.
func (h *APIHandler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
	return humastar.Stream(func(ctx context.Context, sse humastar.SSE) {
		ch := h.app.Bus.Subscribe()
		defer h.app.Bus.Unsubscribe(ch)

		if err := sse.Signals(h.mapSignals()); err != nil {
			return
		}

		keepalive := time.NewTicker(30 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-keepalive.C:
				if err := sse.Signals(map[string]any{"heartbeat": time.Now().Unix()}); err != nil {
					return
				}
			case ev, ok := <-ch:
				if !ok {
					return
				}
				events := []bus.Event{ev}
			drain:
				for {
					select {
					case more, ok := <-ch:
						if !ok {
							return
						}
						events = append(events, more)
					default:
						break drain
					}
				}
				for _, e := range events {
					sse.DispatchCustomEvent("resource-changed", map[string]any{
						"resource": e.Resource,
						"action":   e.Action,
						"id":       e.ID,
					})
				}
				if err := sse.Signals(h.mapSignals()); err != nil {
					return
				}
			}
		}
	}), nil
}
