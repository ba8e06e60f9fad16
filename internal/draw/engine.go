package draw

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-watch/internal/bus"
)

// MemoryEngine is an in-process drawing surface. It keeps the state a
// browser-side drawing tool would hold and publishes every verb on the bus
// so a remote view can mirror it; finished drawings are fed back through
// Finish.
type MemoryEngine struct {
	mu       sync.Mutex
	ready    bool
	mode     string
	selected string
	features map[string]orb.Geometry
	finish   []func(id string, g orb.Geometry)

	initErr error
	bus     *bus.Bus
}

// NewMemoryEngine creates an engine. A non-nil initErr makes Init fail,
// which mirrors a drawing library that could not load.
func NewMemoryEngine(b *bus.Bus, initErr error) *MemoryEngine {
	return &MemoryEngine{
		mode:     EngineModeStatic,
		features: make(map[string]orb.Geometry),
		initErr:  initErr,
		bus:      b,
	}
}

func (e *MemoryEngine) publish(action, id string) {
	e.bus.Publish(bus.Event{Resource: bus.ResourceDraw, Action: action, ID: id})
}

// Init implements Engine.
func (e *MemoryEngine) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.initErr != nil {
		return e.initErr
	}
	e.mu.Lock()
	e.ready = true
	e.mu.Unlock()
	e.publish("ready", "")
	return nil
}

// AddFeature implements Engine.
func (e *MemoryEngine) AddFeature(id string, g orb.Geometry) error {
	e.mu.Lock()
	e.features[id] = g
	e.mu.Unlock()
	e.publish("feature-added", id)
	return nil
}

// SelectFeature implements Engine.
func (e *MemoryEngine) SelectFeature(id string) error {
	e.mu.Lock()
	e.selected = id
	e.mu.Unlock()
	e.publish("feature-selected", id)
	return nil
}

// RemoveFeatures implements Engine.
func (e *MemoryEngine) RemoveFeatures(ids ...string) {
	e.mu.Lock()
	for _, id := range ids {
		delete(e.features, id)
		if e.selected == id {
			e.selected = ""
		}
	}
	e.mu.Unlock()
	e.publish("features-removed", "")
}

// SetMode implements Engine.
func (e *MemoryEngine) SetMode(mode string) error {
	e.mu.Lock()
	e.mode = mode
	e.mu.Unlock()
	e.publish("mode", mode)
	return nil
}

// Clear implements Engine.
func (e *MemoryEngine) Clear() {
	e.mu.Lock()
	clear(e.features)
	e.selected = ""
	e.mode = EngineModeStatic
	e.mu.Unlock()
	e.publish("cleared", "")
}

// OnFinish implements Engine.
func (e *MemoryEngine) OnFinish(fn func(id string, g orb.Geometry)) {
	e.mu.Lock()
	e.finish = append(e.finish, fn)
	e.mu.Unlock()
}

// Finish records a completed drawing and emits the finish event.
func (e *MemoryEngine) Finish(id string, g orb.Geometry) {
	e.mu.Lock()
	e.features[id] = g
	handlers := slices.Clone(e.finish)
	e.mu.Unlock()

	for _, fn := range handlers {
		fn(id, g)
	}
}

// Mode returns the current engine mode.
func (e *MemoryEngine) Mode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Selected returns the selected engine feature.
func (e *MemoryEngine) Selected() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// Features returns a copy of the features on the surface.
func (e *MemoryEngine) Features() map[string]orb.Geometry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.features)
}
