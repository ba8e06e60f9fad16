// Package bus is a small fan-out pub/sub used by the map state containers to
// tell observers (the SSE stream, the order watcher) that something changed.
package bus

import "sync"

// Resources published on the bus.
const (
	ResourceVisibility  = "visibility"
	ResourceGroups      = "groups"
	ResourceLayers      = "layers"
	ResourceSelection   = "selection"
	ResourceHover       = "hover"
	ResourceHidden      = "hidden"
	ResourceAlert       = "alert"
	ResourceMode        = "mode"
	ResourceDraw        = "draw"
	ResourceAreaWatches = "area-watches"
	ResourceSession     = "session"
	ResourceCamera      = "camera"
)

// Event represents a state mutation.
type Event struct {
	Resource string // e.g. "layers"
	Action   string // "added", "removed", "changed", ...
	ID       string // resource ID, may be empty
}

// Bus is a simple fan-out pub/sub for state change events.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Publish sends an event to all subscribers (non-blocking).
// A nil bus drops the event.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives events.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
