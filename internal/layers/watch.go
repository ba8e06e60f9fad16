package layers

import (
	"context"

	"github.com/joeblew999/plat-watch/internal/bus"
)

// WatchOrder calls apply with the committed render order whenever the order
// signature changes, until ctx is done. It applies the initial order right
// away.
//
// Bursts of events are coalesced, and apply always receives the order as it
// is when it runs rather than the order that triggered the wake-up, so the
// applier cannot feed back into the watcher. apply runs on the watcher
// goroutine; the returned channel is closed when the watcher exits.
func (r *Registry) WatchOrder(ctx context.Context, apply func([]LayerInfo)) <-chan struct{} {
	ch := r.bus.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer r.bus.Unsubscribe(ch)

		last := ""
		applied := false
		check := func() {
			r.mu.RLock()
			sig := r.signatureLocked()
			order := r.layersLocked()
			r.mu.RUnlock()
			if applied && sig == last {
				return
			}
			last, applied = sig, true
			apply(order)
		}

		check()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if ev.Resource != bus.ResourceLayers && ev.Resource != bus.ResourceGroups {
					continue
				}
			drain:
				for {
					select {
					case _, ok := <-ch:
						if !ok {
							return
						}
					default:
						break drain
					}
				}
				check()
			}
		}
	}()
	return done
}
