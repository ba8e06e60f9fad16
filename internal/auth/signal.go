// Package auth exposes the identity readiness signal the map state reacts to.
// Token handling lives elsewhere; this package only tracks whether a user is
// signed in.
package auth

import "sync"

// Signal is an observable readiness flag.
type Signal struct {
	mu    sync.Mutex
	ready bool
	subs  map[chan bool]struct{}
}

// NewSignal creates a signal with the given initial value.
func NewSignal(ready bool) *Signal {
	return &Signal{ready: ready, subs: make(map[chan bool]struct{})}
}

// Ready returns the current value.
func (s *Signal) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Set updates the value and notifies subscribers when it changes.
func (s *Signal) Set(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready == ready {
		return
	}
	s.ready = ready
	for ch := range s.subs {
		// Keep only the latest value for slow subscribers.
		select {
		case <-ch:
		default:
		}
		ch <- ready
	}
}

// Subscribe returns a channel of transitions and a cancel func that closes it.
func (s *Signal) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}
