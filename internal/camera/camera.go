// Package camera moves the map view to a geometry. Only one flight runs at a
// time: starting a new one ends the previous flight early, which is not an
// error for the caller that started it.
package camera

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-watch/internal/bus"
)

// Outcome is how a flight ended.
type Outcome int

const (
	Arrived Outcome = iota
	Superseded
)

func (o Outcome) String() string {
	if o == Superseded {
		return "superseded"
	}
	return "arrived"
}

var (
	ErrNoGeometry = errors.New("camera: no geometry to fly to")

	errSuperseded = errors.New("camera: superseded by a newer flight")
)

// DefaultPadding is the share of the target's extent added on every side.
const DefaultPadding = 0.1

// minPad is used for targets without extent, e.g. a single point.
const minPad = 0.005

// Animator eases the view to a bound. It returns when the view arrived or
// ctx is done.
type Animator interface {
	EaseTo(ctx context.Context, target orb.Bound) error
}

// Flyer serializes flights.
type Flyer struct {
	mu      sync.Mutex
	seq     uint64
	cancel  context.CancelCauseFunc
	current orb.Bound

	animator Animator
	padding  float64
}

// NewFlyer creates a flyer. A padding <= 0 uses DefaultPadding.
func NewFlyer(animator Animator, padding float64) *Flyer {
	if padding <= 0 {
		padding = DefaultPadding
	}
	return &Flyer{animator: animator, padding: padding}
}

// Frame returns the padded bound that shows g.
func Frame(g orb.Geometry, padding float64) orb.Bound {
	b := g.Bound()
	extent := max(b.Right()-b.Left(), b.Top()-b.Bottom())
	return b.Pad(max(extent*padding, minPad))
}

// Target returns the bound of the last flight that started.
func (f *Flyer) Target() orb.Bound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// FlyTo moves the view to g. If another FlyTo starts before this one
// arrives, this one returns Superseded with a nil error.
func (f *Flyer) FlyTo(ctx context.Context, g orb.Geometry) (Outcome, error) {
	if g == nil {
		return Arrived, ErrNoGeometry
	}
	target := Frame(g, f.padding)
	fctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	f.mu.Lock()
	if f.cancel != nil {
		f.cancel(errSuperseded)
	}
	f.seq++
	seq := f.seq
	f.cancel = cancel
	f.current = target
	f.mu.Unlock()

	err := f.animator.EaseTo(fctx, target)

	f.mu.Lock()
	if f.seq == seq {
		f.cancel = nil
	}
	f.mu.Unlock()

	if err != nil {
		if errors.Is(context.Cause(fctx), errSuperseded) {
			return Superseded, nil
		}
		return Arrived, err
	}
	return Arrived, nil
}

// BusAnimator announces the target on the bus and lets the view ease for a
// fixed duration. The browser does the actual animation.
type BusAnimator struct {
	Bus      *bus.Bus
	Duration time.Duration
}

func (a BusAnimator) EaseTo(ctx context.Context, target orb.Bound) error {
	a.Bus.Publish(bus.Event{Resource: bus.ResourceCamera, Action: "fly"})
	if a.Duration <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(a.Duration)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
