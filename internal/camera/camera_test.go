package camera

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateAnimator blocks every flight until released or canceled.
type gateAnimator struct {
	started chan orb.Bound
	release chan struct{}
}

func newGateAnimator() *gateAnimator {
	return &gateAnimator{started: make(chan orb.Bound, 4), release: make(chan struct{})}
}

func (a *gateAnimator) EaseTo(ctx context.Context, target orb.Bound) error {
	a.started <- target
	select {
	case <-a.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestFrame(t *testing.T) {
	b := Frame(orb.Polygon{{{0, 0}, {10, 0}, {10, 5}, {0, 5}, {0, 0}}}, 0.1)
	assert.Equal(t, orb.Bound{Min: orb.Point{-1, -1}, Max: orb.Point{11, 6}}, b)

	p := Frame(orb.Point{3, 4}, 0.1)
	assert.InDelta(t, 3-minPad, p.Left(), 1e-12)
	assert.InDelta(t, 4+minPad, p.Top(), 1e-12)
}

func TestFlyToArrives(t *testing.T) {
	a := newGateAnimator()
	close(a.release)
	f := NewFlyer(a, 0)

	outcome, err := f.FlyTo(context.Background(), orb.Point{1, 1})
	require.NoError(t, err)
	assert.Equal(t, Arrived, outcome)
	assert.Equal(t, Frame(orb.Point{1, 1}, DefaultPadding), f.Target())
}

func TestNewerFlightSupersedes(t *testing.T) {
	a := newGateAnimator()
	f := NewFlyer(a, 0)

	type result struct {
		outcome Outcome
		err     error
	}
	first := make(chan result, 1)
	go func() {
		o, err := f.FlyTo(context.Background(), orb.Point{1, 1})
		first <- result{o, err}
	}()
	<-a.started

	second := make(chan result, 1)
	go func() {
		o, err := f.FlyTo(context.Background(), orb.Point{2, 2})
		second <- result{o, err}
	}()

	select {
	case r := <-first:
		assert.NoError(t, r.err)
		assert.Equal(t, Superseded, r.outcome)
	case <-time.After(time.Second):
		t.Fatal("first flight was not superseded")
	}

	<-a.started
	close(a.release)
	r := <-second
	assert.NoError(t, r.err)
	assert.Equal(t, Arrived, r.outcome)
}

func TestCallerCancellationIsAnError(t *testing.T) {
	a := newGateAnimator()
	f := NewFlyer(a, 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := f.FlyTo(ctx, orb.Point{1, 1})
		done <- err
	}()
	<-a.started
	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
}

func TestNoGeometry(t *testing.T) {
	_, err := NewFlyer(newGateAnimator(), 0).FlyTo(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoGeometry)
}
