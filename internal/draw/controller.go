// Package draw manages interactive geometry-drawing sessions: at most one at
// a time, started from a command, handing the finished geometry back to the
// caller.
package draw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-watch/internal/bus"
	"github.com/joeblew999/plat-watch/internal/report"
	"github.com/joeblew999/plat-watch/internal/selection"
)

// Drawing engine modes.
const (
	EngineModeStatic  = "static" // neutral: render and pick only
	EngineModeSelect  = "select" // edit the selected feature
	EngineModePolygon = "polygon"
	EngineModeLine    = "linestring"
	EngineModePoint   = "point"
)

// EditFeatureID is the engine-side id of a geometry preloaded for editing.
const EditFeatureID = "edit"

// ErrCanceled is returned by Session.Wait when the session ended before the
// engine reported a finished geometry.
var ErrCanceled = errors.New("draw session ended without a geometry")

// Engine is the drawing-surface collaborator, reached only through these
// verbs.
type Engine interface {
	Init(ctx context.Context) error
	AddFeature(id string, g orb.Geometry) error
	SelectFeature(id string) error
	RemoveFeatures(ids ...string)
	SetMode(mode string) error
	Clear()
	// OnFinish registers the callback for "finish" events.
	OnFinish(fn func(id string, g orb.Geometry))
}

// Selection is the part of the selection state a controller coordinates with.
type Selection interface {
	Mode() selection.Mode
	SetMode(selection.Mode)
	Hide(selection.FeatureID)
	Unhide(selection.FeatureID)
	OnModeChange(selection.ModeHook)
}

// Command asks to enter draw mode. Without ID and Geometry it creates a new
// geometry with the given engine Mode; with both it edits an existing one.
type Command struct {
	ID       *selection.FeatureID
	Geometry orb.Geometry
	Mode     string
}

// Session is the handle of one draw session.
type Session struct {
	command  Command
	done     chan struct{}
	once     sync.Once
	geometry orb.Geometry
	err      error
}

func newSession(cmd Command) *Session {
	return &Session{command: cmd, done: make(chan struct{})}
}

// Command returns the command that started the session.
func (s *Session) Command() Command { return s.command }

// Done is closed once the session has a result.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the engine finishes a geometry, the session ends, or ctx
// is done.
func (s *Session) Wait(ctx context.Context) (orb.Geometry, error) {
	select {
	case <-s.done:
		return s.geometry, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) resolve(g orb.Geometry, err error) {
	s.once.Do(func() {
		s.geometry, s.err = g, err
		close(s.done)
	})
}

// Controller owns the single active draw session.
type Controller struct {
	mu     sync.Mutex
	ready  bool
	active *Session

	engine   Engine
	sel      Selection
	reporter report.Reporter
	bus      *bus.Bus
	logger   *slog.Logger
}

// NewController wires a controller to the engine and the selection state.
func NewController(engine Engine, sel Selection, reporter report.Reporter, b *bus.Bus, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = report.NewLogger(logger)
	}
	c := &Controller{engine: engine, sel: sel, reporter: reporter, bus: b, logger: logger}
	sel.OnModeChange(c.onModeChange)
	engine.OnFinish(c.onFinish)
	return c
}

// Active returns the in-progress session, if any.
func (c *Controller) Active() (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active, c.active != nil
}

// Start enters draw mode. While a session is active it returns that session,
// whatever the new command says.
func (c *Controller) Start(ctx context.Context, cmd Command) (*Session, error) {
	c.mu.Lock()
	if c.active != nil {
		s := c.active
		c.mu.Unlock()
		return s, nil
	}
	if !c.ready {
		if err := c.engine.Init(ctx); err != nil {
			c.mu.Unlock()
			err = fmt.Errorf("draw engine init: %w", err)
			c.reporter.Report(err)
			return nil, err
		}
		c.ready = true
	}
	s := newSession(cmd)
	c.active = s
	c.mu.Unlock()

	prev := c.sel.Mode()
	c.sel.SetMode(selection.ModeDraw)
	if cmd.ID != nil {
		c.sel.Hide(*cmd.ID)
	}

	if err := c.prepareSurface(cmd); err != nil {
		err = fmt.Errorf("draw engine: %w", err)
		c.reporter.Report(err)
		c.end()
		c.sel.SetMode(prev)
		return nil, err
	}

	c.logger.Info("draw session started", slog.Bool("edit", cmd.Geometry != nil))
	c.bus.Publish(bus.Event{Resource: bus.ResourceDraw, Action: "started"})
	return s, nil
}

func (c *Controller) prepareSurface(cmd Command) error {
	if cmd.Geometry != nil {
		if err := c.engine.AddFeature(EditFeatureID, cmd.Geometry); err != nil {
			return err
		}
		if err := c.engine.SelectFeature(EditFeatureID); err != nil {
			return err
		}
		return c.engine.SetMode(EngineModeSelect)
	}
	mode := cmd.Mode
	if mode == "" {
		mode = EngineModePolygon
	}
	return c.engine.SetMode(mode)
}

func (c *Controller) onFinish(id string, g orb.Geometry) {
	c.mu.Lock()
	s := c.active
	c.mu.Unlock()
	if s == nil {
		return
	}

	s.resolve(g, nil)
	if err := c.engine.SetMode(EngineModeStatic); err != nil {
		c.reporter.Report(fmt.Errorf("draw engine: %w", err))
	}
	c.logger.Info("draw session finished", slog.String("feature", id))
	c.bus.Publish(bus.Event{Resource: bus.ResourceDraw, Action: "finished", ID: id})
}

// End leaves draw mode, which releases the session.
func (c *Controller) End() {
	if c.sel.Mode() == selection.ModeDraw {
		c.sel.SetMode(selection.ModeSelect)
		return
	}
	c.end()
}

func (c *Controller) onModeChange(from, to selection.Mode) {
	if from == selection.ModeDraw {
		c.end()
	}
}

func (c *Controller) end() {
	c.mu.Lock()
	s := c.active
	c.active = nil
	c.mu.Unlock()
	if s == nil {
		return
	}

	if s.command.ID != nil {
		c.sel.Unhide(*s.command.ID)
	}
	c.engine.Clear()
	s.resolve(nil, ErrCanceled)
	c.bus.Publish(bus.Event{Resource: bus.ResourceDraw, Action: "ended"})
}
