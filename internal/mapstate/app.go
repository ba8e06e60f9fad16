// Package mapstate builds the map interaction core and wires its parts
// together: layer registry, selection, draw sessions, the area-watch
// collection, identity and camera.
package mapstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/joeblew999/plat-watch/internal/areawatch"
	"github.com/joeblew999/plat-watch/internal/auth"
	"github.com/joeblew999/plat-watch/internal/bus"
	"github.com/joeblew999/plat-watch/internal/camera"
	"github.com/joeblew999/plat-watch/internal/db"
	"github.com/joeblew999/plat-watch/internal/draw"
	"github.com/joeblew999/plat-watch/internal/layers"
	"github.com/joeblew999/plat-watch/internal/optimistic"
	"github.com/joeblew999/plat-watch/internal/report"
	"github.com/joeblew999/plat-watch/internal/selection"
	"github.com/joeblew999/plat-watch/internal/service"
	"github.com/joeblew999/plat-watch/internal/settings"
)

// Settings backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendDuckDB = "duckdb"
)

// Config holds the application configuration.
type Config struct {
	DataDir string
	// LayersFile is a YAML layer configuration mounted at start. Optional.
	LayersFile string
	// SettingsBackend is one of memory, file, badger or duckdb.
	SettingsBackend string
	// RemoteURL points the area-watch collection at another server. Empty
	// serves it from the local store.
	RemoteURL string
	// SignedIn is the initial identity state.
	SignedIn bool
	// FlyDuration is how long the view takes to ease to a target.
	FlyDuration time.Duration
	Logger      *slog.Logger
}

// App is the wired map state.
type App struct {
	Bus       *bus.Bus
	Settings  *settings.VersionedStore
	Reporter  report.Reporter
	Layers    *layers.Registry
	Selection *selection.State
	Engine    *draw.MemoryEngine
	Draw      *draw.Controller
	Identity  *auth.Signal
	Camera    *camera.Flyer
	// Store is the server side of the area-watch collection. Nil when the
	// collection syncs with a remote server.
	Store   *service.AreaWatchService
	Watches *areawatch.Service

	logger *slog.Logger
	sqlDB  *sql.DB

	mu      sync.RWMutex
	applied []layers.LayerInfo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the application. Nothing runs until Start.
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Bus: bus.New(), logger: logger, ctx: context.Background()}

	store, err := a.openSettings(cfg)
	if err != nil {
		return nil, err
	}
	a.Settings = store
	a.Reporter = report.NewLogger(logger)

	a.Layers = layers.NewRegistry(layers.Options{Settings: store, Bus: a.Bus, Logger: logger})
	if cfg.LayersFile != "" {
		layerCfg, err := layers.LoadConfigFile(cfg.LayersFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.Layers.Mount(layerCfg); err != nil {
			a.Close()
			return nil, fmt.Errorf("mount %s: %w", cfg.LayersFile, err)
		}
	}

	if _, ok := a.Layers.GroupBySource(areawatch.Source, ""); !ok {
		if err := a.Layers.Mount(watchLayers); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Selection = selection.New(a.Layers, a.Reporter, a.Bus, logger)
	a.Engine = draw.NewMemoryEngine(a.Bus, nil)
	a.Draw = draw.NewController(a.Engine, a.Selection, a.Reporter, a.Bus, logger)
	a.Identity = auth.NewSignal(cfg.SignedIn)
	a.Camera = camera.NewFlyer(camera.BusAnimator{Bus: a.Bus, Duration: cfg.FlyDuration}, camera.DefaultPadding)

	var transport optimistic.Transport[areawatch.AreaWatch]
	if cfg.RemoteURL != "" {
		transport = areawatch.NewClient(cfg.RemoteURL, &http.Client{Timeout: 30 * time.Second})
	} else {
		a.Store = service.NewAreaWatchService(cfg.DataDir, a.Bus)
		transport = areawatch.NewLocal(a.Store)
	}
	watches := optimistic.New[areawatch.AreaWatch](transport, optimistic.Options{
		Resource: bus.ResourceAreaWatches,
		Bus:      a.Bus,
		Logger:   logger,
	})
	a.Watches = areawatch.NewService(watches, a.Draw, logger)

	return a, nil
}

// watchLayers renders area watches when the layer file does not.
var watchLayers = layers.Config{Groups: []layers.GroupConfig{{
	ID:            "area-watches",
	Name:          "Area watches",
	Category:      layers.CategoryFeature,
	Visible:       true,
	Interactivity: layers.Interactivity{Select: true, Hover: true},
	Layers: []layers.LayerConfig{
		{ID: "area-watches-fill", Kind: "fill", Source: areawatch.Source, Hints: map[string]any{"fill-opacity": 0.2}},
		{ID: "area-watches-outline", Kind: "line", Source: areawatch.Source},
	},
}}}

func (a *App) openSettings(cfg Config) (*settings.VersionedStore, error) {
	switch cfg.SettingsBackend {
	case "", BackendFile:
		if cfg.DataDir == "" {
			return settings.NewMemory().VersionedStore, nil
		}
		return settings.New(settings.NewFileBackend(cfg.DataDir), a.logger), nil
	case BackendMemory:
		return settings.NewMemory().VersionedStore, nil
	case BackendBadger:
		b, err := settings.OpenBadger(settings.BadgerConfig{
			Path:     filepath.Join(cfg.DataDir, "badger"),
			InMemory: cfg.DataDir == "",
			Logger:   a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open badger settings: %w", err)
		}
		return settings.New(b, a.logger), nil
	case BackendDuckDB:
		conn, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "settings", InMemory: cfg.DataDir == ""})
		if err != nil {
			return nil, fmt.Errorf("open duckdb settings: %w", err)
		}
		b, err := settings.NewDuckDBBackend(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("open duckdb settings: %w", err)
		}
		a.sqlDB = conn
		return settings.New(b, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.SettingsBackend)
	}
}

// Start runs the background watchers: the render order watcher and the
// identity binding of the area-watch collection.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.ctx = ctx

	orderDone := a.Layers.WatchOrder(ctx, a.applyOrder)
	identityDone := a.Watches.Collection().BindIdentity(ctx, a.Identity)

	a.wg.Add(2)
	go func() { defer a.wg.Done(); <-orderDone }()
	go func() { defer a.wg.Done(); <-identityDone }()
}

// Go runs fn in the background with the application context. Close waits
// for it.
func (a *App) Go(fn func(ctx context.Context)) {
	ctx := a.ctx
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(ctx)
	}()
}

// applyOrder records the order handed to the renderer.
func (a *App) applyOrder(order []layers.LayerInfo) {
	a.mu.Lock()
	a.applied = order
	a.mu.Unlock()
	a.logger.Debug("render order applied", slog.Int("layers", len(order)))
	a.Bus.Publish(bus.Event{Resource: bus.ResourceLayers, Action: "applied"})
}

// AppliedOrder returns the last order the watcher applied.
func (a *App) AppliedOrder() []layers.LayerInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.applied
}

// FlyToWatch moves the camera to an area watch.
func (a *App) FlyToWatch(ctx context.Context, id string) (camera.Outcome, error) {
	it, ok := a.Watches.Collection().Get(id)
	if !ok {
		return camera.Arrived, fmt.Errorf("fly to %s: %w", id, areawatch.ErrNotFound)
	}
	return a.Camera.FlyTo(ctx, it.Value.Geom())
}

// Close stops the watchers and releases storage.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.Draw != nil {
		a.Draw.End()
	}
	a.wg.Wait()
	var errs []error
	if a.Settings != nil {
		errs = append(errs, a.Settings.Close())
	}
	if a.sqlDB != nil {
		errs = append(errs, a.sqlDB.Close())
	}
	return errors.Join(errs...)
}
