package mapstate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-watch/internal/areawatch"
	"github.com/joeblew999/plat-watch/internal/camera"
	"github.com/joeblew999/plat-watch/internal/layers"
	"github.com/joeblew999/plat-watch/internal/optimistic"
	"github.com/joeblew999/plat-watch/internal/selection"
)

const layerFile = `
groups:
  - id: base-osm
    name: OpenStreetMap
    category: base
    visible: true
    layers:
      - id: osm-raster
        kind: raster
        source: osm
  - id: base-satellite
    name: Satellite
    category: base
    layers:
      - id: sat-raster
        kind: raster
        source: satellite
`

func newApp(t *testing.T, cfg Config) *App {
	t.Helper()
	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, app.Close()) })
	return app
}

func TestNewMountsLayersAndWatchGroup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(layerFile), 0644))

	app := newApp(t, Config{LayersFile: path, SettingsBackend: BackendMemory})

	ids := func(gs []layers.Group) []string {
		out := make([]string, len(gs))
		for i, g := range gs {
			out[i] = g.ID
		}
		return out
	}
	assert.Equal(t, []string{"base-osm", "base-satellite"}, ids(app.Layers.Groups(layers.CategoryBase)))
	assert.Equal(t, []string{"area-watches"}, ids(app.Layers.Groups(layers.CategoryFeature)))

	g, ok := app.Layers.GroupBySource(areawatch.Source, "")
	require.True(t, ok)
	assert.True(t, g.Interactivity.Select)
}

func TestNewRejectsBadLayerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("groups:\n  - id: x\n"), 0644))

	_, err := New(Config{LayersFile: path, SettingsBackend: BackendMemory})
	assert.Error(t, err)
}

func TestSettingsBackends(t *testing.T) {
	for _, backend := range []string{BackendMemory, BackendFile, BackendBadger, BackendDuckDB} {
		t.Run(backend, func(t *testing.T) {
			app := newApp(t, Config{DataDir: t.TempDir(), SettingsBackend: backend})
			require.True(t, app.Layers.SetVisibility("area-watches", false, ""))

			var stored map[string]bool
			ok, err := app.Settings.Get(layers.SettingsKey, layers.SettingsVersion, &stored)
			require.NoError(t, err)
			require.True(t, ok)
			assert.False(t, stored["area-watches"])
		})
	}

	_, err := New(Config{SettingsBackend: "etcd"})
	assert.Error(t, err)
}

func TestPreferenceSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	first, err := New(Config{DataDir: dir, SettingsBackend: BackendFile})
	require.NoError(t, err)
	first.Layers.SetVisibility("area-watches", false, "")
	require.NoError(t, first.Close())

	second := newApp(t, Config{DataDir: dir, SettingsBackend: BackendFile})
	assert.False(t, second.Layers.Visible("area-watches"))
}

func TestStartLoadsWatchesOnSignIn(t *testing.T) {
	app := newApp(t, Config{SettingsBackend: BackendMemory})
	_, err := app.Store.Create(areawatch.AreaWatch{Name: "Harbour"}.WithGeom(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}))
	require.NoError(t, err)

	app.Start(context.Background())

	watches := app.Watches.Collection()
	state, _ := watches.State()
	assert.Equal(t, optimistic.LoadIdle, state)

	app.Identity.Set(true)
	require.Eventually(t, func() bool {
		s, _ := watches.State()
		return s == optimistic.LoadReady
	}, time.Second, time.Millisecond)
	require.Len(t, watches.Items(), 1)

	// Selecting a rendered watch resolves to the watch group.
	id := watches.Items()[0].Value.ID
	fid := app.Watches.FeatureID(id)
	app.Selection.Select(fid)
	sel, ok := app.Selection.Selected()
	require.True(t, ok)
	assert.Equal(t, "area-watches", sel.LayerGroupID)

	outcome, err := app.FlyToWatch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, camera.Arrived, outcome)

	app.Identity.Set(false)
	require.Eventually(t, func() bool {
		s, _ := watches.State()
		return s == optimistic.LoadIdle
	}, time.Second, time.Millisecond)
	assert.Equal(t, selection.ModeSelect, app.Selection.Mode())
}

func TestOrderWatcherAppliesMounts(t *testing.T) {
	app := newApp(t, Config{SettingsBackend: BackendMemory})
	app.Start(context.Background())

	require.Eventually(t, func() bool { return len(app.AppliedOrder()) == 2 }, time.Second, time.Millisecond)

	require.NoError(t, app.Layers.Mount(layers.Config{Groups: []layers.GroupConfig{{
		ID: "roads", Name: "Roads", Category: layers.CategoryFeature,
		Layers: []layers.LayerConfig{{ID: "roads-line", Kind: "line", Source: "osm-vector", SourceLayer: "roads"}},
	}}}))
	require.Eventually(t, func() bool { return len(app.AppliedOrder()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, "roads-line", app.AppliedOrder()[2].ID)
}
