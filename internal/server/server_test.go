package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-watch/internal/areawatch"
	"github.com/joeblew999/plat-watch/internal/mapstate"
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

func newTestServer(t *testing.T, cfg mapstate.Config) (*Server, *httptest.Server) {
	t.Helper()
	if cfg.SettingsBackend == "" {
		cfg.SettingsBackend = mapstate.BackendMemory
	}
	if cfg.LayersFile == "" {
		cfg.LayersFile = filepath.Join(t.TempDir(), "layers.yaml")
		require.NoError(t, os.WriteFile(cfg.LayersFile, []byte(layerFile), 0644))
	}
	srv, err := New(Config{Host: "localhost", Port: "0", App: cfg})
	require.NoError(t, err)
	srv.Start(context.Background())

	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		assert.NoError(t, srv.Close())
	})
	return srv, ts
}

func call(t *testing.T, ts *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
		contentType = "application/merge-patch+json"
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealthAndLinks(t *testing.T) {
	_, ts := newTestServer(t, mapstate.Config{})

	resp, body := call(t, ts, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","version":"0.1.0"}`, string(body))
	assert.Contains(t, resp.Header.Values("Link"), `</api/v1/map/groups>; rel="groups"`)
}

func TestOpenAPIDocument(t *testing.T) {
	srv, _ := newTestServer(t, mapstate.Config{})
	paths := srv.OpenAPI().Paths
	for _, p := range []string{"/api/v1/area-watches", "/api/v1/map/events", "/api/v1/watches/{id}", "/api/v1/map/draw/finish"} {
		assert.Contains(t, paths, p)
	}
}

func TestBaseLayerAndVisibility(t *testing.T) {
	_, ts := newTestServer(t, mapstate.Config{})

	resp, body := call(t, ts, http.MethodPut, "/api/v1/map/base-layer", map[string]any{"groupId": "base-satellite"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var groups []struct {
		ID      string `json:"id"`
		Visible bool   `json:"visible"`
	}
	require.NoError(t, json.Unmarshal(body, &groups))
	require.Len(t, groups, 2)
	assert.False(t, groups[0].Visible)
	assert.True(t, groups[1].Visible)

	resp, _ = call(t, ts, http.MethodPut, "/api/v1/map/base-layer", map[string]any{"groupId": "area-watches"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodPost, "/api/v1/map/snapshots", map[string]any{"name": "draw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = call(t, ts, http.MethodPut, "/api/v1/map/groups/area-watches/visibility", map[string]any{"visible": false, "snapshot": "draw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = call(t, ts, http.MethodGet, "/api/v1/map/layers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var layersBody struct {
		Layers []struct {
			ID     string `json:"id"`
			Layout struct {
				Visibility string `json:"visibility"`
			} `json:"layout"`
		} `json:"layers"`
		Signature string `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(body, &layersBody))
	require.Len(t, layersBody.Layers, 4)
	assert.Equal(t, "area-watches-fill", layersBody.Layers[2].ID)
	assert.Equal(t, "none", layersBody.Layers[2].Layout.Visibility)
	assert.NotEmpty(t, layersBody.Signature)

	resp, body = call(t, ts, http.MethodDelete, "/api/v1/map/snapshots/draw", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"area-watches":false}`, string(body))

	resp, _ = call(t, ts, http.MethodDelete, "/api/v1/map/snapshots/default", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = call(t, ts, http.MethodPut, "/api/v1/map/groups/nope/visibility", map[string]any{"visible": true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSelectionAndHover(t *testing.T) {
	srv, ts := newTestServer(t, mapstate.Config{})

	resp, body := call(t, ts, http.MethodPost, "/api/v1/map/selection", map[string]any{"source": "area-watches", "id": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var sel struct {
		Mode     string `json:"mode"`
		Selected struct {
			LayerGroupID string `json:"layerGroupId"`
		} `json:"selected"`
	}
	require.NoError(t, json.Unmarshal(body, &sel))
	assert.Equal(t, "select", sel.Mode)
	assert.Equal(t, "area-watches", sel.Selected.LayerGroupID)

	resp, _ = call(t, ts, http.MethodPost, "/api/v1/map/hover", map[string]any{"source": "area-watches", "id": 3})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = call(t, ts, http.MethodGet, "/api/v1/map/features/state?source=area-watches&id=3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"selected":true,"hover":true,"hide":false,"alert":false}`, string(body))

	// Leaving select mode clears selection and hover.
	resp, _ = call(t, ts, http.MethodPut, "/api/v1/map/mode", map[string]any{"mode": "none"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, ok := srv.App().Selection.Selected()
	assert.False(t, ok)
	assert.Empty(t, srv.App().Selection.Hovered())

	resp, _ = call(t, ts, http.MethodPut, "/api/v1/map/mode", map[string]any{"mode": "fly"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAreaWatchCollectionOverHTTP(t *testing.T) {
	_, ts := newTestServer(t, mapstate.Config{})
	client := areawatch.NewClient(ts.URL, ts.Client())
	ctx := context.Background()

	watches := optimistic.New[areawatch.AreaWatch](client, optimistic.Options{})
	require.NoError(t, watches.Initialize(ctx))

	w, _ := watches.CreateID(areawatch.AreaWatch{Name: "Harbour"}.WithGeom(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}))
	require.NoError(t, watches.Add(ctx, w))
	it, ok := watches.Get(w.ID)
	require.True(t, ok)
	assert.False(t, it.Value.CreatedAt.IsZero())

	require.NoError(t, watches.Patch(ctx, w.ID, []byte(`{"description":"north quay"}`)))
	it, _ = watches.Get(w.ID)
	assert.Equal(t, "north quay", it.Value.Description)

	// A server-side validation failure rolls the local patch back.
	err := watches.Patch(ctx, w.ID, []byte(`{"name":""}`))
	var statusErr *areawatch.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.Status)
	it, _ = watches.Get(w.ID)
	assert.Equal(t, "Harbour", it.Value.Name)

	require.NoError(t, watches.Delete(ctx, w.ID))
	list, err := client.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestWatchesRequireSession(t *testing.T) {
	srv, ts := newTestServer(t, mapstate.Config{})

	resp, _ := call(t, ts, http.MethodPost, "/api/v1/watches", map[string]any{"name": "early"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = call(t, ts, http.MethodPost, "/api/v1/session", map[string]any{"signedIn": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool {
		s, _ := srv.App().Watches.Collection().State()
		return s == optimistic.LoadReady
	}, time.Second, time.Millisecond)

	resp, body := call(t, ts, http.MethodPost, "/api/v1/watches", map[string]any{"name": "Harbour"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created struct {
		Value      areawatch.AreaWatch `json:"value"`
		LocalState string              `json:"localState"`
		AliasID    int64               `json:"aliasId"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "added", created.LocalState)
	assert.Positive(t, created.AliasID)

	resp, body = call(t, ts, http.MethodPatch, "/api/v1/watches/"+created.Value.ID, `{"enabled":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	stored, err := srv.App().Store.Get(created.Value.ID)
	require.NoError(t, err)
	assert.False(t, stored.Enabled)

	resp, body = call(t, ts, http.MethodGet, "/api/v1/watches", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"state":"ready"`)

	resp, _ = call(t, ts, http.MethodDelete, "/api/v1/watches/"+created.Value.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = call(t, ts, http.MethodDelete, "/api/v1/watches/"+created.Value.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDrawNewWatchOverHTTP(t *testing.T) {
	srv, ts := newTestServer(t, mapstate.Config{SignedIn: true})
	app := srv.App()
	require.Eventually(t, func() bool {
		s, _ := app.Watches.Collection().State()
		return s == optimistic.LoadReady
	}, time.Second, time.Millisecond)

	resp, _ := call(t, ts, http.MethodPost, "/api/v1/map/draw/finish", map[string]any{
		"geometry": map[string]any{"type": "Point", "coordinates": []float64{1, 1}},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "no session yet")

	resp, body := call(t, ts, http.MethodPost, "/api/v1/map/draw", map[string]any{"name": "Drawn"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.Eventually(t, func() bool {
		_, active := app.Draw.Active()
		return active && app.Engine.Mode() == "polygon"
	}, time.Second, time.Millisecond)
	assert.Equal(t, selection.ModeDraw, app.Selection.Mode())

	resp, body = call(t, ts, http.MethodPost, "/api/v1/map/draw/finish", map[string]any{
		"geometry": map[string]any{"type": "Polygon", "coordinates": [][][]float64{{{0, 0}, {2, 0}, {2, 2}, {0, 0}}}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	require.Eventually(t, func() bool { return len(app.Store.List()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "Drawn", app.Store.List()[0].Name)
	require.Eventually(t, func() bool { return app.Selection.Mode() == selection.ModeSelect }, time.Second, time.Millisecond)
}

func TestEventsStream(t *testing.T) {
	srv, ts := newTestServer(t, mapstate.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/map/events", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 256)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	waitFor := func(substr string) {
		t.Helper()
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream closed before %q", substr)
				if strings.Contains(line, substr) {
					return
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %q", substr)
			}
		}
	}

	waitFor("datastar-patch-signals")
	waitFor(`"mode":"select"`)

	srv.App().Selection.SetMode(selection.ModeNone)
	waitFor("resource-changed")
	waitFor(`"mode":"none"`)
}
