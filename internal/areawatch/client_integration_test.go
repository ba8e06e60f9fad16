//go:build integration

// Integration test for the area-watch HTTP transport.
// Requires a running server: go run ./cmd/watch
//
// Run: go test -tags=integration ./internal/areawatch/
package areawatch_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-watch/internal/areawatch"
)

func baseURL() string {
	if u := os.Getenv("WATCH_BASE_URL"); u != "" {
		return u
	}
	return "http://localhost:8087"
}

func TestRemoteRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := areawatch.NewClient(baseURL(), nil)

	w := areawatch.AreaWatch{ID: uuid.NewString(), Name: "integration"}.
		WithGeom(orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	created, err := client.Create(ctx, w)
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != w.ID {
		t.Fatalf("id=%q, want %q", created.ID, w.ID)
	}

	patched, err := client.Patch(ctx, w.ID, []byte(`{"description":"patched"}`))
	if err != nil {
		t.Fatal(err)
	}
	if patched.Description != "patched" {
		t.Fatalf("description=%q, want patched", patched.Description)
	}

	list, err := client.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, item := range list {
		found = found || item.ID == w.ID
	}
	if !found {
		t.Fatalf("created watch %s not listed", w.ID)
	}

	if err := client.Delete(ctx, w.ID); err != nil {
		t.Fatal(err)
	}
}
