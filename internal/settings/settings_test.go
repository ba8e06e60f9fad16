package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-watch/internal/db"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	var got map[string]bool
	ok, err := s.Get("layer-visibility", 1, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("layer-visibility", map[string]bool{"roads": true}, 1))

	ok, err = s.Get("layer-visibility", 1, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]bool{"roads": true}, got)

	// A version bump drops the stale value.
	ok, err = s.Get("layer-visibility", 2, &got)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.Get("layer-visibility", 1, &got)
	require.NoError(t, err)
	assert.False(t, ok, "stale entry should have been deleted")

	require.NoError(t, s.Set("theme", "dark", 1))
	require.NoError(t, s.Remove("theme"))
	var theme string
	ok, err = s.Get("theme", 1, &theme)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	exerciseStore(t, New(NewFileBackend(dir), nil))

	s := New(NewFileBackend(dir), nil)
	require.NoError(t, s.Set("zoom", 7, 1))

	reopened := New(NewFileBackend(dir), nil)
	var zoom int
	ok, err := reopened.Get("zoom", 1, &zoom)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, zoom)
}

func TestFileStoreNullFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte("null"), 0644))

	s := New(NewFileBackend(dir), nil)
	require.NoError(t, s.Set("zoom", 3, 1))

	var zoom int
	ok, err := s.Get("zoom", 1, &zoom)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, zoom)
}

func TestBadgerStore(t *testing.T) {
	b, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	s := New(b, nil)
	defer s.Close()

	exerciseStore(t, s)
}

func TestDuckDBStore(t *testing.T) {
	conn, err := db.Open(db.Config{InMemory: true})
	require.NoError(t, err)
	defer conn.Close()

	b, err := NewDuckDBBackend(conn)
	require.NoError(t, err)
	exerciseStore(t, New(b, nil))
}

func TestCorruptEnvelopeIsDiscarded(t *testing.T) {
	mem := newMemBackend()
	require.NoError(t, mem.Save("k", []byte("not json")))
	s := New(mem, nil)

	var v string
	ok, err := s.Get("k", 1, &v)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, mem.snapshot())
}
