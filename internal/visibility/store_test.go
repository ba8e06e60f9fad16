package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInheritance(t *testing.T) {
	s := New()
	require.True(t, s.Push("editing"))
	require.True(t, s.SetIn("editing", "roads", true))
	require.True(t, s.Push("drawing"))
	require.True(t, s.SetIn("drawing", "roads", false))

	v, ok := s.Get("roads")
	require.True(t, ok)
	assert.False(t, v)

	_, ok = s.Pop("drawing")
	require.True(t, ok)

	v, ok = s.Get("roads")
	require.True(t, ok)
	assert.True(t, v)
}

func TestAbsentKeysFallThrough(t *testing.T) {
	s := New()
	s.SetIn(DefaultLayer, "rivers", true)
	s.Push("mask")
	s.SetIn("mask", "roads", false)

	v, ok := s.Get("rivers")
	require.True(t, ok)
	assert.True(t, v)

	_, ok = s.Get("parks")
	assert.False(t, ok)
}

func TestSetInEqualityGuard(t *testing.T) {
	s := New()
	assert.True(t, s.SetIn(DefaultLayer, "k", true))
	assert.False(t, s.SetIn(DefaultLayer, "k", true))
	assert.True(t, s.SetIn(DefaultLayer, "k", false))
	assert.False(t, s.SetIn("missing", "k", true))
}

func TestPushDuplicateAndPopMissing(t *testing.T) {
	s := New()
	assert.False(t, s.Push(DefaultLayer))
	assert.True(t, s.Push("a"))
	assert.False(t, s.Push("a"))

	_, ok := s.Pop("nope")
	assert.False(t, ok)
	_, ok = s.Pop(DefaultLayer)
	assert.False(t, ok)
	assert.Equal(t, []string{DefaultLayer, "a"}, s.Names())
}

func TestPopFromMiddle(t *testing.T) {
	s := New()
	s.Push("a")
	s.Push("b")
	s.Push("c")
	s.SetIn("a", "k", true)
	s.SetIn("b", "k", false)

	removed, ok := s.Pop("b")
	require.True(t, ok)
	assert.Equal(t, map[string]bool{"k": false}, removed)
	assert.Equal(t, []string{DefaultLayer, "a", "c"}, s.Names())

	v, ok := s.Get("k")
	require.True(t, ok)
	assert.True(t, v)
}

func TestGetFromIgnoresLaterLayers(t *testing.T) {
	s := New()
	s.SetIn(DefaultLayer, "k", true)
	s.Push("edit")
	s.Push("draw")
	s.SetIn("draw", "k", false)

	v, ok := s.GetFrom("k", "edit")
	require.True(t, ok)
	assert.True(t, v)

	_, ok = s.GetFrom("k", "missing")
	assert.False(t, ok)
}

func TestSnapshotsAreCopies(t *testing.T) {
	s := New()
	s.SetIn(DefaultLayer, "k", true)

	snap, ok := s.GetAllIn(DefaultLayer)
	require.True(t, ok)
	snap["k"] = false

	all := s.GetAll()
	all["other"] = true

	v, _ := s.Get("k")
	assert.True(t, v)
	_, ok = s.Get("other")
	assert.False(t, ok)
}

func TestSetMany(t *testing.T) {
	s := New()
	assert.True(t, s.SetMany(DefaultLayer, map[string]bool{"a": true, "b": false}))
	assert.False(t, s.SetMany(DefaultLayer, map[string]bool{"a": true, "b": false}))
	assert.True(t, s.SetMany(DefaultLayer, map[string]bool{"a": true, "b": true}))
	assert.Equal(t, map[string]bool{"a": true, "b": true}, s.GetAll())
}

func TestDefaultIsBottomLayer(t *testing.T) {
	s := New()
	s.SetIn(DefaultLayer, "a", true)
	require.True(t, s.Push("draw"))
	s.SetIn("draw", "a", false)

	assert.Equal(t, map[string]bool{"a": true}, s.Default())
	_, ok := s.Pop(DefaultLayer)
	assert.False(t, ok)
}
