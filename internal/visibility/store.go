// Package visibility implements a named stack of key→bool maps with
// inherited lookup.
//
// The bottom entry is the default layer; it holds the user's persistent
// preferences. Every other entry is an ephemeral override (an "editing" or
// "drawing" mask) that is pushed and later popped by name. Popping is allowed
// from anywhere in the stack, so the stack is kept as an ordered list rather
// than a true LIFO.
//
// Store is not safe for concurrent use; the layer registry serializes access.
package visibility

import "maps"

// DefaultLayer is the name of the persistent bottom layer.
const DefaultLayer = "default"

type layer struct {
	name   string
	values map[string]bool
}

// Store is an ordered association list of named visibility layers.
type Store struct {
	layers []layer // bottom first
}

// New creates a store holding only the default layer.
func New() *Store {
	return &Store{layers: []layer{{name: DefaultLayer, values: map[string]bool{}}}}
}

func (s *Store) index(name string) int {
	for i, l := range s.layers {
		if l.name == name {
			return i
		}
	}
	return -1
}

// Has reports whether a layer with the given name exists.
func (s *Store) Has(name string) bool {
	return s.index(name) >= 0
}

// Names returns layer names bottom first.
func (s *Store) Names() []string {
	names := make([]string, len(s.layers))
	for i, l := range s.layers {
		names[i] = l.name
	}
	return names
}

// Push appends an empty layer on top. It returns false, leaving the store
// untouched, when the name is already in use.
func (s *Store) Push(name string) bool {
	if s.Has(name) {
		return false
	}
	s.layers = append(s.layers, layer{name: name, values: map[string]bool{}})
	return true
}

// Pop removes the named layer wherever it sits and returns its contents.
// The default layer cannot be popped.
func (s *Store) Pop(name string) (map[string]bool, bool) {
	if name == DefaultLayer {
		return nil, false
	}
	i := s.index(name)
	if i < 0 {
		return nil, false
	}
	removed := s.layers[i].values
	s.layers = append(s.layers[:i], s.layers[i+1:]...)
	return removed, true
}

// Get resolves key from the topmost layer downward.
func (s *Store) Get(key string) (bool, bool) {
	return s.resolve(key, len(s.layers)-1)
}

// GetFrom resolves key starting at the named layer, ignoring every layer
// pushed after it.
func (s *Store) GetFrom(key, name string) (bool, bool) {
	i := s.index(name)
	if i < 0 {
		return false, false
	}
	return s.resolve(key, i)
}

func (s *Store) resolve(key string, top int) (bool, bool) {
	for i := top; i >= 0; i-- {
		if v, ok := s.layers[i].values[key]; ok {
			return v, true
		}
	}
	return false, false
}

// SetIn writes key in the named layer. It returns false when the layer does
// not exist or already holds the same value.
func (s *Store) SetIn(name, key string, value bool) bool {
	i := s.index(name)
	if i < 0 {
		return false
	}
	if cur, ok := s.layers[i].values[key]; ok && cur == value {
		return false
	}
	s.layers[i].values[key] = value
	return true
}

// SetMany applies SetIn for every entry and reports whether any changed.
func (s *Store) SetMany(name string, values map[string]bool) bool {
	changed := false
	for k, v := range values {
		if s.SetIn(name, k, v) {
			changed = true
		}
	}
	return changed
}

// GetAllIn returns a copy of the named layer.
func (s *Store) GetAllIn(name string) (map[string]bool, bool) {
	i := s.index(name)
	if i < 0 {
		return nil, false
	}
	return maps.Clone(s.layers[i].values), true
}

// GetAll returns a copy of the merged view, upper layers winning.
func (s *Store) GetAll() map[string]bool {
	out := map[string]bool{}
	for _, l := range s.layers {
		maps.Copy(out, l.values)
	}
	return out
}

// Default returns a copy of the default layer.
func (s *Store) Default() map[string]bool {
	return maps.Clone(s.layers[0].values)
}
