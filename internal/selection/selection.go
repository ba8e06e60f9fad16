// Package selection tracks what the user has selected, hovered, hidden or
// flagged on the map, and which interaction mode the map is in.
package selection

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/joeblew999/plat-watch/internal/bus"
	"github.com/joeblew999/plat-watch/internal/layers"
	"github.com/joeblew999/plat-watch/internal/report"
)

// FeatureID identifies one renderable feature. Two ids are equal when all
// three fields are equal; an undefined source layer is the empty string.
type FeatureID struct {
	Source      string `json:"source" doc:"Data source"`
	SourceLayer string `json:"sourceLayer,omitempty" doc:"Source layer"`
	ID          int64  `json:"id" doc:"Numeric feature id"`
}

// Equal compares field by field.
func (f FeatureID) Equal(o FeatureID) bool {
	return f.Source == o.Source && f.SourceLayer == o.SourceLayer && f.ID == o.ID
}

func (f FeatureID) String() string {
	return fmt.Sprintf("%s/%s/%d", f.Source, f.SourceLayer, f.ID)
}

// Selection ties a feature to the group it renders in.
type Selection struct {
	LayerGroupID string    `json:"layerGroupId" doc:"Group id, empty when unresolved"`
	Feature      FeatureID `json:"feature"`
}

// Mode is the map interaction mode.
type Mode string

const (
	ModeSelect Mode = "select"
	ModeDraw   Mode = "draw"
	ModeNone   Mode = "none"
)

// FeatureState is the per-feature state consumed by the map view.
type FeatureState struct {
	Selected bool `json:"selected"`
	Hover    bool `json:"hover"`
	Hide     bool `json:"hide"`
	Alert    bool `json:"alert"`
}

// GroupResolver maps a feature's source to its layer group.
type GroupResolver interface {
	GroupBySource(source, sourceLayer string) (layers.Group, bool)
}

// ModeHook runs after a mode transition, outside the state lock.
type ModeHook func(from, to Mode)

// State is the selection/hover/mode state machine. It is safe for concurrent
// use; every operation is synchronous and non-blocking.
type State struct {
	mu       sync.Mutex
	mode     Mode
	selected *Selection
	hovered  []Selection
	hidden   map[FeatureID]struct{}
	alerts   map[FeatureID]struct{}
	hooks    []ModeHook

	resolver GroupResolver
	reporter report.Reporter
	bus      *bus.Bus
	logger   *slog.Logger
}

// New creates a State in select mode.
func New(resolver GroupResolver, reporter report.Reporter, b *bus.Bus, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = report.NewLogger(logger)
	}
	return &State{
		mode:     ModeSelect,
		hidden:   make(map[FeatureID]struct{}),
		alerts:   make(map[FeatureID]struct{}),
		resolver: resolver,
		reporter: reporter,
		bus:      b,
		logger:   logger,
	}
}

// OnModeChange registers a hook called after every mode transition.
func (s *State) OnModeChange(h ModeHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

// Mode returns the current interaction mode.
func (s *State) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode transitions to mode. Entering the current mode is a no-op.
// Leaving select or entering none clears selection and hover; hooks see
// every real transition, which is how a draw session learns it must end.
func (s *State) SetMode(mode Mode) {
	s.mu.Lock()
	from := s.mode
	if from == mode {
		s.mu.Unlock()
		return
	}
	s.mode = mode
	if from == ModeSelect || mode == ModeNone {
		s.clearSelectionLocked()
		s.clearHoverLocked()
	}
	hooks := slices.Clone(s.hooks)
	s.mu.Unlock()

	s.logger.Debug("map mode changed", slog.String("from", string(from)), slog.String("to", string(mode)))
	s.bus.Publish(bus.Event{Resource: bus.ResourceMode, Action: "changed", ID: string(mode)})
	for _, h := range hooks {
		h(from, mode)
	}
}

func (s *State) resolve(id FeatureID) (string, bool) {
	if s.resolver == nil {
		return "", false
	}
	g, ok := s.resolver.GroupBySource(id.Source, id.SourceLayer)
	if !ok {
		return "", false
	}
	return g.ID, true
}

// Select replaces the selection. An id that maps to no group is reported
// and selected with an empty group id.
func (s *State) Select(id FeatureID) {
	groupID, ok := s.resolve(id)
	if !ok {
		s.reporter.Report(fmt.Errorf("select %s: no layer group for source", id))
	}

	s.mu.Lock()
	s.selected = &Selection{LayerGroupID: groupID, Feature: id}
	s.mu.Unlock()
	s.bus.Publish(bus.Event{Resource: bus.ResourceSelection, Action: "selected", ID: id.String()})
}

// Unselect clears the selection only if it is id.
func (s *State) Unselect(id FeatureID) {
	s.mu.Lock()
	if s.selected == nil || !s.selected.Feature.Equal(id) {
		s.mu.Unlock()
		return
	}
	s.clearSelectionLocked()
	s.mu.Unlock()
}

// ToggleSelect selects id, or clears the selection if id is already selected.
func (s *State) ToggleSelect(id FeatureID) {
	s.mu.Lock()
	selected := s.selected != nil && s.selected.Feature.Equal(id)
	s.mu.Unlock()

	if selected {
		s.Unselect(id)
		return
	}
	s.Select(id)
}

// ClearSelection unconditionally clears the selection.
func (s *State) ClearSelection() {
	s.mu.Lock()
	s.clearSelectionLocked()
	s.mu.Unlock()
}

func (s *State) clearSelectionLocked() {
	if s.selected == nil {
		return
	}
	s.selected = nil
	s.bus.Publish(bus.Event{Resource: bus.ResourceSelection, Action: "cleared"})
}

// Selected returns the current selection.
func (s *State) Selected() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return Selection{}, false
	}
	return *s.selected, true
}

// AddHover adds id to the hover set; adding a present id is a no-op.
func (s *State) AddHover(id FeatureID) {
	groupID, _ := s.resolve(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hoverIndexLocked(id) >= 0 {
		return
	}
	s.hovered = append(s.hovered, Selection{LayerGroupID: groupID, Feature: id})
	s.bus.Publish(bus.Event{Resource: bus.ResourceHover, Action: "added", ID: id.String()})
}

// RemoveHover removes id from the hover set; removing an absent id is a
// no-op.
func (s *State) RemoveHover(id FeatureID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.hoverIndexLocked(id)
	if i < 0 {
		return
	}
	s.hovered = slices.Delete(s.hovered, i, i+1)
	s.bus.Publish(bus.Event{Resource: bus.ResourceHover, Action: "removed", ID: id.String()})
}

func (s *State) hoverIndexLocked(id FeatureID) int {
	return slices.IndexFunc(s.hovered, func(h Selection) bool { return h.Feature.Equal(id) })
}

// ClearHover empties the hover set.
func (s *State) ClearHover() {
	s.mu.Lock()
	s.clearHoverLocked()
	s.mu.Unlock()
}

func (s *State) clearHoverLocked() {
	if len(s.hovered) == 0 {
		return
	}
	s.hovered = nil
	s.bus.Publish(bus.Event{Resource: bus.ResourceHover, Action: "cleared"})
}

// Hovered returns the hover set in insertion order.
func (s *State) Hovered() []Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.hovered)
}

// Hide suppresses a feature while it is edited or drawn.
func (s *State) Hide(id FeatureID) {
	s.toggleSet(s.hidden, id, true, bus.ResourceHidden)
}

// Unhide reverses Hide.
func (s *State) Unhide(id FeatureID) {
	s.toggleSet(s.hidden, id, false, bus.ResourceHidden)
}

// Hidden returns the hidden features.
func (s *State) Hidden() []FeatureID {
	return s.members(s.hidden)
}

// SetAlert flags or unflags a feature, e.g. an area watch with new activity.
func (s *State) SetAlert(id FeatureID, on bool) {
	s.toggleSet(s.alerts, id, on, bus.ResourceAlert)
}

func (s *State) toggleSet(set map[FeatureID]struct{}, id FeatureID, on bool, resource string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, present := set[id]
	switch {
	case on && !present:
		set[id] = struct{}{}
		s.bus.Publish(bus.Event{Resource: resource, Action: "added", ID: id.String()})
	case !on && present:
		delete(set, id)
		s.bus.Publish(bus.Event{Resource: resource, Action: "removed", ID: id.String()})
	}
}

func (s *State) members(set map[FeatureID]struct{}) []FeatureID {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]FeatureID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.SortFunc(out, compareFeatureIDs)
	return out
}

func compareFeatureIDs(a, b FeatureID) int {
	return cmp.Or(
		strings.Compare(a.Source, b.Source),
		strings.Compare(a.SourceLayer, b.SourceLayer),
		cmp.Compare(a.ID, b.ID),
	)
}

// FeatureState aggregates the render toggles of one feature.
func (s *State) FeatureState(id FeatureID) FeatureState {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, hidden := s.hidden[id]
	_, alert := s.alerts[id]
	return FeatureState{
		Selected: s.selected != nil && s.selected.Feature.Equal(id),
		Hover:    s.hoverIndexLocked(id) >= 0,
		Hide:     hidden,
		Alert:    alert,
	}
}

// Alerts returns the flagged features.
func (s *State) Alerts() []FeatureID {
	return s.members(s.alerts)
}
