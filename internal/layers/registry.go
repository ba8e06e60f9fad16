package layers

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/joeblew999/plat-watch/internal/bus"
	"github.com/joeblew999/plat-watch/internal/settings"
	"github.com/joeblew999/plat-watch/internal/visibility"
)

// Settings key and schema version of the persisted default visibility layer.
const (
	SettingsKey     = "layer-visibility"
	SettingsVersion = 1
)

type groupEntry struct {
	group   Group
	stamped bool
	layers  int
	nextSub int
}

// Options configures a Registry.
type Options struct {
	// Settings persists the default visibility layer. Optional.
	Settings settings.Store
	// Bus receives change events. A private bus is created when nil.
	Bus    *bus.Bus
	Logger *slog.Logger
}

// Registry reconciles declarative group/layer registration with ordering and
// visibility. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	store     *visibility.Store
	groups    map[string]*groupEntry
	nextOrder int
	layers    []LayerInfo // kept sorted by compareLayers
	layerIDs  map[string]struct{}

	settings settings.Store
	bus      *bus.Bus
	logger   *slog.Logger
}

// NewRegistry creates a registry, seeding the default visibility layer from
// the persisted snapshot when one exists.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		store:    visibility.New(),
		groups:   make(map[string]*groupEntry),
		layerIDs: make(map[string]struct{}),
		settings: opts.Settings,
		bus:      opts.Bus,
		logger:   opts.Logger,
	}
	if r.bus == nil {
		r.bus = bus.New()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	if r.settings != nil {
		var saved map[string]bool
		ok, err := r.settings.Get(SettingsKey, SettingsVersion, &saved)
		switch {
		case err != nil:
			r.logger.Warn("could not load layer visibility", slog.String("error", err.Error()))
		case ok:
			r.store.SetMany(visibility.DefaultLayer, saved)
		}
	}
	return r
}

// Bus returns the bus the registry publishes on.
func (r *Registry) Bus() *bus.Bus { return r.bus }

// AddGroup registers a group. The group's Visible flag seeds the default
// visibility layer only when no value (e.g. a persisted preference) exists.
func (r *Registry) AddGroup(g Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.groups[g.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateGroup, g.ID)
	}

	if _, ok := r.store.GetFrom(g.ID, visibility.DefaultLayer); !ok {
		r.store.SetIn(visibility.DefaultLayer, g.ID, g.Visible)
	}

	g.Order = r.nextOrder
	r.nextOrder++
	g.Source, g.SourceLayer = "", ""
	g.Visible, _ = r.store.Get(g.ID)
	r.groups[g.ID] = &groupEntry{group: g}

	r.bus.Publish(bus.Event{Resource: bus.ResourceGroups, Action: "added", ID: g.ID})
	return nil
}

// AddLayer registers a render layer under an existing group and inserts it
// into the global render order.
func (r *Registry) AddLayer(info LayerInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.layerIDs[info.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateLayer, info.ID)
	}
	entry, ok := r.groups[info.GroupID]
	if !ok {
		return fmt.Errorf("%w: %q (layer %q)", ErrUnknownGroup, info.GroupID, info.ID)
	}

	if !entry.stamped {
		entry.group.Source = info.Source
		entry.group.SourceLayer = info.SourceLayer
		entry.stamped = true
	} else if entry.group.Source != info.Source || entry.group.SourceLayer != info.SourceLayer {
		return fmt.Errorf("%w: layer %q has %s/%s, group %q has %s/%s", ErrSourceMismatch,
			info.ID, info.Source, info.SourceLayer,
			entry.group.ID, entry.group.Source, entry.group.SourceLayer)
	}

	info = info.clone()
	info.Order = entry.group.Order
	info.SubOrder = entry.nextSub
	info.Layout.Visibility = visibilityOf(entry.group.Visible)
	entry.nextSub++
	entry.layers++

	i, _ := slices.BinarySearchFunc(r.layers, info, compareLayers)
	r.layers = slices.Insert(r.layers, i, info)
	r.layerIDs[info.ID] = struct{}{}

	r.bus.Publish(bus.Event{Resource: bus.ResourceLayers, Action: "added", ID: info.ID})
	return nil
}

// compareLayers orders by group order, source, source layer (empty first)
// and sub-order, so layers render in configured order whatever their mount
// timing.
func compareLayers(a, b LayerInfo) int {
	return cmp.Or(
		cmp.Compare(a.Order, b.Order),
		strings.Compare(a.Source, b.Source),
		strings.Compare(a.SourceLayer, b.SourceLayer),
		cmp.Compare(a.SubOrder, b.SubOrder),
	)
}

// RemoveLayer unregisters a layer. Removing the last layer of a group also
// removes the group. It reports whether the layer existed.
func (r *Registry) RemoveLayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.IndexFunc(r.layers, func(l LayerInfo) bool { return l.ID == id })
	if i < 0 {
		return false
	}
	groupID := r.layers[i].GroupID
	r.layers = slices.Delete(r.layers, i, i+1)
	delete(r.layerIDs, id)
	r.bus.Publish(bus.Event{Resource: bus.ResourceLayers, Action: "removed", ID: id})

	if entry, ok := r.groups[groupID]; ok {
		entry.layers--
		if entry.layers <= 0 {
			r.removeGroupLocked(groupID)
		}
	}
	return true
}

// RemoveGroup unregisters a group without touching its layers.
func (r *Registry) RemoveGroup(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeGroupLocked(id)
}

func (r *Registry) removeGroupLocked(id string) bool {
	if _, ok := r.groups[id]; !ok {
		return false
	}
	delete(r.groups, id)
	r.bus.Publish(bus.Event{Resource: bus.ResourceGroups, Action: "removed", ID: id})
	return true
}

// SetVisibility writes a group's visibility into the named snapshot (the
// default layer when snapshot is empty). It reports whether the snapshot
// changed.
func (r *Registry) SetVisibility(groupID string, visible bool, snapshot string) bool {
	return r.SetVisibilityMany(map[string]bool{groupID: visible}, snapshot)
}

// SetVisibilityMany is the batched form of SetVisibility with a single
// synchronization pass and at most one persistence write.
func (r *Registry) SetVisibilityMany(values map[string]bool, snapshot string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setManyLocked(values, snapshot)
}

func (r *Registry) setManyLocked(values map[string]bool, snapshot string) bool {
	if snapshot == "" {
		snapshot = visibility.DefaultLayer
	}
	if !r.store.SetMany(snapshot, values) {
		return false
	}
	r.syncLocked()
	if snapshot == visibility.DefaultLayer {
		r.persistLocked()
	}
	return true
}

// PushVisibilitySnapshot adds an empty override layer on top of the stack.
func (r *Registry) PushVisibilitySnapshot(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Push(name)
}

// PopVisibilitySnapshot removes an override layer and re-synchronizes.
func (r *Registry) PopVisibilitySnapshot(name string) (map[string]bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed, ok := r.store.Pop(name)
	if ok {
		r.syncLocked()
	}
	return removed, ok
}

// SelectBaseLayer shows groupID and hides every other base group.
func (r *Registry) SelectBaseLayer(groupID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	values := map[string]bool{}
	for id, e := range r.groups {
		if e.group.Category == CategoryBase {
			values[id] = id == groupID
		}
	}
	return r.setManyLocked(values, "")
}

// syncLocked re-derives every group's Visible and layer's layout visibility
// from the store.
func (r *Registry) syncLocked() {
	for id, e := range r.groups {
		v, _ := r.store.Get(id)
		if e.group.Visible != v {
			e.group.Visible = v
			r.bus.Publish(bus.Event{Resource: bus.ResourceVisibility, Action: "changed", ID: id})
		}
	}
	for i := range r.layers {
		v, _ := r.store.Get(r.layers[i].GroupID)
		r.layers[i].Layout.Visibility = visibilityOf(v)
	}
}

func (r *Registry) persistLocked() {
	if r.settings == nil {
		return
	}
	snap := r.store.Default()
	if err := r.settings.Set(SettingsKey, snap, SettingsVersion); err != nil {
		r.logger.Warn("could not persist layer visibility", slog.String("error", err.Error()))
	}
}

// Group returns a registered group.
func (r *Registry) Group(id string) (Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.groups[id]
	if !ok {
		return Group{}, false
	}
	return e.group, true
}

// Visible returns the effective visibility of a key, false when unknown.
func (r *Registry) Visible(groupID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, _ := r.store.Get(groupID)
	return v
}

// Layer returns a registered layer.
func (r *Registry) Layer(id string) (LayerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, l := range r.layers {
		if l.ID == id {
			return l.clone(), true
		}
	}
	return LayerInfo{}, false
}

// Layout returns the layer's layout with visibility baked in, or an empty
// layout when the layer is unknown.
func (r *Registry) Layout(id string) Layout {
	l, ok := r.Layer(id)
	if !ok {
		return Layout{}
	}
	return l.Layout
}

// GroupBySource finds the first group (in registration order) whose stamped
// source matches.
func (r *Registry) GroupBySource(source, sourceLayer string) (Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *groupEntry
	for _, e := range r.groups {
		if !e.stamped || e.group.Source != source || e.group.SourceLayer != sourceLayer {
			continue
		}
		if found == nil || e.group.Order < found.group.Order {
			found = e
		}
	}
	if found == nil {
		return Group{}, false
	}
	return found.group, true
}

// Groups returns groups in registration order, filtered to the given
// categories when any are passed.
func (r *Registry) Groups(categories ...Category) []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Group, 0, len(r.groups))
	for _, e := range r.groups {
		if len(categories) == 0 || slices.Contains(categories, e.group.Category) {
			out = append(out, e.group)
		}
	}
	slices.SortFunc(out, func(a, b Group) int { return cmp.Compare(a.Order, b.Order) })
	return out
}

// Layers returns a copy of the render-ordered layer list.
func (r *Registry) Layers() []LayerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.layersLocked()
}

func (r *Registry) layersLocked() []LayerInfo {
	out := make([]LayerInfo, len(r.layers))
	for i, l := range r.layers {
		out[i] = l.clone()
	}
	return out
}

// OrderSignature summarizes (order, subOrder, id) of every layer. It only
// changes when the render order changes, not on visibility churn.
func (r *Registry) OrderSignature() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.signatureLocked()
}

func (r *Registry) signatureLocked() string {
	var b strings.Builder
	for i, l := range r.layers {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.Itoa(l.Order))
		b.WriteByte('.')
		b.WriteString(strconv.Itoa(l.SubOrder))
		b.WriteByte(':')
		b.WriteString(l.ID)
	}
	return b.String()
}

// Snapshot returns the named visibility layer, or the merged view when name
// is empty.
func (r *Registry) Snapshot(name string) (map[string]bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		return r.store.GetAll(), true
	}
	return r.store.GetAllIn(name)
}
