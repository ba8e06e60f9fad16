// Package optimistic keeps a locally cached, server-synced collection of
// entities and applies writes optimistically: the local copy changes before
// the server confirms, and is rolled back to its exact pre-image if the
// server call fails.
package optimistic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/joeblew999/plat-watch/internal/bus"
)

// LocalState tags an item with its sync status.
type LocalState string

const (
	StatePendingAdd    LocalState = "pending_add"
	StatePendingEdit   LocalState = "pending_edit"
	StatePendingDelete LocalState = "pending_delete"
	StateAdded         LocalState = "added"
	StateDeleted       LocalState = "deleted"
	StateError         LocalState = "error"
)

// LoadState is the status of the initial load. Ready and error are terminal
// until Reset.
type LoadState string

const (
	LoadIdle    LoadState = "idle"
	LoadLoading LoadState = "loading"
	LoadReady   LoadState = "ready"
	LoadError   LoadState = "error"
)

var (
	// ErrNotReady is returned by writes issued before the collection loaded.
	ErrNotReady = errors.New("collection is not loaded")
	// ErrNotCollection is returned by transports whose list response is not
	// an array.
	ErrNotCollection = errors.New("response is not a collection")
)

// Entity is implemented by the synced type. WithEntityID returns a copy
// carrying the given id.
type Entity[T any] interface {
	EntityID() string
	WithEntityID(id string) T
}

// Transport is the server collaborator.
type Transport[T any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, v T) (T, error)
	// Patch applies an RFC 7386 merge patch and returns the stored entity.
	Patch(ctx context.Context, id string, patch []byte) (T, error)
	Delete(ctx context.Context, id string) error
}

// Identity is the readiness signal the collection follows.
type Identity interface {
	Ready() bool
	Subscribe() (<-chan bool, func())
}

// Item is a locally tracked entity.
type Item[T any] struct {
	Value      T          `json:"value"`
	LocalState LocalState `json:"localState"`
	AliasID    int64      `json:"aliasId"`
}

// Options configures a Collection.
type Options struct {
	// Resource names the collection in bus events.
	Resource string
	Bus      *bus.Bus
	Logger   *slog.Logger
	// Aliases may be shared between collections; one is created when nil.
	Aliases *AliasTable
}

// Collection is a locally cached, server-synced entity collection.
type Collection[T Entity[T]] struct {
	mu      sync.Mutex
	state   LoadState
	loadErr error
	order   []string
	items   map[string]*Item[T]
	// gen counts resets. Responses to calls issued under an older
	// generation are dropped.
	gen uint64

	aliases   *AliasTable
	transport Transport[T]
	resource  string
	bus       *bus.Bus
	logger    *slog.Logger
}

// New creates an idle collection.
func New[T Entity[T]](transport Transport[T], opts Options) *Collection[T] {
	c := &Collection[T]{
		state:     LoadIdle,
		items:     make(map[string]*Item[T]),
		aliases:   opts.Aliases,
		transport: transport,
		resource:  opts.Resource,
		bus:       opts.Bus,
		logger:    opts.Logger,
	}
	if c.aliases == nil {
		c.aliases = NewAliasTable()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

func (c *Collection[T]) publish(action, id string) {
	c.bus.Publish(bus.Event{Resource: c.resource, Action: action, ID: id})
}

// Aliases returns the collection's alias table.
func (c *Collection[T]) Aliases() *AliasTable { return c.aliases }

// State returns the load state and, in LoadError, the load error.
func (c *Collection[T]) State() (LoadState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.loadErr
}

// Initialize fetches the collection once. Calls made while a load is in
// flight, or after it settled, do nothing.
func (c *Collection[T]) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.state != LoadIdle {
		c.mu.Unlock()
		return nil
	}
	c.state = LoadLoading
	gen := c.gen
	c.mu.Unlock()
	c.publish("loading", "")

	list, err := c.transport.List(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		// Reset while loading; the response belongs to a previous identity.
		return nil
	}
	if err != nil {
		c.state, c.loadErr = LoadError, err
		c.logger.Error("collection load failed", slog.String("resource", c.resource), slog.String("error", err.Error()))
		c.publish("load-error", "")
		return fmt.Errorf("load %s: %w", c.resource, err)
	}

	for _, v := range list {
		id := v.EntityID()
		if _, dup := c.items[id]; !dup {
			c.order = append(c.order, id)
		}
		c.items[id] = &Item[T]{Value: v, LocalState: StateAdded, AliasID: c.aliases.Alias(id)}
	}
	c.state = LoadReady
	c.logger.Info("collection loaded", slog.String("resource", c.resource), slog.Int("items", len(list)))
	c.publish("loaded", "")
	return nil
}

// Reset clears the collection and returns it to idle. Aliases are kept.
func (c *Collection[T]) Reset() {
	c.mu.Lock()
	c.state, c.loadErr = LoadIdle, nil
	c.gen++
	c.order = nil
	clear(c.items)
	c.mu.Unlock()
	c.publish("reset", "")
}

// BindIdentity loads the collection when identity becomes ready and resets it
// when identity goes away. It returns when ctx is done.
func (c *Collection[T]) BindIdentity(ctx context.Context, identity Identity) <-chan struct{} {
	ch, cancel := identity.Subscribe()
	done := make(chan struct{})

	load := func() {
		if err := c.Initialize(ctx); err != nil {
			c.logger.Warn("initial load failed", slog.String("resource", c.resource), slog.String("error", err.Error()))
		}
	}

	go func() {
		defer close(done)
		defer cancel()

		if identity.Ready() {
			load()
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ready, ok := <-ch:
				if !ok {
					return
				}
				if ready {
					load()
					continue
				}
				if c.holdsData() {
					c.Reset()
				}
			}
		}
	}()
	return done
}

func (c *Collection[T]) holdsData() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != LoadIdle || len(c.items) > 0
}

// CreateID allocates a new id and its alias for a not-yet-added entity.
func (c *Collection[T]) CreateID(partial T) (T, int64) {
	id := uuid.NewString()
	return partial.WithEntityID(id), c.aliases.Alias(id)
}

// Get returns the local copy of an entity.
func (c *Collection[T]) Get(id string) (Item[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[id]
	if !ok {
		return Item[T]{}, false
	}
	return *it, true
}

// GetByAlias returns the local copy of the entity behind an alias.
func (c *Collection[T]) GetByAlias(alias int64) (Item[T], bool) {
	id, ok := c.aliases.ID(alias)
	if !ok {
		return Item[T]{}, false
	}
	return c.Get(id)
}

// Items returns every local item in insertion order.
func (c *Collection[T]) Items() []Item[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Item[T], 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.items[id])
	}
	return out
}

// Add inserts v locally as pending, creates it on the server and replaces
// the local copy with the server's version. On failure the insert is undone
// and the error returned. Adding an id that already exists is a no-op.
func (c *Collection[T]) Add(ctx context.Context, v T) error {
	id := v.EntityID()

	c.mu.Lock()
	if c.state != LoadReady {
		c.mu.Unlock()
		return fmt.Errorf("add %s: %w", id, ErrNotReady)
	}
	if _, exists := c.items[id]; exists {
		c.mu.Unlock()
		return nil
	}
	w := write[T]{id: id, index: -1, gen: c.gen}
	c.putLocked(id, Item[T]{Value: v, LocalState: StatePendingAdd, AliasID: c.aliases.Alias(id)}, len(c.order))
	c.mu.Unlock()
	c.publish(string(StatePendingAdd), id)

	created, err := c.transport.Create(ctx, v)
	return c.settle(w, outcome[T]{value: created, err: err})
}

// Delete removes the entity locally, then on the server. On failure the
// entity is put back where it was. Deleting an unknown id is a no-op.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	it, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	w := write[T]{id: id, before: *it, index: slices.Index(c.order, id), gen: c.gen}
	it.LocalState = StatePendingDelete
	c.removeLocked(id)
	c.mu.Unlock()
	c.publish(string(StatePendingDelete), id)

	err := c.transport.Delete(ctx, id)
	return c.settle(w, outcome[T]{removed: true, err: err})
}

// Patch applies a JSON merge patch locally, then on the server. On failure
// the exact pre-patch entity is restored. Patching an unknown id is a no-op.
func (c *Collection[T]) Patch(ctx context.Context, id string, patch []byte) error {
	c.mu.Lock()
	it, ok := c.items[id]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	before := *it
	tentative, err := mergeInto(before.Value, patch)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("patch %s: %w", id, err)
	}
	w := write[T]{id: id, before: before, index: slices.Index(c.order, id), gen: c.gen}
	it.Value = tentative.WithEntityID(id)
	it.LocalState = StatePendingEdit
	c.mu.Unlock()
	c.publish(string(StatePendingEdit), id)

	updated, err := c.transport.Patch(ctx, id, patch)
	return c.settle(w, outcome[T]{value: updated, err: err})
}

func mergeInto[T any](v T, patch []byte) (T, error) {
	var out T
	original, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	merged, err := jsonpatch.MergePatch(original, patch)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(merged, &out); err != nil {
		return out, err
	}
	return out, nil
}

// write is the pre-image of one optimistic operation. index is -1 for adds,
// which have nothing to restore. gen is the reset generation it started in.
type write[T any] struct {
	id     string
	before Item[T]
	index  int
	gen    uint64
}

// outcome is the server's verdict on a write.
type outcome[T any] struct {
	value   T
	removed bool
	err     error
}

// settle commits a successful outcome or rolls the write back. The last
// response to arrive wins the local state. Outcomes of writes started before
// a Reset leave the collection alone.
func (c *Collection[T]) settle(w write[T], o outcome[T]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w.gen != c.gen {
		return o.err
	}

	if o.err != nil {
		if w.index < 0 {
			c.removeLocked(w.id)
		} else {
			restored := w.before
			restored.LocalState = StateAdded
			c.putLocked(w.id, restored, w.index)
		}
		c.logger.Warn("optimistic write rolled back",
			slog.String("resource", c.resource),
			slog.String("id", w.id),
			slog.String("error", o.err.Error()),
		)
		c.publish("rolled-back", w.id)
		return o.err
	}

	if o.removed {
		c.removeLocked(w.id)
		c.publish(string(StateDeleted), w.id)
		return nil
	}

	pos := w.index
	if pos < 0 {
		pos = len(c.order)
	}
	c.putLocked(w.id, Item[T]{Value: o.value, LocalState: StateAdded, AliasID: c.aliases.Alias(w.id)}, pos)
	c.publish(string(StateAdded), w.id)
	return nil
}

// putLocked upserts an item, inserting it at pos when it is not present.
func (c *Collection[T]) putLocked(id string, it Item[T], pos int) {
	if _, exists := c.items[id]; !exists {
		pos = min(max(pos, 0), len(c.order))
		c.order = slices.Insert(c.order, pos, id)
	}
	c.items[id] = &it
}

func (c *Collection[T]) removeLocked(id string) {
	if _, ok := c.items[id]; !ok {
		return
	}
	delete(c.items, id)
	if i := slices.Index(c.order, id); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}
