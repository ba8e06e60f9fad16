// Package service contains the server side of the area-watch collection.
package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/joeblew999/plat-watch/internal/areawatch"
	"github.com/joeblew999/plat-watch/internal/bus"
)

// AreaWatchService stores area watches in a JSON file under the data
// directory. An empty data directory keeps them in memory only.
type AreaWatchService struct {
	dataDir string
	watches map[string]areawatch.AreaWatch
	order   []string
	mu      sync.RWMutex
	bus     *bus.Bus
	now     func() time.Time
}

// NewAreaWatchService creates the service and loads any persisted watches.
func NewAreaWatchService(dataDir string, b *bus.Bus) *AreaWatchService {
	s := &AreaWatchService{
		dataDir: dataDir,
		watches: make(map[string]areawatch.AreaWatch),
		bus:     b,
		now:     time.Now,
	}
	s.loadFromDisk()
	return s
}

// List returns all watches in creation order.
func (s *AreaWatchService) List() []areawatch.AreaWatch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]areawatch.AreaWatch, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.watches[id])
	}
	return result
}

// Get returns a watch by ID.
func (s *AreaWatchService) Get(id string) (areawatch.AreaWatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.watches[id]
	if !ok {
		return areawatch.AreaWatch{}, fmt.Errorf("%w: %q", areawatch.ErrNotFound, id)
	}
	return w, nil
}

// Create stores a new watch. A missing ID is generated.
func (s *AreaWatchService) Create(w areawatch.AreaWatch) (areawatch.AreaWatch, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := s.now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	if err := w.Validate(); err != nil {
		return areawatch.AreaWatch{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.watches[w.ID]; exists {
		return areawatch.AreaWatch{}, fmt.Errorf("%w: %q", areawatch.ErrExists, w.ID)
	}
	s.watches[w.ID] = w
	s.order = append(s.order, w.ID)
	if err := s.saveToDisk(); err != nil {
		delete(s.watches, w.ID)
		s.order = s.order[:len(s.order)-1]
		return areawatch.AreaWatch{}, err
	}

	s.bus.Publish(bus.Event{Resource: bus.ResourceAreaWatches, Action: "created", ID: w.ID})
	return w, nil
}

// Patch applies a JSON merge patch. The ID and creation time cannot be
// patched.
func (s *AreaWatchService) Patch(id string, patch []byte) (areawatch.AreaWatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.watches[id]
	if !ok {
		return areawatch.AreaWatch{}, fmt.Errorf("%w: %q", areawatch.ErrNotFound, id)
	}

	original, err := json.Marshal(current)
	if err != nil {
		return areawatch.AreaWatch{}, err
	}
	merged, err := jsonpatch.MergePatch(original, patch)
	if err != nil {
		return areawatch.AreaWatch{}, fmt.Errorf("%w: %w", areawatch.ErrInvalid, err)
	}
	var updated areawatch.AreaWatch
	if err := json.Unmarshal(merged, &updated); err != nil {
		return areawatch.AreaWatch{}, fmt.Errorf("%w: %w", areawatch.ErrInvalid, err)
	}
	updated.ID = id
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = s.now().UTC()
	if err := updated.Validate(); err != nil {
		return areawatch.AreaWatch{}, err
	}

	s.watches[id] = updated
	if err := s.saveToDisk(); err != nil {
		s.watches[id] = current
		return areawatch.AreaWatch{}, err
	}

	s.bus.Publish(bus.Event{Resource: bus.ResourceAreaWatches, Action: "updated", ID: id})
	return updated, nil
}

// Delete removes a watch by ID.
func (s *AreaWatchService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.watches[id]
	if !exists {
		return fmt.Errorf("%w: %q", areawatch.ErrNotFound, id)
	}

	i := slices.Index(s.order, id)
	delete(s.watches, id)
	s.order = slices.Delete(s.order, i, i+1)
	if err := s.saveToDisk(); err != nil {
		s.watches[id] = current
		s.order = slices.Insert(s.order, i, id)
		return err
	}

	s.bus.Publish(bus.Event{Resource: bus.ResourceAreaWatches, Action: "deleted", ID: id})
	return nil
}

// storeFile returns the path to the area-watch file.
func (s *AreaWatchService) storeFile() string {
	return filepath.Join(s.dataDir, "area-watches.json")
}

// loadFromDisk loads watches from disk.
func (s *AreaWatchService) loadFromDisk() {
	if s.dataDir == "" {
		return
	}
	data, err := os.ReadFile(s.storeFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var watches []areawatch.AreaWatch
	if err := json.Unmarshal(data, &watches); err != nil {
		return // Invalid JSON, start empty
	}

	for _, w := range watches {
		if _, dup := s.watches[w.ID]; dup {
			continue
		}
		s.watches[w.ID] = w
		s.order = append(s.order, w.ID)
	}
}

// saveToDisk persists watches to disk. Callers hold the write lock.
func (s *AreaWatchService) saveToDisk() error {
	if s.dataDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	watches := make([]areawatch.AreaWatch, 0, len(s.order))
	for _, id := range s.order {
		watches = append(watches, s.watches[id])
	}
	data, err := json.MarshalIndent(watches, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.storeFile(), data, 0644)
}
