package settings

import (
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend keeps all settings in a single JSON file under dataDir.
type FileBackend struct {
	dataDir string
	entries map[string]json.RawMessage
	mu      sync.RWMutex
}

// NewFileBackend creates a file backend, loading any existing settings.
func NewFileBackend(dataDir string) *FileBackend {
	b := &FileBackend{
		dataDir: dataDir,
		entries: make(map[string]json.RawMessage),
	}
	b.loadFromDisk()
	return b
}

// Load implements Backend.
func (b *FileBackend) Load(key string) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.entries[key]
	return data, ok, nil
}

// Save implements Backend.
func (b *FileBackend) Save(key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key] = json.RawMessage(data)
	return b.saveToDisk()
}

// Delete implements Backend.
func (b *FileBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[key]; !ok {
		return nil
	}
	delete(b.entries, key)
	return b.saveToDisk()
}

// Close implements Backend.
func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) configFile() string {
	return filepath.Join(b.dataDir, "settings.json")
}

func (b *FileBackend) loadFromDisk() {
	data, err := os.ReadFile(b.configFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil || entries == nil {
		return // Invalid JSON or null, start empty
	}
	b.entries = entries
}

func (b *FileBackend) saveToDisk() error {
	if err := os.MkdirAll(b.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(b.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.configFile(), data, 0644)
}

type memBackend struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemBackend() *memBackend {
	return &memBackend{entries: map[string][]byte{}}
}

func (b *memBackend) Load(key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.entries[key]
	return data, ok, nil
}

func (b *memBackend) Save(key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = data
	return nil
}

func (b *memBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

func (b *memBackend) Close() error { return nil }

func (b *memBackend) snapshot() map[string][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.entries)
}
