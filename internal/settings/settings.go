// Package settings persists small versioned client preferences, such as the
// default visibility layer.
//
// Values are stored as a JSON envelope carrying a schema version. Reading a
// key whose stored version differs from the expected one logs a warning,
// deletes the stale entry and reports the key as absent.
package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Store is the persistent settings collaborator.
type Store interface {
	// Get decodes the value stored under key into out. It reports false
	// when the key is absent or was stored with another version.
	Get(key string, version int, out any) (bool, error)
	Set(key string, value any, version int) error
	Remove(key string) error
}

// Backend is a raw key/value persistence layer.
type Backend interface {
	Load(key string) ([]byte, bool, error)
	Save(key string, data []byte) error
	Delete(key string) error
	Close() error
}

type envelope struct {
	Version int             `json:"version"`
	Value   json.RawMessage `json:"value"`
}

// VersionedStore implements Store on top of a Backend.
type VersionedStore struct {
	backend Backend
	logger  *slog.Logger
}

// New wraps a backend. A nil logger uses slog.Default().
func New(backend Backend, logger *slog.Logger) *VersionedStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &VersionedStore{backend: backend, logger: logger}
}

// Get implements Store.
func (s *VersionedStore) Get(key string, version int, out any) (bool, error) {
	data, ok, err := s.backend.Load(key)
	if err != nil {
		return false, fmt.Errorf("load setting %q: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Version != version {
		s.logger.Warn("discarding stale setting",
			slog.String("key", key),
			slog.Int("stored_version", env.Version),
			slog.Int("expected_version", version),
		)
		if err := s.backend.Delete(key); err != nil {
			return false, fmt.Errorf("delete stale setting %q: %w", key, err)
		}
		return false, nil
	}

	if err := json.Unmarshal(env.Value, out); err != nil {
		return false, fmt.Errorf("decode setting %q: %w", key, err)
	}
	return true, nil
}

// Set implements Store.
func (s *VersionedStore) Set(key string, value any, version int) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %q: %w", key, err)
	}
	data, err := json.Marshal(envelope{Version: version, Value: raw})
	if err != nil {
		return err
	}
	return s.backend.Save(key, data)
}

// Remove implements Store.
func (s *VersionedStore) Remove(key string) error {
	return s.backend.Delete(key)
}

// Close closes the backend.
func (s *VersionedStore) Close() error {
	return s.backend.Close()
}

// Memory is an in-memory Store, handy for tests and ephemeral sessions.
type Memory struct {
	*VersionedStore
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{New(newMemBackend(), nil)}
}
