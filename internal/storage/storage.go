// File: internal/storage/storage.go
// Description: Persistent key-value storage collaborator. The extension's
// chrome.storage.local becomes a small JSON state file; writes are
// last-writer-wins and conflicts are only ever cosmetic cache staleness.

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	gocache "github.com/patrickmn/go-cache"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the key-value contract shared by every execution context.
type Store interface {
	// Get unmarshals the value stored under key into v and reports whether
	// the key existed.
	Get(key string, v any) (bool, error)
	Set(key string, v any) error
	Delete(key string) error
}

// FileStore persists keys in a single JSON file. Safe for concurrent use
// within one process; cross-process writers are serialized per-context by
// convention, so last-writer-wins is acceptable.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates the parent directory if needed and returns the store.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) load() (map[string]jsoniter.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]jsoniter.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	state := map[string]jsoniter.RawMessage{}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		// A corrupt state file is a cache, not a source of truth. Start over.
		return map[string]jsoniter.RawMessage{}, nil
	}
	return state, nil
}

func (f *FileStore) save(state map[string]jsoniter.RawMessage) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Get(key string, v any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return false, err
	}
	raw, ok := state[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %q: %w", key, err)
	}
	return true, nil
}

func (f *FileStore) Set(key string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", key, err)
	}
	state[key] = raw
	return f.save(state)
}

func (f *FileStore) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := state[key]; !ok {
		return nil
	}
	delete(state, key)
	return f.save(state)
}

// MemStore is an in-memory Store used by tests and transient surfaces. Values
// round-trip through JSON so it behaves like the file store, and entries share
// a default TTL so stale snapshots eventually age out.
type MemStore struct {
	cache *gocache.Cache
}

// NewMemStore creates a MemStore. ttl <= 0 means entries never expire.
func NewMemStore(ttl time.Duration) *MemStore {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemStore{cache: gocache.New(ttl, 10*time.Minute)}
}

func (m *MemStore) Get(key string, v any) (bool, error) {
	raw, ok := m.cache.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw.([]byte), v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %q: %w", key, err)
	}
	return true, nil
}

func (m *MemStore) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", key, err)
	}
	m.cache.SetDefault(key, raw)
	return nil
}

func (m *MemStore) Delete(key string) error {
	m.cache.Delete(key)
	return nil
}
