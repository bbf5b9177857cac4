package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the queue as a JSON file. Writes go through a temp
// file and rename so a crash never leaves a torn queue on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at path, creating parent directories.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Load() ([]QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []QueuedMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *FileStore) Save(entries []QueuedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// MemoryStore keeps the queue in memory only. Used in tests and by
// callers that do not need restart durability.
type MemoryStore struct {
	mu      sync.Mutex
	entries []QueuedMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() ([]QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QueuedMessage, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryStore) Save(entries []QueuedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make([]QueuedMessage, len(entries))
	copy(s.entries, entries)
	return nil
}
