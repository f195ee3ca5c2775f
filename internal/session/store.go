package session

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"livequiz-player/internal/domain"
)

// FileStore keeps the identity as a small JSON file, the CLI equivalent of
// browser local storage.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (domain.PlayerIdentity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.PlayerIdentity{}, false, nil
	}
	if err != nil {
		return domain.PlayerIdentity{}, false, err
	}
	var id domain.PlayerIdentity
	if err := json.Unmarshal(data, &id); err != nil {
		// A corrupt session file is treated as absent, not fatal.
		return domain.PlayerIdentity{}, false, nil
	}
	return id, true, nil
}

func (s *FileStore) Save(id domain.PlayerIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *FileStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryStore is a volatile Store for tests.
type MemoryStore struct {
	mu  sync.Mutex
	id  domain.PlayerIdentity
	set bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (domain.PlayerIdentity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.set, nil
}

func (s *MemoryStore) Save(id domain.PlayerIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.set = true
	return nil
}

func (s *MemoryStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = domain.PlayerIdentity{}
	s.set = false
	return nil
}
