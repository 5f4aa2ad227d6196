package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the token as a small JSON document, the local
// equivalent of the web client's persisted token slot.
type FileStore struct {
	path string
	mu   sync.Mutex
}

type fileDoc struct {
	Token string `json:"token"`
}

// NewFileStore returns a store backed by path. The file need not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// Token returns the stored token. A missing or unreadable file yields "".
func (s *FileStore) Token() string {
	tok, err := s.Load()
	if err != nil {
		return ""
	}
	return tok
}

// Load reads the stored token. A missing file is not an error.
func (s *FileStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse token file %s: %w", s.path, err)
	}
	return doc.Token, nil
}

// Save writes token atomically with owner-only permissions.
func (s *FileStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(fileDoc{Token: token})
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Clear removes the stored token.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
