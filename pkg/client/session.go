package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mrshanahan/notes-sync/pkg/notes"
)

// SessionStore persists the session token between client instances.
// Load returns nil with no error when nothing is stored.
type SessionStore interface {
	Load() (*notes.SessionToken, error)
	Save(session *notes.SessionToken) error
	Clear() error
}

type MemorySessionStore struct {
	mu      sync.Mutex
	session *notes.SessionToken
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (s *MemorySessionStore) Load() (*notes.SessionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, nil
}

func (s *MemorySessionStore) Save(session *notes.SessionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
	return nil
}

func (s *MemorySessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

// FileSessionStore keeps the session as JSON in a file readable only by the
// current user.
type FileSessionStore struct {
	Path string
}

func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{Path: path}
}

func (s *FileSessionStore) Load() (*notes.SessionToken, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading session file: %w", err)
	}

	session := &notes.SessionToken{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("error JSON-decoding session file: %w", err)
	}
	if session.AccessToken == "" {
		return nil, nil
	}
	return session, nil
}

func (s *FileSessionStore) Save(session *notes.SessionToken) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return fmt.Errorf("error creating session directory: %w", err)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("error JSON-encoding session: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0600); err != nil {
		return fmt.Errorf("error writing session file: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(s.Path, 0600); err != nil {
		return fmt.Errorf("error restricting session file: %w", err)
	}
	return nil
}

func (s *FileSessionStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing session file: %w", err)
	}
	return nil
}
