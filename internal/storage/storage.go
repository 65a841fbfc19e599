// Package storage provides file-based JSON storage for small pieces of local
// client state, such as the login screen's remember-me preferences. None of
// the session cache or load-guard state goes through here; those reset on
// every client start.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var ErrNotFound = errors.New("not found")

// Store reads and writes named JSON documents under a base directory.
// Writes are atomic (temp file + rename) and guarded by a per-file flock so
// two client processes cannot interleave partial writes.
type Store struct {
	basePath string
	mu       sync.Mutex
	locks    map[string]*FileLock
}

// New creates a Store rooted at basePath.
func New(basePath string) *Store {
	return &Store{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

func (s *Store) pathFor(name string) string {
	return filepath.Join(s.basePath, name+".json")
}

func (s *Store) lockFor(path string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[path]; ok {
		return l
	}
	l := NewFileLock(path)
	s.locks[path] = l
	return l
}

// Get reads the named document into v. Returns ErrNotFound when the document
// does not exist.
func (s *Store) Get(name string, v any) error {
	data, err := os.ReadFile(s.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return nil
}

// Put writes v as the named document. The preference files carry emails, so
// files are created owner-readable only.
func (s *Store) Put(name string, v any) error {
	path := s.pathFor(name)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Delete removes the named document. Deleting a document that does not exist
// is not an error.
func (s *Store) Delete(name string) error {
	path := s.pathFor(name)

	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// LoginPrefs is the locally persisted login-screen state.
type LoginPrefs struct {
	RememberMe bool   `json:"rememberMe"`
	LastEmail  string `json:"lastEmail,omitempty"`
}

const loginPrefsName = "login"

// LoadLoginPrefs returns the persisted login preferences, or zero-value
// prefs when none have been saved yet.
func (s *Store) LoadLoginPrefs() (LoginPrefs, error) {
	var prefs LoginPrefs
	err := s.Get(loginPrefsName, &prefs)
	if errors.Is(err, ErrNotFound) {
		return LoginPrefs{}, nil
	}
	return prefs, err
}

// SaveLoginPrefs persists login preferences. When remember-me is off the
// stored email is dropped as well.
func (s *Store) SaveLoginPrefs(prefs LoginPrefs) error {
	if !prefs.RememberMe {
		prefs.LastEmail = ""
	}
	return s.Put(loginPrefsName, prefs)
}
