package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/entrhq/autopilot/pkg/types"
)

// FileStore persists one JSON file per fingerprint under a directory.
// Replacement is atomic (write to a temp file, then rename), and writes for
// the same fingerprint are serialized through a per-fingerprint mutex.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates the store directory if needed. An empty dir defaults
// to ~/.autopilot/scripts.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("library: get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".autopilot", "scripts")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("library: init directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (fs *FileStore) lockFor(fingerprint string) *sync.Mutex {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	l, ok := fs.locks[fingerprint]
	if !ok {
		l = &sync.Mutex{}
		fs.locks[fingerprint] = l
	}
	return l
}

func (fs *FileStore) pathFor(fingerprint string) (string, error) {
	if fingerprint == "" {
		return "", fmt.Errorf("library: empty fingerprint")
	}
	if strings.ContainsAny(fingerprint, "/\\") {
		return "", fmt.Errorf("library: invalid fingerprint %q", fingerprint)
	}
	return filepath.Join(fs.dir, fingerprint+".json"), nil
}

// Get reads the stored script for the fingerprint.
func (fs *FileStore) Get(_ context.Context, fingerprint string) (*types.GeneratedScript, error) {
	path, err := fs.pathFor(fingerprint)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, types.PersistenceError("read %s: %v", path, err)
	}

	var s types.GeneratedScript
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, types.PersistenceError("decode %s: %v", path, err)
	}
	return &s, nil
}

// Put atomically replaces the entry for the script's fingerprint.
func (fs *FileStore) Put(_ context.Context, s *types.GeneratedScript) error {
	if s.Status != types.StatusPassed {
		return fmt.Errorf("library: refusing to store script with status %s", s.Status)
	}
	path, err := fs.pathFor(s.Fingerprint)
	if err != nil {
		return err
	}

	lock := fs.lockFor(s.Fingerprint)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return types.PersistenceError("encode script %s: %v", s.ID, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return types.PersistenceError("write temp file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return types.PersistenceError("atomic rename %s: %v", path, err)
	}
	return nil
}

// Close is a no-op for the file store.
func (fs *FileStore) Close() error { return nil }
