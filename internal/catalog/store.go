package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is a persisted catalog response and the time it was fetched.
type Snapshot struct {
	Raw       []byte
	FetchedAt time.Time
}

// Store persists the raw catalog body between runs.
type Store interface {
	// Load returns the stored snapshot, or nil, nil if there is none.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the stored snapshot with raw, fetched now.
	Save(ctx context.Context, raw []byte) error

	// Location describes where the snapshot lives, for error messages.
	Location() string

	// Close releases any resources held by the store.
	Close() error
}

// FileStore keeps the catalog in a single JSON file. The file's modification
// time is the snapshot's fetch time.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the cache file.
func (s *FileStore) Load(_ context.Context) (*Snapshot, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat cache file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	return &Snapshot{Raw: data, FetchedAt: info.ModTime()}, nil
}

// Save writes raw to the cache file, creating parent directories as needed.
func (s *FileStore) Save(_ context.Context, raw []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Write atomically using temp file + rename
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set cache file mode: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// Location returns the cache file path.
func (s *FileStore) Location() string {
	return s.path
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}
