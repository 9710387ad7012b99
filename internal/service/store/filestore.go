package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps each blob as a JSON file under dataDir, logs as .jsonl
// files, and artifacts under dataDir/meetings. This mirrors the layout the
// service has always used on disk, so existing data directories keep working.
type FileStore struct {
	mu      sync.Mutex
	dataDir string
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "meetings"), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

func (s *FileStore) blobPath(key string) string {
	return filepath.Join(s.dataDir, key+".json")
}

// Load implements Store.
func (s *FileStore) Load(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.blobPath(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return data, nil
}

// Save implements Store.
func (s *FileStore) Save(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.blobPath(key), data, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// AppendLine implements Store.
func (s *FileStore) AppendLine(key string, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dataDir, key+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append %s: %w", key, err)
	}
	return nil
}

// SaveArtifact implements Store.
func (s *FileStore) SaveArtifact(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dataDir, "meetings", name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save artifact %s: %w", name, err)
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }
