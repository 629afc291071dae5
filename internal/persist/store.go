// Package persist implements the durable key-to-record store backing the
// page-context cache and the product catalog. Records are kept as one JSON
// object per file, loaded in full at startup and written through on every
// mutation.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store reads and writes a JSON map of key -> record at a fixed path.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a Store for the given file path, creating the parent directory
// if needed.
func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads the full record map. A missing file yields an empty map. Each
// value is returned raw so the caller can decode records individually and
// skip malformed ones instead of losing the whole file.
func (s *Store) Load() (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}
	if len(data) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	records := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode store file: %w", err)
	}
	return records, nil
}

// Save writes the full record map, replacing the previous contents. The
// write goes to a temp file first and is renamed into place so a crash
// mid-write cannot corrupt the store.
func (s *Store) Save(records any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store records: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write store temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
