package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalidPath indicates an empty report path.
var ErrInvalidPath = errors.New("report: invalid path")

// FileStore persists a RunReport as a single JSON file, overwriting the
// previous run.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore that writes to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the report file location.
func (s *FileStore) Path() string { return s.path }

// Save writes r to the store path. The write is atomic: readers see either the
// previous report or the new one, never a partial file.
func (s *FileStore) Save(r RunReport) error {
	if s.path == "" {
		return ErrInvalidPath
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshaling: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".test-report-*.json")
	if err != nil {
		return fmt.Errorf("report: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("report: writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("report: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("report: replacing %s: %w", s.path, err)
	}
	return nil
}
