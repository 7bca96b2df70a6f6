package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ExportStore keeps rendered export files on local disk so a signed
// token can fetch them again after the initial response.
type ExportStore struct {
	root string
}

// NewExportStore ensures the root directory exists and returns a handle.
func NewExportStore(root string) (*ExportStore, error) {
	if root == "" {
		root = "./exports"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create export root: %w", err)
	}
	return &ExportStore{root: root}, nil
}

// Save writes a rendered export under the root and returns the relative
// name it was stored as.
func (s *ExportStore) Save(name string, data []byte) (string, error) {
	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return name, nil
}

// Path maps a stored name to its absolute location on disk.
func (s *ExportStore) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.root, name)
}

// Sweep removes exports older than the TTL and returns the names it
// deleted.
func (s *ExportStore) Sweep(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	var deleted []string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			rel = path
		}
		deleted = append(deleted, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sweep exports: %w", err)
	}
	return deleted, nil
}
