package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend persists the snapshot as a single file on disk. Save
// writes to a temp file in the same directory and renames it into
// place, so a crash mid-write never leaves a truncated snapshot behind.
type FileBackend struct {
	path string
	perm os.FileMode
}

// NewFileBackend returns a FileBackend writing to path with mode 0o600.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path, perm: 0o600}
}

func (f *FileBackend) Load(ctx context.Context) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("storage: read %s: %w", f.path, err)
	}
	return data, true, nil
}

func (f *FileBackend) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".sheetvec-*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("storage: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("storage: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, f.perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("storage: rename into place: %w", err)
	}
	return nil
}

func (f *FileBackend) Remove(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", f.path, err)
	}
	return nil
}
