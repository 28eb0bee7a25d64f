package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const fileExt = ".img"

// FileStore writes each upload to its own file under a directory.
//
// Writes go to a temp file first and are renamed into place, so a handle is
// never visible with partial contents.
type FileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore creates dir (0700) if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("storage: empty directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(handle string) (string, error) {
	if !ValidHandle(handle) {
		return "", ErrInvalidHandle
	}
	return filepath.Join(s.dir, handle+fileExt), nil
}

func (s *FileStore) Put(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	h, err := NewHandle(s.now().UTC())
	if err != nil {
		return "", err
	}
	dst, err := s.path(h)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("storage: temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("storage: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("storage: close: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("storage: rename: %w", err)
	}

	return h, nil
}

func (s *FileStore) Exists(ctx context.Context, handle string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := s.path(handle)
	if err != nil {
		return false, nil
	}

	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (s *FileStore) Delete(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(handle)
	if err != nil {
		return err
	}

	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("storage: remove %s: %w", handle, err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }
