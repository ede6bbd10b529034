package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps one JSON file per key inside Dir.
type FileStore struct {
	Dir string

	mu sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (f *FileStore) path(key string) string { return filepath.Join(f.Dir, key+".json") }

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(key)
}

func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(key, value)
}

func (f *FileStore) CompareAndSwap(_ context.Context, key string, prev, next []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur, err := f.read(key)
	switch {
	case errors.Is(err, ErrNotFound):
		if prev != nil {
			return false, nil
		}
	case err != nil:
		return false, err
	default:
		if prev == nil || !bytes.Equal(cur, prev) {
			return false, nil
		}
	}
	if err := f.write(key, next); err != nil {
		return false, err
	}
	return true, nil
}

func (f *FileStore) read(key string) ([]byte, error) {
	b, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

// write replaces the file through a temp file in the same directory so
// readers never observe a partial record.
func (f *FileStore) write(key string, value []byte) error {
	tmp, err := os.CreateTemp(f.Dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(name, f.path(key)); err != nil {
		os.Remove(name)
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
