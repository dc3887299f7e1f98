package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps every key in a single JSON document on disk.
type FileStore struct {
	mtx    sync.Mutex
	path   string
	closed bool
}

// NewFileStore creates the parent directory of path if needed.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) load() (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading store file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing store file %s: %w", f.path, err)
	}
	return doc, nil
}

func (f *FileStore) save(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.closed {
		return nil, false, ErrClosed
	}
	doc, err := f.load()
	if err != nil {
		return nil, false, err
	}
	v, ok := doc[key]
	return v, ok, nil
}

// Set stores value, which must be valid JSON.
func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.closed {
		return ErrClosed
	}
	doc, err := f.load()
	if err != nil {
		return err
	}
	doc[key] = append(json.RawMessage(nil), value...)
	return f.save(doc)
}

func (f *FileStore) Remove(_ context.Context, key string) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	if f.closed {
		return ErrClosed
	}
	doc, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := doc[key]; !ok {
		return nil
	}
	delete(doc, key)
	return f.save(doc)
}

func (f *FileStore) Close() error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.closed = true
	return nil
}
