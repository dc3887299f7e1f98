package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDBStore keeps values in a leveldb directory.
type LevelDBStore struct {
	db *leveldb.DB
}

func NewLevelDBStore(path string) (*LevelDBStore, error) {
	if path == "" {
		return nil, errors.New("leveldb store path is required")
	}
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening leveldb at %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if errors.Is(err, leveldb.ErrClosed) {
		return nil, false, ErrClosed
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *LevelDBStore) Set(_ context.Context, key string, value []byte) error {
	err := s.db.Put([]byte(key), value, nil)
	if errors.Is(err, leveldb.ErrClosed) {
		return ErrClosed
	}
	return err
}

func (s *LevelDBStore) Remove(_ context.Context, key string) error {
	err := s.db.Delete([]byte(key), nil)
	if errors.Is(err, leveldb.ErrClosed) {
		return ErrClosed
	}
	return err
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
