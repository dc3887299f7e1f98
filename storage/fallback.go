package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/log"
)

// FallbackStore combines a primary and a secondary store. When the primary
// fails with an unexpected error the secondary is used. Writes go to both so
// the secondary stays usable; a write fails only when both fail.
type FallbackStore struct {
	primary   Store
	secondary Store
	log       log.Logger
}

func NewFallbackStore(primary, secondary Store, lg log.Logger) *FallbackStore {
	if lg == nil {
		lg = log.New()
	}
	return &FallbackStore{primary: primary, secondary: secondary, log: lg}
}

func (f *FallbackStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := f.primary.Get(ctx, key)
	if err != nil {
		f.log.Warn("Primary store failed, using fallback", "op", "get", "key", key, "err", err)
		return f.secondary.Get(ctx, key)
	}
	return v, ok, nil
}

func (f *FallbackStore) Set(ctx context.Context, key string, value []byte) error {
	perr := f.primary.Set(ctx, key, value)
	if perr != nil {
		f.log.Warn("Primary store failed, using fallback", "op", "set", "key", key, "err", perr)
	}
	serr := f.secondary.Set(ctx, key, value)
	if perr != nil && serr != nil {
		return errors.Join(perr, serr)
	}
	return nil
}

func (f *FallbackStore) Remove(ctx context.Context, key string) error {
	perr := f.primary.Remove(ctx, key)
	if perr != nil {
		f.log.Warn("Primary store failed, using fallback", "op", "remove", "key", key, "err", perr)
	}
	serr := f.secondary.Remove(ctx, key)
	if perr != nil && serr != nil {
		return errors.Join(perr, serr)
	}
	return nil
}

func (f *FallbackStore) Close() error {
	return errors.Join(f.primary.Close(), f.secondary.Close())
}
