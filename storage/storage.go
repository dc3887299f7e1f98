// Package storage persists small values between runs, such as the ids of the
// tests that failed last time.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store is closed")

// Store is a key/value persistence surface.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is missing.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// GetJSON decodes the value under key into dst. dst is left untouched when
// the key is missing, so it can carry the default.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decoding %q: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// Config selects a backend.
type Config struct {
	// URL is one of memory://, file:///path/state.json, leveldb:///path/dir
	// or redis://host:port/db. An empty URL selects memory.
	URL string
	// Fallback, when set, is used whenever the primary store fails.
	Fallback string
	// Prefix namespaces redis keys.
	Prefix string
}

// New opens the store described by cfg.
func New(ctx context.Context, cfg Config, lg log.Logger) (Store, error) {
	if lg == nil {
		lg = log.New()
	}
	primary, err := open(ctx, cfg.URL, cfg.Prefix, lg)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == "" {
		return primary, nil
	}
	secondary, err := open(ctx, cfg.Fallback, cfg.Prefix, lg)
	if err != nil {
		_ = primary.Close()
		return nil, fmt.Errorf("opening fallback store: %w", err)
	}
	return NewFallbackStore(primary, secondary, lg), nil
}

func open(ctx context.Context, rawURL, prefix string, lg log.Logger) (Store, error) {
	if rawURL == "" {
		return NewMemoryStore(), nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid store url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(localPath(u))
	case "leveldb":
		return NewLevelDBStore(localPath(u))
	case "redis", "rediss":
		return NewRedisStore(ctx, rawURL, prefix, lg)
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
}

// localPath accepts both file:///abs/path and file://relative/path.
func localPath(u *url.URL) string {
	p := u.Path
	if u.Host != "" {
		p = u.Host + p
	}
	if p == "" {
		p = u.Opaque
	}
	return filepath.FromSlash(strings.TrimSuffix(p, "/"))
}
