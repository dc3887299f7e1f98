package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "failed-tests", []byte(`["a1b2c3d4"]`)))
	v, ok, err := s.Get(ctx, "failed-tests")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["a1b2c3d4"]`, string(v))

	ids := []string{"default"}
	found, err := GetJSON(ctx, s, "failed-tests", &ids)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"a1b2c3d4"}, ids)

	require.NoError(t, SetJSON(ctx, s, "counts", map[string]int{"pass": 2}))
	var counts map[string]int
	_, err = GetJSON(ctx, s, "counts", &counts)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["pass"])

	require.NoError(t, s.Remove(ctx, "failed-tests"))
	require.NoError(t, s.Remove(ctx, "failed-tests"))
	ids = []string{"default"}
	found, err = GetJSON(ctx, s, "failed-tests", &ids)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, []string{"default"}, ids)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	require.NoError(t, s.Close())
	_, _, err := s.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	// A second store on the same file sees the persisted values.
	require.NoError(t, s.Set(context.Background(), "k", []byte(`1`)))
	other, err := NewFileStore(path)
	require.NoError(t, err)
	v, ok, err := other.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", string(v))

	assert.Error(t, s.Set(context.Background(), "bad", []byte("{")))
}

func TestLevelDBStore(t *testing.T) {
	s, err := NewLevelDBStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())
	_, _, err = s.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRedisStore(t *testing.T) {
	redis, err := miniredis.Run()
	require.NoError(t, err)
	defer redis.Close()

	s, err := NewRedisStore(context.Background(), fmt.Sprintf("redis://%s", redis.Addr()), "test", log.New())
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)

	require.NoError(t, s.Set(context.Background(), "k", []byte("v")))
	got, err := redis.Get("test:k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestFallbackStore(t *testing.T) {
	primary := NewMemoryStore()
	secondary := NewMemoryStore()
	s := NewFallbackStore(primary, secondary, log.New())
	exerciseStore(t, s)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte(`"v"`)))
	require.NoError(t, primary.Close())

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"v"`, string(v))
	require.NoError(t, s.Set(ctx, "k2", []byte(`1`)))

	require.NoError(t, secondary.Close())
	assert.Error(t, s.Set(ctx, "k3", []byte(`1`)))
}

func TestNew(t *testing.T) {
	dir := t.TempDir()
	redis, err := miniredis.Run()
	require.NoError(t, err)
	defer redis.Close()

	tests := []struct {
		name    string
		cfg     Config
		want    any
		wantErr bool
	}{
		{name: "default", cfg: Config{}, want: &MemoryStore{}},
		{name: "memory", cfg: Config{URL: "memory://"}, want: &MemoryStore{}},
		{name: "file", cfg: Config{URL: "file://" + filepath.ToSlash(filepath.Join(dir, "state.json"))}, want: &FileStore{}},
		{name: "leveldb", cfg: Config{URL: "leveldb://" + filepath.ToSlash(filepath.Join(dir, "ldb"))}, want: &LevelDBStore{}},
		{name: "redis", cfg: Config{URL: "redis://" + redis.Addr()}, want: &RedisStore{}},
		{name: "fallback", cfg: Config{URL: "redis://" + redis.Addr(), Fallback: "memory://"}, want: &FallbackStore{}},
		{name: "unknown scheme", cfg: Config{URL: "s3://bucket"}, wantErr: true},
		{name: "unreachable redis", cfg: Config{URL: "redis://127.0.0.1:1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(context.Background(), tt.cfg, log.New())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestLocalPath(t *testing.T) {
	s, err := New(context.Background(), Config{URL: "file:///tmp/op-harness-test/state.json"}, nil)
	require.NoError(t, err)
	fs, ok := s.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, filepath.FromSlash("/tmp/op-harness-test/state.json"), fs.path)
}
