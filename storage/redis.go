package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps values in redis under "<prefix>:<key>".
type RedisStore struct {
	r      redis.UniversalClient
	prefix string
}

// NewRedisStore connects to url and checks the connection.
func NewRedisStore(ctx context.Context, url, prefix string, lg log.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := checkRedisConnection(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	lg.Info("Connected to redis store", "addr", opts.Addr, "db", opts.DB)
	return NewRedisStoreWithClient(client, prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "op-harness"
	}
	return &RedisStore{r: client, prefix: prefix}
}

func checkRedisConnection(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("error connecting to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.r.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.r.Set(ctx, s.key(key), value, 0).Err()
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return s.r.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) Close() error {
	return s.r.Close()
}
