package identity

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore namespaces every key with a prefix so several widgets can share
// one Redis database. Values never expire.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = &RedisStore{}

const pingTimeout = 5 * time.Second

// NewRedisStore connects to addr and pings it, so an unreachable server fails
// here rather than on the first read.
func NewRedisStore(addr string, prefix string) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis identity store: empty address")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis identity store: ping")
	}
	return NewRedisStoreFromClient(client, prefix), nil
}

func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	v, err := s.client.Get(ctx, s.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis identity store: get")
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return errors.Wrap(s.client.Set(ctx, s.redisKey(key), value, 0).Err(), "redis identity store: set")
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return errors.Wrap(s.client.Del(ctx, s.redisKey(key)).Err(), "redis identity store: delete")
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
