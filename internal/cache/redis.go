package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "polyedge:cache:"

// RedisConfig holds connection parameters for the Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// Expiry is a server-side housekeeping expiry. TTL is still enforced on read
	// from the entry timestamp, so it only needs to be >= the cache TTL.
	Expiry time.Duration
}

// RedisStore keeps cache entries as plain string values under <prefix><hash>.
// Useful when several scanner processes share one cache.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	expiry time.Duration
}

// NewRedisStore connects to Redis, pings it and returns the store.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache.NewRedisStore: ping %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreFromClient(rdb, cfg.Prefix, cfg.Expiry), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, prefix string, expiry time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, expiry: expiry}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) Read(ctx context.Context, id string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}
	return data, nil
}

func (s *RedisStore) Write(ctx context.Context, id string, data []byte) error {
	if err := s.rdb.Set(ctx, s.key(id), data, s.expiry).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", id, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

var _ Store = (*RedisStore)(nil)
