package notify

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Store records which notifications were already sent.
type Store interface {
	// TrySetIfAbsent atomically creates key with the given TTL. It reports
	// false when the key already exists.
	TrySetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryStore is an in-process Store for single-instance deployments.
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore creates an in-process store that purges expired markers
// every cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

// TrySetIfAbsent implements Store.
func (s *MemoryStore) TrySetIfAbsent(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := s.cache.Add(key, struct{}{}, ttl); err != nil {
		// Add only fails when an unexpired item exists.
		return false, nil
	}
	return true, nil
}

// RedisStore shares dedup markers between instances through Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a store that namespaces its keys with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// TrySetIfAbsent implements Store with SET NX.
func (s *RedisStore) TrySetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(key), 1, ttl).Result()
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}
