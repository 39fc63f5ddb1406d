package session

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:v1:"

// RedisStore keeps session keys in Redis as session:v1:<client>:<key>.
type RedisStore struct {
	cache *redis.Client
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(cache *redis.Client) *RedisStore {
	return &RedisStore{cache: cache}
}

func redisKey(clientID, key string) string {
	return keyPrefix + clientID + ":" + key
}

// SetMany writes all values in one MSET so a reader never sees half a session.
func (s *RedisStore) SetMany(ctx context.Context, clientID string, values map[string]string) error {
	pairs := make([]any, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, redisKey(clientID, k), v)
	}
	return s.cache.MSet(ctx, pairs...).Err()
}

// Get reads a single key.
func (s *RedisStore) Get(ctx context.Context, clientID, key string) (string, error) {
	v, err := s.cache.Get(ctx, redisKey(clientID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

// Delete removes keys; missing keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, clientID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, redisKey(clientID, k))
	}
	return s.cache.Del(ctx, full...).Err()
}
