package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "fedi:credentials:"

// RedisStore keeps Data in Redis under a per-application key so several
// workers can share one registration.
type RedisStore struct {
	redis *redis.Client
	key   string
}

// NewRedisStore returns a store for name. It panics on a nil client.
func NewRedisStore(redisClient *redis.Client, name string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		key:   redisKeyPrefix + name,
	}
}

// Key returns the Redis key the store uses.
func (s *RedisStore) Key() string {
	return s.key
}

// Load reads and validates the stored data.
func (s *RedisStore) Load(ctx context.Context) (*Data, error) {
	raw, err := s.redis.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return &data, nil
}

// Save stores data without expiry.
func (s *RedisStore) Save(ctx context.Context, data *Data) error {
	if err := data.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := s.redis.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the stored data.
func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
