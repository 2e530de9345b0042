package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// cacheTTL bounds how long a cached value lives. Aggregation views are
// invalidated on every mutation anyway; the TTL catches anything missed.
const cacheTTL = 24 * time.Hour

// RedisCache is a CacheInterface backed by a Redis server.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new instance of RedisCache. This function doesn't
// establish a connection to the Redis server; use the Connect method for
// that.
func NewRedisCache() *RedisCache {
	return &RedisCache{}
}

// Connect establishes a connection to the Redis backend.
func (r *RedisCache) Connect(redisURL string) error {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return err
	}

	r.client = redis.NewClient(opt)

	_, err = r.client.Ping(context.Background()).Result()
	return err
}

// Disconnect closes the connection to the Redis server.
func (r *RedisCache) Disconnect() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Set marshals the value into a JSON string and stores it under key.
func (r *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	marshaledValue, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, marshaledValue, cacheTTL).Err()
}

// Get retrieves the value of a given key and unmarshals it into dest.
// Returns ErrCacheMiss when the key is not present.
func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	value, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrCacheMiss
	} else if err != nil {
		return err
	}
	return json.Unmarshal([]byte(value), dest)
}

// Delete removes a key from the cache. Deleting an absent key is a no-op.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Clear removes all keys from the currently selected database.
func (r *RedisCache) Clear(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}
