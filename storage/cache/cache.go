package cache

import (
	"context"
	"errors"
	"fmt"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("key does not exist")

// CacheInterface defines the set of methods that need to be implemented to
// be used as a cache storage. Values are marshalled to JSON on the way in.
type CacheInterface interface {
	Connect(url string) error
	Disconnect() error
	Set(ctx context.Context, key string, value interface{}) error
	// Get unmarshals the cached JSON into dest; ErrCacheMiss when absent.
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// NewCache creates a new CacheInterface with a Redis backend. It connects to
// the provided address, and returns the cache instance or an error if the
// connection failed.
func NewCache(url string) (CacheInterface, error) {
	c := NewRedisCache()
	if err := c.Connect(url); err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return c, nil
}
