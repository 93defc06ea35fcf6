// Package cache provides a typed JSON cache over redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ICache defines a general caching interface
type ICache[T any] interface {
	Get(context.Context, string) (*T, error)
	Set(context.Context, string, *T, ...time.Duration) error
	Delete(context.Context, ...string) error
	GetField(context.Context, string, string) (*T, error)
	SetField(context.Context, string, string, *T, ...time.Duration) error
	Exists(context.Context, string) (bool, error)
}

var errNilClient = errors.New("redis client is nil")

// Cache implements the ICache interface
type Cache[T any] struct {
	rc  *redis.Client
	key string
}

// NewCache creates a new Cache instance. Every key is prefixed with key.
func NewCache[T any](rc *redis.Client, key string) *Cache[T] {
	return &Cache[T]{rc: rc, key: key}
}

// Key defines the cache key
func (c *Cache[T]) Key(name string) string {
	if c.key != "" {
		return fmt.Sprintf("%s:%s", c.key, name)
	}
	return name
}

// Client returns the underlying redis client
func (c *Cache[T]) Client() *redis.Client {
	return c.rc
}

// Get retrieves a single item from cache, returning nil on a miss
func (c *Cache[T]) Get(ctx context.Context, name string) (*T, error) {
	if c.rc == nil {
		return nil, errNilClient
	}
	result, err := c.rc.Get(ctx, c.Key(name)).Result()
	return decode[T](result, err)
}

// Set saves a single item into cache
func (c *Cache[T]) Set(ctx context.Context, name string, data *T, expire ...time.Duration) error {
	if c.rc == nil {
		return errNilClient
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := c.rc.Set(ctx, c.Key(name), bytes, expiration(expire)).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// GetField retrieves one field of a hash, returning nil on a miss
func (c *Cache[T]) GetField(ctx context.Context, name, field string) (*T, error) {
	if c.rc == nil {
		return nil, errNilClient
	}
	result, err := c.rc.HGet(ctx, c.Key(name), field).Result()
	return decode[T](result, err)
}

// SetField stores one field of a hash and refreshes the hash expiry
func (c *Cache[T]) SetField(ctx context.Context, name, field string, data *T, expire ...time.Duration) error {
	if c.rc == nil {
		return errNilClient
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	key := c.Key(name)
	pipe := c.rc.TxPipeline()
	pipe.HSet(ctx, key, field, bytes)
	if exp := expiration(expire); exp > 0 {
		pipe.Expire(ctx, key, exp)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set cache field: %w", err)
	}
	return nil
}

// Delete removes items from cache
func (c *Cache[T]) Delete(ctx context.Context, names ...string) error {
	if c.rc == nil {
		return errNilClient
	}
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = c.Key(name)
	}
	if err := c.rc.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

// Exists checks whether a key exists
func (c *Cache[T]) Exists(ctx context.Context, name string) (bool, error) {
	if c.rc == nil {
		return false, errNilClient
	}
	n, err := c.rc.Exists(ctx, c.Key(name)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cache: %w", err)
	}
	return n > 0, nil
}

func decode[T any](result string, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}
	var row T
	if err := json.Unmarshal([]byte(result), &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &row, nil
}

func expiration(expire []time.Duration) time.Duration {
	if len(expire) > 0 {
		return expire[0]
	}
	return 0
}
