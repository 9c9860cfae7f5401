// Package redisstore keeps sessions in Redis under "<prefix><id>" keys with a native
// TTL equal to the session lifetime. GC is therefore a no-op.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/container"
)

// ErrRedisUnavailable wraps every Redis transport or server error.
var ErrRedisUnavailable = errors.New("redis unavailable")

// DefaultPrefix namespaces session keys.
const DefaultPrefix = "gosess:"

// Store is the Redis backend provider. The client is owned by the caller.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a [Store] backed by rdb. ttl is applied on every write and touch.
//
//	Performance: 1 Redis command per container operation.
func NewStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{redis: rdb, prefix: prefix, ttl: ttl}
}

func (s *Store) key(id string) string { return s.prefix + id }

// NewContainer implements container.Provider.
func (s *Store) NewContainer() container.Container {
	return &conn{store: s}
}

// Close is a no-op; the client belongs to the caller.
func (s *Store) Close() error { return nil }

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// Count scans the key space for live session keys. It is O(N) and meant for
// diagnostics, not request paths.
func (s *Store) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+"*", 512).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

type conn struct {
	store *Store
	ready bool
}

func (c *conn) Init(context.Context, container.InitParams) error {
	c.ready = true
	return nil
}

func (c *conn) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if !c.ready {
		return nil, false, container.ErrNotInitialized
	}
	data, err := c.store.redis.Get(ctx, c.store.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return data, true, nil
}

func (c *conn) Set(ctx context.Context, id string, payload []byte) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	if err := c.store.redis.Set(ctx, c.store.key(id), payload, c.store.ttl).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return true, nil
}

func (c *conn) Touch(ctx context.Context, id string, _ []byte) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	ok, err := c.store.redis.Expire(ctx, c.store.key(id), c.store.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ok, nil
}

// GC relies on native key expiry.
func (c *conn) GC(context.Context, time.Duration) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	return true, nil
}

func (c *conn) Delete(ctx context.Context, id string) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	if err := c.store.redis.Del(ctx, c.store.key(id)).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return true, nil
}

func (c *conn) Close() error {
	c.ready = false
	return nil
}
