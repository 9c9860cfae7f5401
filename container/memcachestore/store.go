// Package memcachestore keeps sessions in memcached with a native expiration equal to
// the session lifetime. GC is a no-op.
package memcachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/MrEthical07/goSession/container"
)

// ErrMemcacheUnavailable wraps every memcached failure other than a miss.
var ErrMemcacheUnavailable = errors.New("memcache unavailable")

// DefaultPrefix namespaces session keys.
const DefaultPrefix = "gosess:"

// MaxRelativeExpiration is the largest expiration memcached reads as seconds from now.
// Anything larger is taken as an absolute Unix time.
const MaxRelativeExpiration = 30 * 24 * time.Hour

// Client is the subset of *memcache.Client the store uses.
type Client interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Touch(key string, seconds int32) error
	Delete(key string) error
}

// Config configures a memcached-backed store built by [Dial].
type Config struct {
	Servers     []string
	Prefix      string
	Timeout     time.Duration
	MaxLifetime time.Duration
}

// Store is the memcached backend provider.
type Store struct {
	client Client
	prefix string
	ttl    time.Duration
}

// Dial builds a memcache client for cfg.Servers.
func Dial(cfg Config) *Store {
	mc := memcache.New(cfg.Servers...)
	if cfg.Timeout > 0 {
		mc.Timeout = cfg.Timeout
	}
	return New(mc, cfg.Prefix, cfg.MaxLifetime)
}

// New wraps an existing client.
func New(client Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// expiration encodes the lifetime the way memcached expects it relative to now.
func (s *Store) expiration(now time.Time) int32 {
	if s.ttl > MaxRelativeExpiration {
		return int32(now.Add(s.ttl).Unix())
	}
	return int32(s.ttl / time.Second)
}

func (s *Store) key(id string) string { return s.prefix + id }

// NewContainer implements container.Provider.
func (s *Store) NewContainer() container.Container {
	return &conn{store: s}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

type conn struct {
	store *Store
	now   time.Time
	ready bool
}

func (c *conn) Init(_ context.Context, p container.InitParams) error {
	c.now = p.Now
	if c.now.IsZero() {
		c.now = time.Now()
	}
	c.ready = true
	return nil
}

func (c *conn) Get(_ context.Context, id string) ([]byte, bool, error) {
	if !c.ready {
		return nil, false, container.ErrNotInitialized
	}
	it, err := c.store.client.Get(c.store.key(id))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMemcacheUnavailable, err)
	}
	return it.Value, true, nil
}

func (c *conn) Set(_ context.Context, id string, payload []byte) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	err := c.store.client.Set(&memcache.Item{
		Key:        c.store.key(id),
		Value:      payload,
		Expiration: c.store.expiration(c.now),
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMemcacheUnavailable, err)
	}
	return true, nil
}

func (c *conn) Touch(_ context.Context, id string, _ []byte) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	err := c.store.client.Touch(c.store.key(id), c.store.expiration(c.now))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMemcacheUnavailable, err)
	}
	return true, nil
}

// GC relies on native expiration.
func (c *conn) GC(context.Context, time.Duration) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	return true, nil
}

func (c *conn) Delete(_ context.Context, id string) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	err := c.store.client.Delete(c.store.key(id))
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return false, fmt.Errorf("%w: %v", ErrMemcacheUnavailable, err)
	}
	return true, nil
}

func (c *conn) Close() error {
	c.ready = false
	return nil
}
