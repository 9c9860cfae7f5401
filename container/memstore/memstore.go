// Package memstore keeps session records in process memory. It honors the full
// container contract, including lifetime-based expiry and gc, and is meant for
// development, single-process deployments and tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/container"
)

type record struct {
	payload      []byte
	lastAccessed time.Time
}

// Store is the shared record map.
type Store struct {
	mu          sync.RWMutex
	records     map[string]record
	maxLifetime time.Duration
}

// New creates an empty store whose records expire maxLifetime after their last access.
func New(maxLifetime time.Duration) *Store {
	return &Store{
		records:     make(map[string]record),
		maxLifetime: maxLifetime,
	}
}

// NewContainer implements container.Provider.
func (s *Store) NewContainer() container.Container {
	return &conn{store: s}
}

// Close drops every record.
func (s *Store) Close() error {
	s.mu.Lock()
	s.records = make(map[string]record)
	s.mu.Unlock()
	return nil
}

// Put seeds a record with an explicit last-access time.
func (s *Store) Put(id string, payload []byte, lastAccessed time.Time) {
	s.mu.Lock()
	s.records[id] = record{payload: append([]byte(nil), payload...), lastAccessed: lastAccessed}
	s.mu.Unlock()
}

// Len returns the number of stored records, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Raw returns the stored bytes for id regardless of expiry.
func (s *Store) Raw(id string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), r.payload...), true
}

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
	c.store.mu.RLock()
	r, ok := c.store.records[id]
	c.store.mu.RUnlock()
	if !ok || !container.Live(r.lastAccessed, c.now, c.store.maxLifetime) {
		return nil, false, nil
	}
	return append([]byte(nil), r.payload...), true, nil
}

func (c *conn) Set(_ context.Context, id string, payload []byte) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	c.store.Put(id, payload, c.now)
	return true, nil
}

func (c *conn) Touch(_ context.Context, id string, _ []byte) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	r, ok := c.store.records[id]
	if !ok {
		return false, nil
	}
	r.lastAccessed = c.now
	c.store.records[id] = r
	return true, nil
}

func (c *conn) GC(_ context.Context, maxLifetime time.Duration) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	for id, r := range c.store.records {
		if !container.Live(r.lastAccessed, c.now, maxLifetime) {
			delete(c.store.records, id)
		}
	}
	return true, nil
}

func (c *conn) Delete(_ context.Context, id string) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	c.store.mu.Lock()
	delete(c.store.records, id)
	c.store.mu.Unlock()
	return true, nil
}

func (c *conn) Close() error {
	c.ready = false
	return nil
}
