package goSession

import (
	"bytes"
	"context"
	"maps"
	"sync"

	"github.com/MrEthical07/goSession/payload"
)

// Session is the application view of one request's session. It is safe for concurrent
// use by the goroutines serving that request.
type Session struct {
	mu sync.Mutex

	m *Manager
	h *Handler

	id       string
	values   payload.Values
	baseline []byte

	isNew       bool
	regenerated bool
	destroyed   bool
	readOnly    bool
	closed      bool
}

// ID returns the current session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// IsNew reports whether the id was created by this request.
func (s *Session) IsNew() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isNew
}

// ReadOnly reports whether the session was started with StartReadOnly.
func (s *Session) ReadOnly() bool { return s.readOnly }

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Values returns a shallow copy of the session values.
func (s *Session) Values() payload.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

func (s *Session) writable() error {
	if s.readOnly {
		return ErrReadOnly
	}
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// Set stores value under key. It fails on a read-only or committed session.
func (s *Session) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	if s.values == nil {
		s.values = payload.Values{}
	}
	s.values[key] = value
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Session) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	delete(s.values, key)
	return nil
}

// Regenerate moves the session to a fresh id, deleting the old record. The values are
// written under the new id at Commit.
func (s *Session) Regenerate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	id, err := s.h.CreateSessionID(ctx)
	if err != nil {
		s.fail(ctx)
		return err
	}
	s.h.IssueIDCookie(id)
	s.id = id
	s.regenerated = true
	return nil
}

// Destroy deletes the record and expires the identity cookie. Commit then only closes.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	if _, err := s.h.Destroy(ctx, s.id); err != nil {
		s.fail(ctx)
		return err
	}
	s.values = payload.Values{}
	s.destroyed = true
	return nil
}

// Commit persists the session and flushes its cookies. Changed or regenerated sessions
// are written; unchanged ones only have their timestamp refreshed. Commit on a closed
// or read-only session is a no-op.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	if !s.destroyed {
		data, err := s.m.serializer.Encode(s.values)
		if err != nil {
			s.fail(ctx)
			return codecErr("write", err)
		}
		if s.regenerated || !bytes.Equal(data, s.baseline) {
			_, err = s.h.Write(ctx, s.id, data)
		} else {
			_, err = s.h.UpdateTimestamp(ctx, s.id, data)
		}
		if err != nil {
			s.fail(ctx)
			return err
		}
	}

	s.closed = true
	_, err := s.h.Close(ctx)
	return err
}

// Abort releases the session without persisting anything or flushing cookies.
func (s *Session) Abort(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fail(ctx)
}

func (s *Session) fail(ctx context.Context) {
	s.closed = true
	s.m.abort(ctx, s.h)
}
