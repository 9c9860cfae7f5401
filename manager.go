package goSession

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/goSession/codec"
	"github.com/MrEthical07/goSession/container"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/payload"
)

// RequestIDHeader is read for the audit request id; a uuid is generated when absent.
const RequestIDHeader = "X-Request-ID"

// Manager owns the backend provider and per-process collaborators, and hands out one
// Handler per request. It is safe for concurrent use.
type Manager struct {
	cfg        Config
	provider   container.Provider
	codec      codec.Codec
	serializer payload.Serializer
	metrics    *Metrics
	audit      *auditDispatcher
	logger     zerolog.Logger
	clock      func() time.Time
	newID      func() (string, error)
	gcRoll     func() float64
	backend    string

	closeOnce sync.Once
	closeErr  error
}

// Config returns a copy of the configuration the Manager was built with.
func (m *Manager) Config() Config { return cloneConfig(m.cfg) }

// Metrics returns the live counters. The result may be disabled but is never nil.
func (m *Manager) Metrics() *Metrics { return m.metrics }

// Logger returns the Manager's logger. Callers must not reconfigure it.
func (m *Manager) Logger() *zerolog.Logger { return &m.logger }

// Serializer returns the payload serializer.
func (m *Manager) Serializer() payload.Serializer { return m.serializer }

// MetricsSnapshot copies the current counters. Exporters read this on each scrape.
func (m *Manager) MetricsSnapshot() MetricsSnapshot { return m.metrics.Snapshot() }

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (m *Manager) AuditDropped() uint64 { return m.audit.Dropped() }

// NewHandler returns a coordinator for one request. Cookies are read from r (which may
// be nil for background work) and flushed into out at Close.
func (m *Manager) NewHandler(r *http.Request, out http.Header) *Handler {
	return NewHandler(HandlerOptions{
		Provider:       m.provider,
		Codec:          m.codec,
		Serializer:     m.serializer,
		Headers:        NewHeaderAccumulator(r),
		Out:            out,
		Cookie:         m.cfg.Cookie,
		DataCookieName: m.cfg.Session.DataCookieName,
		SecureCookies:  m.secureFor(r),
		Clock:          m.clock,
		NewID:          m.newID,
		Logger:         m.logger,
		Metrics:        m.metrics,
		Audit:          m.audit,
		RequestID:      requestID(r),
		Backend:        m.backend,
	})
}

func requestID(r *http.Request) string {
	if r != nil {
		if id := r.Header.Get(RequestIDHeader); id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// secureFor resolves the Secure attribute. SecureAuto is secure unless the host
// contains "localhost".
func (m *Manager) secureFor(r *http.Request) bool {
	switch m.cfg.Cookie.Secure {
	case SecureAlways:
		return true
	case SecureNever:
		return false
	}
	if r == nil {
		return true
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return !strings.Contains(strings.ToLower(host), "localhost")
}

func (m *Manager) shouldGC() bool {
	p := m.cfg.Session.GCProbability
	return p > 0 && m.gcRoll() < p
}

// Start opens the session for r. A missing, malformed or expired identity yields a new
// id whose cookie is queued on w. The returned Session must be committed.
func (m *Manager) Start(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	h := m.NewHandler(r, w.Header())
	if _, err := h.Open(ctx, m.cfg.Session.SavePath, m.cfg.Session.Name); err != nil {
		return nil, err
	}

	id, found, err := m.validateIncoming(ctx, h)
	if err != nil {
		m.abort(ctx, h)
		return nil, err
	}

	isNew := false
	if !found {
		if id, err = h.CreateSessionID(ctx); err != nil {
			m.abort(ctx, h)
			return nil, err
		}
		h.IssueIDCookie(id)
		isNew = true
	}

	if m.shouldGC() {
		if _, err := h.GC(ctx, m.cfg.Session.MaxLifetime); err != nil {
			m.abort(ctx, h)
			return nil, err
		}
	}

	s, err := m.load(h, id)
	if err != nil {
		m.abort(ctx, h)
		return nil, err
	}
	s.isNew = isNew
	return s, nil
}

// StartReadOnly loads an existing session and closes it immediately. It returns
// (nil, false, nil) when the request carries no live identity. Closing applies the
// read-only correction, so the record stays alive under read traffic.
func (m *Manager) StartReadOnly(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, bool, error) {
	h := m.NewHandler(r, w.Header())
	if _, ok := h.Headers().Cookie(m.cfg.Session.Name); !ok {
		return nil, false, nil
	}
	if _, err := h.Open(ctx, m.cfg.Session.SavePath, m.cfg.Session.Name); err != nil {
		return nil, false, err
	}

	id, found, err := m.validateIncoming(ctx, h)
	if err != nil {
		m.abort(ctx, h)
		return nil, false, err
	}
	if !found {
		if _, err := h.Close(ctx); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	s, err := m.load(h, id)
	if err != nil {
		m.abort(ctx, h)
		return nil, false, err
	}
	if _, err := h.Close(ctx); err != nil {
		return nil, false, err
	}
	s.readOnly = true
	s.closed = true
	return s, true, nil
}

// validateIncoming checks the request's identity cookie. Malformed ids are never sent
// to the backend.
func (m *Manager) validateIncoming(ctx context.Context, h *Handler) (string, bool, error) {
	id, ok := h.Headers().Cookie(m.cfg.Session.Name)
	if !ok || !internal.WellFormedSessionID(id) {
		return "", false, nil
	}
	found, err := h.ValidateID(ctx, id)
	if err != nil {
		return "", false, err
	}
	return id, found, nil
}

func (m *Manager) load(h *Handler, id string) (*Session, error) {
	raw, err := h.Read(id)
	if err != nil {
		return nil, err
	}
	values, err := m.serializer.Decode(raw)
	if err != nil {
		return nil, codecErr("read", err)
	}
	baseline, err := m.serializer.Encode(values)
	if err != nil {
		return nil, codecErr("read", err)
	}
	return &Session{
		m:        m,
		h:        h,
		id:       id,
		values:   values,
		baseline: baseline,
	}, nil
}

// abort releases h after a fatal error. Headers are not flushed.
func (m *Manager) abort(ctx context.Context, h *Handler) {
	h.fatal = true
	if _, err := h.Close(ctx); err != nil {
		m.logger.Debug().Err(err).Msg("close after failure")
	}
}

// Close stops the audit dispatcher and closes the backend provider. Safe to call more
// than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.audit.Close()
		m.closeErr = m.provider.Close()
	})
	return m.closeErr
}
