package middleware

import (
	"context"
	"net/http"
	"sync"

	goSession "github.com/MrEthical07/goSession"
)

// Mode selects how the middleware opens the session.
type Mode uint8

const (
	// ModeReadWrite loads or creates a session and commits it.
	ModeReadWrite Mode = iota
	// ModeReadOnly loads an existing session and closes it immediately.
	ModeReadOnly
)

type sessionContextKey struct{}

// FromContext returns the session stored by the middleware. In read-only mode it is
// absent when the request carried no live identity.
func FromContext(ctx context.Context) (*goSession.Session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*goSession.Session)
	return s, ok && s != nil
}

// Session returns middleware that starts a session for every request.
func Session(m *goSession.Manager, mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				unavailable(w)
				return
			}

			if mode == ModeReadOnly {
				s, ok, err := m.StartReadOnly(r.Context(), w, r)
				if err != nil {
					m.Logger().Error().Err(err).Msg("session start failed")
					unavailable(w)
					return
				}
				ctx := r.Context()
				if ok {
					ctx = context.WithValue(ctx, sessionContextKey{}, s)
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			s, err := m.Start(r.Context(), w, r)
			if err != nil {
				m.Logger().Error().Err(err).Msg("session start failed")
				unavailable(w)
				return
			}

			cw := &commitWriter{ResponseWriter: w, ctx: r.Context(), s: s, m: m}
			ctx := context.WithValue(r.Context(), sessionContextKey{}, s)
			next.ServeHTTP(cw, r.WithContext(ctx))

			if !cw.commit() && !cw.wrote {
				unavailable(w)
			}
		})
	}
}

// ReadOnly is Session(m, ModeReadOnly).
func ReadOnly(m *goSession.Manager) func(http.Handler) http.Handler {
	return Session(m, ModeReadOnly)
}

func unavailable(w http.ResponseWriter) {
	http.Error(w, "session unavailable", http.StatusInternalServerError)
}

// commitWriter commits the session before the first byte of the response so the
// identity cookie lands in the headers.
type commitWriter struct {
	http.ResponseWriter
	ctx context.Context
	s   *goSession.Session
	m   *goSession.Manager

	once   sync.Once
	ok     bool
	wrote  bool
	failed bool
}

// commit runs Commit once and reports whether it succeeded.
func (w *commitWriter) commit() bool {
	w.once.Do(func() {
		if err := w.s.Commit(w.ctx); err != nil {
			w.m.Logger().Error().Err(err).Msg("session commit failed")
			return
		}
		w.ok = true
	})
	return w.ok
}

func (w *commitWriter) WriteHeader(code int) {
	if !w.commit() {
		w.fail()
		return
	}
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	if !w.commit() {
		w.fail()
		return len(b), nil
	}
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

// fail answers 500 once and swallows the handler's own output.
func (w *commitWriter) fail() {
	if w.failed {
		return
	}
	w.failed = true
	w.wrote = true
	unavailable(w.ResponseWriter)
}

// Flush commits before flushing buffered output.
func (w *commitWriter) Flush() {
	if !w.commit() {
		w.fail()
		return
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		w.wrote = true
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *commitWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
