package goSession

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goSession/codec"
	"github.com/MrEthical07/goSession/container"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/payload"
)

// maxIDAttempts bounds CreateSessionID when generated ids keep colliding.
const maxIDAttempts = 16

// HandlerOptions wires a Handler. Provider and Codec are required.
type HandlerOptions struct {
	Provider   container.Provider
	Codec      codec.Codec
	Serializer payload.Serializer

	// Headers collects outgoing cookies and exposes request cookies to containers.
	Headers *HeaderAccumulator
	// Out receives the deduplicated Set-Cookie values at Close.
	Out http.Header

	Cookie         CookieConfig
	DataCookieName string
	// SecureCookies is the resolved Secure attribute for this request.
	SecureCookies bool

	Clock     func() time.Time
	NewID     func() (string, error)
	Logger    zerolog.Logger
	Metrics   *Metrics
	Audit     AuditSink
	RequestID string
	Backend   string
}

// Handler implements the session handler protocol for one request at a time. It is not
// safe for concurrent use; create one per request and reuse it only after Close.
type Handler struct {
	opts HandlerOptions
	log  zerolog.Logger

	name     string
	c        container.Container
	stamper  container.PayloadStamper
	st       sessionState
	fatal    bool
	openedAt time.Time
}

// NewHandler builds a handler from opts.
func NewHandler(opts HandlerOptions) *Handler {
	if opts.Serializer == nil {
		opts.Serializer = payload.NewJSON()
	}
	if opts.Headers == nil {
		opts.Headers = NewHeaderAccumulator(nil)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = internal.NewSessionID
	}
	if opts.Audit == nil {
		opts.Audit = NoOpSink{}
	}
	if opts.Cookie.Path == "" {
		opts.Cookie.Path = "/"
	}
	opts.Headers.metrics = opts.Metrics
	return &Handler{
		opts: opts,
		log:  opts.Logger.With().Str("component", "gosession.handler").Str("request_id", opts.RequestID).Logger(),
	}
}

// State returns the current lifecycle state.
func (h *Handler) State() State { return h.st.state }

// SessionID returns the id associated with the current request, if any.
func (h *Handler) SessionID() string { return h.st.sessionID }

// Found reports whether ValidateID located a live record for the current id.
func (h *Handler) Found() bool { return h.st.found == foundYes }

// Headers returns the accumulator shared with containers.
func (h *Handler) Headers() *HeaderAccumulator { return h.opts.Headers }

func (h *Handler) open() bool {
	return h.c != nil && h.st.state != StateUnopened && h.st.state != StateClosed
}

func (h *Handler) fail(ctx context.Context, err error) error {
	h.fatal = true
	h.opts.Metrics.Inc(MetricBackendFailure)
	var e *Error
	if errors.As(err, &e) && e.Kind == ErrorKindPayloadTooLarge {
		h.opts.Metrics.Inc(MetricPayloadTooLarge)
	}
	h.log.Error().Err(err).Str("session", internal.Fingerprint(h.st.sessionID)).Msg("session operation failed")
	h.emit(ctx, AuditBackendFailure, h.st.sessionID, err)
	return err
}

func (h *Handler) emit(ctx context.Context, eventType, id string, err error) {
	ev := AuditEvent{
		Timestamp: h.st.now,
		EventType: eventType,
		RequestID: h.opts.RequestID,
		SessionID: internal.Fingerprint(id),
		Backend:   h.opts.Backend,
		Success:   err == nil,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.opts.Clock()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	h.opts.Audit.Emit(ctx, ev)
}

// Open captures the request time, acquires a container and initializes it.
func (h *Handler) Open(ctx context.Context, savePath, name string) (bool, error) {
	if h.st.state != StateUnopened {
		return false, &Error{Kind: ErrorKindBackend, Op: "open", Err: errors.New("handler already open")}
	}
	h.st.reset()
	h.fatal = false
	h.st.now = h.opts.Clock()
	h.name = name

	c := h.opts.Provider.NewContainer()
	err := c.Init(ctx, container.InitParams{
		SavePath:      savePath,
		Name:          name,
		Now:           h.st.now,
		Cookies:       h.opts.Headers,
		SecureCookies: h.opts.SecureCookies,
	})
	if err != nil {
		_ = c.Close()
		return false, h.fail(ctx, backendErr("open", err))
	}
	h.c = c
	h.stamper, _ = stamperOf(c)
	h.st.state = StateValidating
	h.openedAt = time.Now()
	h.opts.Metrics.Inc(MetricOpen)
	return true, nil
}

// lookup fetches and decrypts id. Undecryptable and stale stamped payloads are misses.
func (h *Handler) lookup(ctx context.Context, id string) ([]byte, bool, error) {
	raw, ok, err := h.c.Get(ctx, id)
	if err != nil {
		return nil, false, backendErr("validate_id", err)
	}
	if !ok {
		return nil, false, nil
	}
	plain, err := h.opts.Codec.Decrypt(raw)
	if err != nil {
		if decryptMiss(err) {
			h.log.Warn().Err(err).Str("session", internal.Fingerprint(id)).Msg("stored payload failed to decrypt, treating as missing")
			return nil, false, nil
		}
		return nil, false, codecErr("validate_id", err)
	}
	if h.stamper != nil && !h.stamper.PayloadLive(plain, h.st.now) {
		return nil, false, nil
	}
	return plain, true, nil
}

// ValidateID reports whether a live record exists for id. A miss is never an error.
func (h *Handler) ValidateID(ctx context.Context, id string) (bool, error) {
	if !h.open() {
		return false, ErrNotOpen
	}
	plain, ok, err := h.lookup(ctx, id)
	if err != nil {
		return false, h.fail(ctx, err)
	}

	if ok {
		h.opts.Metrics.Inc(MetricValidateHit)
		if !h.st.regenerating {
			h.st.sessionID = id
			h.st.cachedPayload = plain
			h.st.found = foundYes
			h.st.state = StateFound
		}
		return true, nil
	}

	h.opts.Metrics.Inc(MetricValidateMiss)
	if !h.st.regenerating {
		h.clearIdentityCookies()
		h.st.found = foundNo
		h.st.state = StateNotFound
	}
	return false, nil
}

// CreateSessionID deletes the previously associated id, then generates ids until one
// is not in use.
func (h *Handler) CreateSessionID(ctx context.Context) (string, error) {
	if !h.open() {
		return "", ErrNotOpen
	}
	prior := h.st.sessionID
	if prior != "" {
		if _, err := h.c.Delete(ctx, prior); err != nil {
			return "", h.fail(ctx, backendErr("create_sid", err))
		}
	}

	h.st.regenerating = true
	defer func() { h.st.regenerating = false }()

	var id string
	for attempt := 0; ; attempt++ {
		if attempt == maxIDAttempts {
			return "", h.fail(ctx, &Error{Kind: ErrorKindBackend, Op: "create_sid", Err: ErrIDSpaceExhausted})
		}
		candidate, err := h.opts.NewID()
		if err != nil {
			return "", h.fail(ctx, &Error{Kind: ErrorKindBackend, Op: "create_sid", Err: err})
		}
		hit, err := h.ValidateID(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !hit {
			id = candidate
			break
		}
		h.opts.Metrics.Inc(MetricIDCollision)
		h.log.Warn().Str("session", internal.Fingerprint(candidate)).Msg("generated session id collided")
	}

	h.st.sessionID = id
	if h.st.found == foundUnknown {
		h.st.found = foundNo
		h.st.state = StateNotFound
	}
	h.opts.Metrics.Inc(MetricIDCreated)
	if prior != "" {
		h.emit(ctx, AuditSessionRegenerated, id, nil)
	} else {
		h.emit(ctx, AuditSessionCreated, id, nil)
	}
	return id, nil
}

// Read returns the payload cached by ValidateID. It performs no I/O.
func (h *Handler) Read(id string) ([]byte, error) {
	if !h.open() {
		return nil, ErrNotOpen
	}
	if h.st.sessionID == "" {
		h.st.sessionID = id
	}
	h.st.state = StateActive
	if len(h.st.cachedPayload) == 0 {
		return []byte{}, nil
	}
	return append([]byte(nil), h.st.cachedPayload...), nil
}

// elide reports whether writing data would persist an empty, never-stored session.
func (h *Handler) elide(data []byte) bool {
	return len(h.st.cachedPayload) == 0 && h.opts.Serializer.IsEmpty(data)
}

func (h *Handler) seal(op string, data []byte) ([]byte, error) {
	plain := data
	if h.stamper != nil {
		stamped, err := h.stamper.StampPayload(data, h.st.now)
		if err != nil {
			return nil, codecErr(op, err)
		}
		plain = stamped
	}
	enc, err := h.opts.Codec.Encrypt(plain)
	if err != nil {
		return nil, codecErr(op, err)
	}
	return enc, nil
}

// Write persists data for id unless it is an empty session that was never stored.
func (h *Handler) Write(ctx context.Context, id string, data []byte) (bool, error) {
	if !h.open() {
		return false, ErrNotOpen
	}
	if h.elide(data) {
		h.clearIdentityCookies()
		h.opts.Metrics.Inc(MetricWriteElided)
		return true, nil
	}

	enc, err := h.seal("write", data)
	if err != nil {
		return false, h.fail(ctx, err)
	}
	ok, err := h.c.Set(ctx, id, enc)
	if err != nil {
		return false, h.fail(ctx, backendErr("write", err))
	}
	if ok {
		h.st.timestampUpdated = true
	}
	h.st.sessionID = id
	h.st.cachedPayload = append([]byte(nil), data...)
	h.opts.Metrics.Inc(MetricWrite)
	return ok, nil
}

// UpdateTimestamp refreshes the last-access time of id without changing its payload.
// A record that vanished since ValidateID is rewritten.
func (h *Handler) UpdateTimestamp(ctx context.Context, id string, data []byte) (bool, error) {
	if !h.open() {
		return false, ErrNotOpen
	}
	if h.elide(data) {
		h.clearIdentityCookies()
		h.opts.Metrics.Inc(MetricWriteElided)
		return true, nil
	}

	enc, err := h.seal("update_timestamp", data)
	if err != nil {
		return false, h.fail(ctx, err)
	}
	ok, err := h.c.Touch(ctx, id, enc)
	if err != nil {
		return false, h.fail(ctx, backendErr("update_timestamp", err))
	}
	h.opts.Metrics.Inc(MetricTouch)
	if !ok {
		if ok, err = h.c.Set(ctx, id, enc); err != nil {
			return false, h.fail(ctx, backendErr("update_timestamp", err))
		}
		h.opts.Metrics.Inc(MetricWrite)
	}
	h.st.timestampUpdated = true
	h.st.sessionID = id
	h.st.cachedPayload = append([]byte(nil), data...)
	return ok, nil
}

// GC asks the container to drop records idle for longer than maxLifetime.
func (h *Handler) GC(ctx context.Context, maxLifetime time.Duration) (bool, error) {
	if !h.open() {
		return false, ErrNotOpen
	}
	ok, err := h.c.GC(ctx, maxLifetime)
	if err != nil {
		return false, h.fail(ctx, backendErr("gc", err))
	}
	h.opts.Metrics.Inc(MetricGC)
	h.emit(ctx, AuditSessionGC, "", nil)
	return ok, nil
}

// Destroy expires the identity cookies and deletes the record for id.
func (h *Handler) Destroy(ctx context.Context, id string) (bool, error) {
	if !h.open() {
		return false, ErrNotOpen
	}
	h.clearIdentityCookies()
	ok, err := h.c.Delete(ctx, id)
	if err != nil {
		return false, h.fail(ctx, backendErr("destroy", err))
	}
	h.st.cachedPayload = nil
	h.st.found = foundNo
	h.st.timestampUpdated = false
	h.opts.Metrics.Inc(MetricDestroy)
	h.emit(ctx, AuditSessionDestroyed, id, nil)
	return ok, nil
}

// Close applies the read-only correction, flushes cookie headers once and releases the
// container. The handler returns to StateUnopened and may be opened again.
func (h *Handler) Close(ctx context.Context) (bool, error) {
	if !h.open() {
		return false, ErrNotOpen
	}
	h.st.state = StateClosed

	var firstErr error
	if !h.fatal && h.st.found == foundYes && !h.st.timestampUpdated && h.st.sessionID != "" {
		enc, err := h.seal("close", h.st.cachedPayload)
		if err == nil {
			_, err = h.c.Touch(ctx, h.st.sessionID, enc)
			if err != nil {
				err = backendErr("close", err)
			}
		}
		if err != nil {
			firstErr = h.fail(ctx, err)
		} else {
			h.st.timestampUpdated = true
			h.opts.Metrics.Inc(MetricReadOnlyTouch)
		}
	}

	if !h.fatal {
		if h.opts.Out != nil {
			h.opts.Headers.Flush(h.opts.Out)
		} else {
			h.opts.Headers.Flush(http.Header{})
		}
	}

	if err := h.c.Close(); err != nil && firstErr == nil {
		firstErr = h.fail(ctx, backendErr("close", err))
	}

	h.log.Debug().
		Str("session", internal.Fingerprint(h.st.sessionID)).
		Dur("elapsed", time.Since(h.openedAt)).
		Bool("fatal", h.fatal).
		Msg("session closed")

	h.c = nil
	h.stamper = nil
	h.st.reset()
	if firstErr != nil {
		return false, firstErr
	}
	return true, nil
}

// IssueIDCookie queues the identity cookie for id.
func (h *Handler) IssueIDCookie(id string) {
	c := h.baseCookie(h.name)
	c.Value = id
	if h.opts.Cookie.Lifetime > 0 {
		c.MaxAge = int(h.opts.Cookie.Lifetime / time.Second)
		c.Expires = h.opts.Clock().Add(h.opts.Cookie.Lifetime).UTC()
	}
	h.opts.Headers.SetCookie(c)
}

func (h *Handler) baseCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Path:     h.opts.Cookie.Path,
		Domain:   h.opts.Cookie.Domain,
		Secure:   h.opts.SecureCookies,
		HttpOnly: h.opts.Cookie.HTTPOnly,
		SameSite: h.opts.Cookie.SameSite,
	}
}

// clearIdentityCookies queues expired cookies for both the identity and data names.
func (h *Handler) clearIdentityCookies() {
	for _, name := range []string{h.name, h.opts.DataCookieName} {
		if name == "" {
			continue
		}
		c := h.baseCookie(name)
		c.MaxAge = -1
		c.Expires = time.Unix(1, 0).UTC()
		h.opts.Headers.SetCookie(c)
	}
}
