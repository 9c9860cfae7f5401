package goSession

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/codec"
	"github.com/MrEthical07/goSession/container"
	"github.com/MrEthical07/goSession/container/containertest"
	"github.com/MrEthical07/goSession/container/cookiestore"
	"github.com/MrEthical07/goSession/container/memstore"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/payload"
)

var testNow = time.Unix(1_700_000_000, 0)

func testID(c byte) string { return strings.Repeat(string(c), 64) }

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, e AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type handlerFixture struct {
	t       *testing.T
	store   *memstore.Store
	rec     *containertest.Recorder
	codec   codec.Codec
	metrics *Metrics
	sink    *recordingSink
	out     http.Header
	now     time.Time
	ids     []string
	h       *Handler
}

func newHandlerFixture(t *testing.T, maxLifetime time.Duration) *handlerFixture {
	t.Helper()
	cd, err := codec.NewAESCBC(bytes.Repeat([]byte{7}, 32), bytes.Repeat([]byte{9}, 16))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	store := memstore.New(maxLifetime)
	f := &handlerFixture{
		t:       t,
		store:   store,
		rec:     containertest.NewRecorder(store),
		codec:   cd,
		metrics: NewMetrics(MetricsConfig{Enabled: true}),
		sink:    &recordingSink{},
		now:     testNow,
	}
	f.reset(nil)
	return f
}

// reset starts a new request against the same store.
func (f *handlerFixture) reset(r *http.Request) {
	f.out = http.Header{}
	f.h = NewHandler(HandlerOptions{
		Provider:       f.rec,
		Codec:          f.codec,
		Headers:        NewHeaderAccumulator(r),
		Out:            f.out,
		Cookie:         CookieConfig{Path: "/", HTTPOnly: true, SameSite: http.SameSiteStrictMode},
		DataCookieName: "GOSESSDATA",
		Clock:          func() time.Time { return f.now },
		NewID:          f.nextID,
		Metrics:        f.metrics,
		Audit:          f.sink,
		Backend:        "memory",
	})
}

func (f *handlerFixture) nextID() (string, error) {
	if len(f.ids) == 0 {
		return internal.NewSessionID()
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

func (f *handlerFixture) seed(id, plain string, lastAccessed time.Time) {
	f.t.Helper()
	enc, err := f.codec.Encrypt([]byte(plain))
	if err != nil {
		f.t.Fatalf("encrypt: %v", err)
	}
	f.store.Put(id, enc, lastAccessed)
}

func (f *handlerFixture) open() {
	f.t.Helper()
	if _, err := f.h.Open(context.Background(), "", "GOSESSID"); err != nil {
		f.t.Fatalf("Open: %v", err)
	}
}

func TestFreshVisitorGetsNewID(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	ctx := context.Background()
	f.open()

	id, err := f.h.CreateSessionID(ctx)
	if err != nil {
		t.Fatalf("CreateSessionID: %v", err)
	}
	if !internal.WellFormedSessionID(id) {
		t.Fatalf("generated id is not well formed: %q", id)
	}
	if f.h.State() != StateNotFound || f.h.Found() {
		t.Fatalf("expected not found state, got %s", f.h.State())
	}

	data, err := f.h.Read(id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty payload, got %q", data)
	}
	if f.h.State() != StateActive {
		t.Fatalf("expected active after read, got %s", f.h.State())
	}
	if got := f.sink.types(); len(got) != 1 || got[0] != AuditSessionCreated {
		t.Fatalf("expected one session_created event, got %v", got)
	}
}

func TestReturningVisitorIsFound(t *testing.T) {
	f := newHandlerFixture(t, 1800*time.Second)
	ctx := context.Background()
	id := testID('a')
	f.seed(id, `{"user":"alice"}`, testNow.Add(-60*time.Second))
	f.open()

	found, err := f.h.ValidateID(ctx, id)
	if err != nil {
		t.Fatalf("ValidateID: %v", err)
	}
	if !found || f.h.State() != StateFound {
		t.Fatalf("expected found, got %v/%s", found, f.h.State())
	}

	data, err := f.h.Read(id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != `{"user":"alice"}` {
		t.Fatalf("unexpected payload %q", data)
	}
	if f.metrics.Value(MetricValidateHit) != 1 {
		t.Fatalf("expected one validate hit, got %d", f.metrics.Value(MetricValidateHit))
	}
}

func TestExpiredVisitorIsNotFound(t *testing.T) {
	f := newHandlerFixture(t, 1800*time.Second)
	ctx := context.Background()
	id := testID('a')
	f.seed(id, `{"user":"alice"}`, testNow.Add(-3600*time.Second))
	f.open()

	found, err := f.h.ValidateID(ctx, id)
	if err != nil {
		t.Fatalf("a miss must not be an error: %v", err)
	}
	if found || f.h.State() != StateNotFound {
		t.Fatalf("expected not found, got %v/%s", found, f.h.State())
	}

	pending := f.h.Headers().Pending()
	if len(pending) != 2 {
		t.Fatalf("expected identity and data cookies to be cleared, got %v", pending)
	}
	for _, v := range pending {
		if !strings.Contains(v, "Max-Age=0") {
			t.Fatalf("expected expired cookie, got %q", v)
		}
	}
}

func TestUndecryptablePayloadIsAMiss(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	id := testID('b')
	f.store.Put(id, []byte("garbage"), testNow)
	f.open()

	found, err := f.h.ValidateID(context.Background(), id)
	if err != nil {
		t.Fatalf("decrypt failure must not be fatal: %v", err)
	}
	if found {
		t.Fatal("expected undecryptable record to be treated as missing")
	}
}

func TestWriteElidedForEmptyNewSession(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	ctx := context.Background()
	f.open()

	id, err := f.h.CreateSessionID(ctx)
	if err != nil {
		t.Fatalf("CreateSessionID: %v", err)
	}
	f.h.IssueIDCookie(id)
	if _, err := f.h.Read(id); err != nil {
		t.Fatalf("Read: %v", err)
	}

	ok, err := f.h.Write(ctx, id, []byte("{}"))
	if err != nil || !ok {
		t.Fatalf("Write: %v %v", ok, err)
	}
	ok, err = f.h.UpdateTimestamp(ctx, id, []byte(""))
	if err != nil || !ok {
		t.Fatalf("UpdateTimestamp: %v %v", ok, err)
	}
	if _, err := f.h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if n := f.rec.Count(containertest.OpSet); n != 0 {
		t.Fatalf("expected zero Set calls, got %d", n)
	}
	if n := f.rec.Count(containertest.OpTouch); n != 0 {
		t.Fatalf("expected zero Touch calls, got %d", n)
	}
	if f.store.Len() != 0 {
		t.Fatalf("expected no stored records, got %d", f.store.Len())
	}
	if f.metrics.Value(MetricWriteElided) != 2 {
		t.Fatalf("expected two elided writes, got %d", f.metrics.Value(MetricWriteElided))
	}

	cookies := (&http.Response{Header: f.out}).Cookies()
	for _, c := range cookies {
		if c.Name == "GOSESSID" && c.MaxAge >= 0 {
			t.Fatalf("identity cookie for an empty session must be expired, got %+v", c)
		}
	}
}

func TestWriteStoresCiphertext(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	ctx := context.Background()
	f.open()

	id, err := f.h.CreateSessionID(ctx)
	if err != nil {
		t.Fatalf("CreateSessionID: %v", err)
	}
	plain := []byte(`{"cart":3}`)
	if ok, err := f.h.Write(ctx, id, plain); err != nil || !ok {
		t.Fatalf("Write: %v %v", ok, err)
	}

	raw, ok := f.store.Raw(id)
	if !ok {
		t.Fatal("expected stored record")
	}
	if bytes.Contains(raw, []byte("cart")) {
		t.Fatalf("payload stored in the clear: %q", raw)
	}
	got, err := f.codec.Decrypt(raw)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestReadOnlyCorrectionTouchesOnce(t *testing.T) {
	f := newHandlerFixture(t, 1800*time.Second)
	ctx := context.Background()
	id := testID('a')
	f.seed(id, `{"user":"alice"}`, testNow.Add(-60*time.Second))
	f.open()

	if found, err := f.h.ValidateID(ctx, id); err != nil || !found {
		t.Fatalf("ValidateID: %v %v", found, err)
	}
	if _, err := f.h.Read(id); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, err := f.h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if n := f.rec.Count(containertest.OpTouch); n != 1 {
		t.Fatalf("expected exactly one Touch at close, got %d", n)
	}
	if n := f.rec.Count(containertest.OpSet); n != 0 {
		t.Fatalf("expected no Set, got %d", n)
	}

	// Without the touch the record would have expired at testNow+1740s.
	f.now = testNow.Add(1790 * time.Second)
	f.reset(nil)
	f.open()
	if found, err := f.h.ValidateID(ctx, id); err != nil || !found {
		t.Fatalf("expected touched record to stay live: %v %v", found, err)
	}
}

func TestUpdateTimestampSuppressesCloseTouch(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	ctx := context.Background()
	id := testID('a')
	f.seed(id, `{"n":1}`, testNow.Add(-time.Minute))
	f.open()

	if _, err := f.h.ValidateID(ctx, id); err != nil {
		t.Fatalf("ValidateID: %v", err)
	}
	data, _ := f.h.Read(id)
	if _, err := f.h.UpdateTimestamp(ctx, id, data); err != nil {
		t.Fatalf("UpdateTimestamp: %v", err)
	}
	if _, err := f.h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := f.rec.Count(containertest.OpTouch); n != 1 {
		t.Fatalf("expected one Touch total, got %d", n)
	}
}

func TestUpdateTimestampRewritesVanishedRecord(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	ctx := context.Background()
	id := testID('a')
	f.seed(id, `{"n":1}`, testNow)
	f.open()

	if _, err := f.h.ValidateID(ctx, id); err != nil {
		t.Fatalf("ValidateID: %v", err)
	}
	data, _ := f.h.Read(id)
	_ = f.store.Close() // drops every record

	if ok, err := f.h.UpdateTimestamp(ctx, id, data); err != nil || !ok {
		t.Fatalf("UpdateTimestamp: %v %v", ok, err)
	}
	if n := f.rec.Count(containertest.OpSet); n != 1 {
		t.Fatalf("expected fallback Set, got %d", n)
	}
	if _, ok := f.store.Raw(id); !ok {
		t.Fatal("expected record to be rewritten")
	}
}

func TestCreateSessionIDRetriesOnCollision(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	ctx := context.Background()
	taken, free := testID('a'), testID('b')
	f.seed(taken, `{"owner":"someone"}`, testNow)
	f.ids = []string{taken, taken, free}
	f.open()

	id, err := f.h.CreateSessionID(ctx)
	if err != nil {
		t.Fatalf("CreateSessionID: %v", err)
	}
	if id != free {
		t.Fatalf("expected %q, got %q", free, id)
	}
	if n := f.metrics.Value(MetricIDCollision); n != 2 {
		t.Fatalf("expected 2 collisions, got %d", n)
	}
	if n := f.rec.Count(containertest.OpGet); n != 3 {
		t.Fatalf("expected 3 lookups, got %d", n)
	}
	if p := f.h.Headers().Pending(); len(p) != 0 {
		t.Fatalf("misses during id generation must not clear cookies, got %v", p)
	}
	if f.h.Found() {
		t.Fatal("a colliding record must not be adopted")
	}
}

func TestCreateSessionIDGivesUpAfterBoundedAttempts(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	taken := testID('a')
	f.seed(taken, `{}`, testNow)
	for i := 0; i < maxIDAttempts+1; i++ {
		f.ids = append(f.ids, taken)
	}
	f.open()

	_, err := f.h.CreateSessionID(context.Background())
	if !errors.Is(err, ErrIDSpaceExhausted) || !errors.Is(err, ErrBackendFailure) {
		t.Fatalf("expected exhausted backend error, got %v", err)
	}
}

func TestRegenerationDeletesPriorRecord(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	ctx := context.Background()
	oldID, newID := testID('a'), testID('c')
	f.seed(oldID, `{"user":"alice"}`, testNow)
	f.ids = []string{newID}
	f.open()

	if found, _ := f.h.ValidateID(ctx, oldID); !found {
		t.Fatal("expected prior record")
	}
	id, err := f.h.CreateSessionID(ctx)
	if err != nil {
		t.Fatalf("CreateSessionID: %v", err)
	}
	if id != newID || f.h.SessionID() != newID {
		t.Fatalf("expected new id %q, got %q", newID, id)
	}
	if _, ok := f.store.Raw(oldID); ok {
		t.Fatal("prior record must be deleted")
	}
	data, _ := f.h.Read(id)
	if ok, err := f.h.Write(ctx, id, data); err != nil || !ok {
		t.Fatalf("Write: %v %v", ok, err)
	}
	if _, ok := f.store.Raw(newID); !ok {
		t.Fatal("payload must move to the new id")
	}

	got := f.sink.types()
	if len(got) != 1 || got[0] != AuditSessionRegenerated {
		t.Fatalf("expected session_regenerated, got %v", got)
	}
	if f.sink.events[0].SessionID == newID {
		t.Fatal("audit events must carry a fingerprint, not the id")
	}
}

func TestDestroyClearsCookiesAndRecord(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	ctx := context.Background()
	id := testID('a')
	f.seed(id, `{"user":"alice"}`, testNow)
	f.open()

	if _, err := f.h.ValidateID(ctx, id); err != nil {
		t.Fatalf("ValidateID: %v", err)
	}
	if ok, err := f.h.Destroy(ctx, id); err != nil || !ok {
		t.Fatalf("Destroy: %v %v", ok, err)
	}
	if _, err := f.h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, ok := f.store.Raw(id); ok {
		t.Fatal("record must be deleted")
	}
	if n := f.rec.Count(containertest.OpTouch); n != 0 {
		t.Fatalf("destroyed sessions must not be touched, got %d", n)
	}
	names := map[string]int{}
	for _, c := range (&http.Response{Header: f.out}).Cookies() {
		names[c.Name] = c.MaxAge
	}
	if names["GOSESSID"] != -1 || names["GOSESSDATA"] != -1 {
		t.Fatalf("expected both cookies expired, got %v", f.out.Values("Set-Cookie"))
	}
}

func TestBackendFailureSkipsHeaderFlush(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	ctx := context.Background()
	f.rec.Fail(containertest.OpSet, errors.New("disk full"))
	f.open()

	id, err := f.h.CreateSessionID(ctx)
	if err != nil {
		t.Fatalf("CreateSessionID: %v", err)
	}
	f.h.IssueIDCookie(id)

	_, err = f.h.Write(ctx, id, []byte(`{"a":1}`))
	if !errors.Is(err, ErrBackendFailure) || !IsFatal(err) {
		t.Fatalf("expected fatal backend error, got %v", err)
	}
	var se *Error
	if !errors.As(err, &se) || se.Op != "write" || se.Kind != ErrorKindBackend {
		t.Fatalf("unexpected error shape: %#v", err)
	}

	if _, err := f.h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if v := f.out.Values("Set-Cookie"); len(v) != 0 {
		t.Fatalf("headers must not be flushed after a fatal error, got %v", v)
	}
	if f.metrics.Value(MetricBackendFailure) != 1 {
		t.Fatalf("expected one backend failure, got %d", f.metrics.Value(MetricBackendFailure))
	}
	got := f.sink.types()
	if got[len(got)-1] != AuditBackendFailure {
		t.Fatalf("expected backend_failure audit event, got %v", got)
	}
}

func TestPayloadTooLargeIsClassified(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	ctx := context.Background()
	f.rec.Fail(containertest.OpSet, container.ErrPayloadTooLarge)
	f.open()

	_, err := f.h.Write(ctx, testID('a'), []byte(`{"big":true}`))
	if !errors.Is(err, ErrPayloadTooLarge) || !errors.Is(err, container.ErrPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
	if f.metrics.Value(MetricPayloadTooLarge) != 1 {
		t.Fatalf("expected payload_too_large counter, got %d", f.metrics.Value(MetricPayloadTooLarge))
	}
}

func TestInitFailureIsFatal(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	f.rec.Fail(containertest.OpInit, errors.New("connection refused"))

	_, err := f.h.Open(context.Background(), "", "GOSESSID")
	if !errors.Is(err, ErrBackendFailure) {
		t.Fatalf("expected backend failure, got %v", err)
	}
	if f.h.State() != StateUnopened {
		t.Fatalf("expected unopened after failed open, got %s", f.h.State())
	}
}

func TestOperationsRequireOpen(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	ctx := context.Background()

	if _, err := f.h.ValidateID(ctx, testID('a')); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}
	if _, err := f.h.Close(ctx); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}

	f.open()
	if _, err := f.h.Open(ctx, "", "GOSESSID"); err == nil {
		t.Fatal("expected second Open to fail")
	}
}

func TestCloseResetsHandlerForReuse(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	ctx := context.Background()
	f.open()
	if _, err := f.h.CreateSessionID(ctx); err != nil {
		t.Fatalf("CreateSessionID: %v", err)
	}
	if _, err := f.h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.h.State() != StateUnopened || f.h.SessionID() != "" {
		t.Fatalf("expected reset state, got %s %q", f.h.State(), f.h.SessionID())
	}
	f.open()
	if n := f.rec.Count(containertest.OpInit); n != 2 {
		t.Fatalf("expected a second Init, got %d", n)
	}
}

func TestGCForwardsToContainer(t *testing.T) {
	f := newHandlerFixture(t, 30*time.Minute)
	f.seed(testID('a'), `{}`, testNow.Add(-2*time.Hour))
	f.seed(testID('b'), `{}`, testNow)
	f.open()

	if ok, err := f.h.GC(context.Background(), time.Hour); err != nil || !ok {
		t.Fatalf("GC: %v %v", ok, err)
	}
	if f.store.Len() != 1 {
		t.Fatalf("expected 1 surviving record, got %d", f.store.Len())
	}
	if f.metrics.Value(MetricGC) != 1 {
		t.Fatalf("expected gc counter, got %d", f.metrics.Value(MetricGC))
	}
}

func TestCookieBackendRoundTrip(t *testing.T) {
	cd, err := codec.NewAESCBC(bytes.Repeat([]byte{7}, 32), bytes.Repeat([]byte{9}, 16))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	store := cookiestore.New(cookiestore.Config{
		Name:        "GOSESSDATA",
		Path:        "/",
		HTTPOnly:    true,
		SameSite:    http.SameSiteStrictMode,
		MaxLifetime: 30 * time.Minute,
		Serializer:  payload.NewJSON(),
	})
	ctx := context.Background()
	now := testNow

	newHandler := func(r *http.Request, out http.Header) *Handler {
		return NewHandler(HandlerOptions{
			Provider:       store,
			Codec:          cd,
			Headers:        NewHeaderAccumulator(r),
			Out:            out,
			Cookie:         CookieConfig{Path: "/", HTTPOnly: true},
			DataCookieName: "GOSESSDATA",
			Clock:          func() time.Time { return now },
		})
	}

	// First request: new visitor stores a value.
	out1 := http.Header{}
	h := newHandler(nil, out1)
	if _, err := h.Open(ctx, "", "GOSESSID"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := h.CreateSessionID(ctx)
	if err != nil {
		t.Fatalf("CreateSessionID: %v", err)
	}
	h.IssueIDCookie(id)
	if _, err := h.Write(ctx, id, []byte(`{"user":"alice"}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	cookies := (&http.Response{Header: out1}).Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected identity and data cookies, got %v", out1.Values("Set-Cookie"))
	}

	// Second request: the browser returns both cookies a minute later.
	now = testNow.Add(time.Minute)
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	for _, c := range cookies {
		if strings.Contains(c.Value, "alice") {
			t.Fatalf("data cookie must be encrypted: %q", c.Value)
		}
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	out2 := http.Header{}
	h = newHandler(req, out2)
	if _, err := h.Open(ctx, "", "GOSESSID"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	found, err := h.ValidateID(ctx, id)
	if err != nil || !found {
		t.Fatalf("ValidateID: %v %v", found, err)
	}
	data, _ := h.Read(id)
	if !bytes.Contains(data, []byte(`"user":"alice"`)) || !bytes.Contains(data, []byte(payload.TimestampKey)) {
		t.Fatalf("unexpected payload %q", data)
	}
	if _, err := h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var refreshed bool
	for _, c := range (&http.Response{Header: out2}).Cookies() {
		if c.Name == "GOSESSDATA" && c.Value != "" {
			refreshed = true
		}
	}
	if !refreshed {
		t.Fatalf("read-only correction must re-issue the data cookie, got %v", out2.Values("Set-Cookie"))
	}
}
