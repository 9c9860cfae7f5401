package containertest

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/container"
)

// Op names a container call.
type Op string

const (
	OpInit   Op = "init"
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpTouch  Op = "touch"
	OpGC     Op = "gc"
	OpDelete Op = "delete"
	OpClose  Op = "close"
)

// Call is one recorded container invocation.
type Call struct {
	Op      Op
	ID      string
	Payload []byte
}

// Recorder wraps a provider and records every call made on the containers it hands
// out. Fail makes the next calls of an op return an error before reaching the inner
// container.
type Recorder struct {
	inner container.Provider

	mu    sync.Mutex
	calls []Call
	fail  map[Op]error
}

// NewRecorder wraps inner.
func NewRecorder(inner container.Provider) *Recorder {
	return &Recorder{inner: inner, fail: make(map[Op]error)}
}

// NewContainer implements container.Provider.
func (r *Recorder) NewContainer() container.Container {
	return &recordingContainer{rec: r, inner: r.inner.NewContainer()}
}

// Close closes the inner provider.
func (r *Recorder) Close() error { return r.inner.Close() }

// Fail injects err for every subsequent call of op. A nil err clears the injection.
func (r *Recorder) Fail(op Op, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.fail, op)
		return
	}
	r.fail[op] = err
}

// Count returns how many times op was called.
func (r *Recorder) Count(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Calls returns a copy of the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Reset clears recorded calls and injected failures.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.fail = make(map[Op]error)
	r.mu.Unlock()
}

func (r *Recorder) record(op Op, id string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: op, ID: id, Payload: append([]byte(nil), payload...)})
	return r.fail[op]
}

type recordingContainer struct {
	rec   *Recorder
	inner container.Container
}

func (c *recordingContainer) Init(ctx context.Context, p container.InitParams) error {
	if err := c.rec.record(OpInit, "", nil); err != nil {
		return err
	}
	return c.inner.Init(ctx, p)
}

func (c *recordingContainer) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if err := c.rec.record(OpGet, id, nil); err != nil {
		return nil, false, err
	}
	return c.inner.Get(ctx, id)
}

func (c *recordingContainer) Set(ctx context.Context, id string, payload []byte) (bool, error) {
	if err := c.rec.record(OpSet, id, payload); err != nil {
		return false, err
	}
	return c.inner.Set(ctx, id, payload)
}

func (c *recordingContainer) Touch(ctx context.Context, id string, payload []byte) (bool, error) {
	if err := c.rec.record(OpTouch, id, payload); err != nil {
		return false, err
	}
	return c.inner.Touch(ctx, id, payload)
}

func (c *recordingContainer) GC(ctx context.Context, maxLifetime time.Duration) (bool, error) {
	if err := c.rec.record(OpGC, "", nil); err != nil {
		return false, err
	}
	return c.inner.GC(ctx, maxLifetime)
}

func (c *recordingContainer) Delete(ctx context.Context, id string) (bool, error) {
	if err := c.rec.record(OpDelete, id, nil); err != nil {
		return false, err
	}
	return c.inner.Delete(ctx, id)
}

func (c *recordingContainer) Close() error {
	if err := c.rec.record(OpClose, "", nil); err != nil {
		_ = c.inner.Close()
		return err
	}
	return c.inner.Close()
}

// PayloadStamper passes through when the inner container stamps payloads.
func (c *recordingContainer) StampPayload(plain []byte, now time.Time) ([]byte, error) {
	if s, ok := c.inner.(container.PayloadStamper); ok {
		return s.StampPayload(plain, now)
	}
	return plain, nil
}

func (c *recordingContainer) PayloadLive(plain []byte, now time.Time) bool {
	if s, ok := c.inner.(container.PayloadStamper); ok {
		return s.PayloadLive(plain, now)
	}
	return true
}

// RequiresEncryption passes through the inner provider's requirement.
func (r *Recorder) RequiresEncryption() bool {
	if e, ok := r.inner.(container.EncryptionRequired); ok {
		return e.RequiresEncryption()
	}
	return false
}
