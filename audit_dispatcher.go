package goSession

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// dropLogEvery throttles the "audit events dropped" warning.
const dropLogEvery = 1024

// auditDispatcher moves sink calls off the request path onto one worker goroutine.
// A nil dispatcher drops events.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool
	log        zerolog.Logger

	queue   chan AuditEvent
	stop    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool

	dropped  atomic.Uint64
	panicked atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, log zerolog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		log:        log,
		queue:      make(chan AuditEvent, size),
		stop:       make(chan struct{}),
	}
	d.stopped.Add(1)
	go d.loop()
	return d
}

func (d *auditDispatcher) loop() {
	defer d.stopped.Done()
	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain delivers whatever was queued before Close.
func (d *auditDispatcher) drain() {
	for {
		select {
		case e := <-d.queue:
			d.deliver(e)
		default:
			return
		}
	}
}

// deliver isolates the worker from a panicking sink.
func (d *auditDispatcher) deliver(e AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.panicked.Add(1)
			d.log.Error().Interface("panic", r).Str("event_type", e.EventType).Msg("audit sink panicked")
		}
	}()
	d.sink.Emit(context.Background(), e)
}

// Emit queues e. With DropIfFull a full queue drops the event and counts it; otherwise
// Emit waits for room, ctx or Close.
func (d *auditDispatcher) Emit(ctx context.Context, e AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if !d.dropIfFull {
		select {
		case d.queue <- e:
		case <-ctx.Done():
		case <-d.stop:
		}
		return
	}

	select {
	case d.queue <- e:
	case <-d.stop:
	default:
		if n := d.dropped.Add(1); n == 1 || n%dropLogEvery == 0 {
			d.log.Warn().Uint64("dropped", n).Msg("audit queue full, dropping events")
		}
	}
}

// Close flushes queued events and stops the worker. Safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.stopped.Wait()
	})
}

// Dropped counts events lost to a full queue.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Panicked counts sink calls that panicked.
func (d *auditDispatcher) Panicked() uint64 {
	if d == nil {
		return 0
	}
	return d.panicked.Load()
}
