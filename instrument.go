package goSession

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/goSession/container"
)

const tracerName = "github.com/MrEthical07/goSession"

// instrumentedProvider wraps every container it hands out with a span per call and a
// latency observation.
type instrumentedProvider struct {
	inner   container.Provider
	tracer  trace.Tracer
	metrics *Metrics
	backend attribute.KeyValue
}

func instrument(p container.Provider, tp trace.TracerProvider, m *Metrics, backend string) container.Provider {
	return &instrumentedProvider{
		inner:   p,
		tracer:  tp.Tracer(tracerName),
		metrics: m,
		backend: attribute.String("gosession.backend", backend),
	}
}

func (p *instrumentedProvider) NewContainer() container.Container {
	return &instrumentedContainer{p: p, inner: p.inner.NewContainer()}
}

func (p *instrumentedProvider) Close() error { return p.inner.Close() }

// RequiresEncryption forwards the inner provider's requirement.
func (p *instrumentedProvider) RequiresEncryption() bool {
	e, ok := p.inner.(container.EncryptionRequired)
	return ok && e.RequiresEncryption()
}

func (p *instrumentedProvider) Unwrap() container.Provider { return p.inner }

type instrumentedContainer struct {
	p     *instrumentedProvider
	inner container.Container
}

// Unwrap exposes the backend container so optional interfaces can be discovered.
func (c *instrumentedContainer) Unwrap() container.Container { return c.inner }

func (c *instrumentedContainer) start(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := c.p.tracer.Start(ctx, "gosession.container."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(c.p.backend),
	)
	return ctx, span, time.Now()
}

func (c *instrumentedContainer) end(span trace.Span, started time.Time, err error) {
	c.p.metrics.Observe(MetricContainerLatency, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *instrumentedContainer) Init(ctx context.Context, params container.InitParams) error {
	ctx, span, t := c.start(ctx, "init")
	err := c.inner.Init(ctx, params)
	c.end(span, t, err)
	return err
}

func (c *instrumentedContainer) Get(ctx context.Context, id string) ([]byte, bool, error) {
	ctx, span, t := c.start(ctx, "get")
	data, ok, err := c.inner.Get(ctx, id)
	span.SetAttributes(attribute.Bool("gosession.hit", ok))
	c.end(span, t, err)
	return data, ok, err
}

func (c *instrumentedContainer) Set(ctx context.Context, id string, payload []byte) (bool, error) {
	ctx, span, t := c.start(ctx, "set")
	span.SetAttributes(attribute.Int("gosession.payload_bytes", len(payload)))
	ok, err := c.inner.Set(ctx, id, payload)
	c.end(span, t, err)
	return ok, err
}

func (c *instrumentedContainer) Touch(ctx context.Context, id string, payload []byte) (bool, error) {
	ctx, span, t := c.start(ctx, "touch")
	ok, err := c.inner.Touch(ctx, id, payload)
	c.end(span, t, err)
	return ok, err
}

func (c *instrumentedContainer) GC(ctx context.Context, maxLifetime time.Duration) (bool, error) {
	ctx, span, t := c.start(ctx, "gc")
	ok, err := c.inner.GC(ctx, maxLifetime)
	c.end(span, t, err)
	return ok, err
}

func (c *instrumentedContainer) Delete(ctx context.Context, id string) (bool, error) {
	ctx, span, t := c.start(ctx, "delete")
	ok, err := c.inner.Delete(ctx, id)
	c.end(span, t, err)
	return ok, err
}

func (c *instrumentedContainer) Close() error {
	return c.inner.Close()
}

// stamperOf finds a PayloadStamper through any wrapping containers.
func stamperOf(c container.Container) (container.PayloadStamper, bool) {
	for c != nil {
		if s, ok := c.(container.PayloadStamper); ok {
			return s, true
		}
		u, ok := c.(interface{ Unwrap() container.Container })
		if !ok {
			return nil, false
		}
		c = u.Unwrap()
	}
	return nil, false
}

func requiresEncryption(p container.Provider) bool {
	e, ok := p.(container.EncryptionRequired)
	return ok && e.RequiresEncryption()
}
