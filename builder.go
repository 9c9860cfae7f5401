package goSession

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/goSession/codec"
	"github.com/MrEthical07/goSession/container"
	"github.com/MrEthical07/goSession/container/s3store"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/payload"
)

// Builder assembles a Manager. It is configured during initialization and can be built
// exactly once.
type Builder struct {
	config Config

	redis    redis.UniversalClient
	s3       s3store.API
	provider container.Provider

	serializer payload.Serializer
	logger     *zerolog.Logger
	auditSink  AuditSink
	tracer     trace.TracerProvider
	clock      func() time.Time
	newID      func() (string, error)

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used by BackendRedis. The Manager does not close it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithS3Client supplies the object API used by BackendS3.
func (b *Builder) WithS3Client(api s3store.API) *Builder {
	b.s3 = api
	return b
}

// WithProvider bypasses the backend registry. Config.Backend still names the backend in
// logs, spans and audit events.
func (b *Builder) WithProvider(p container.Provider) *Builder {
	b.provider = p
	return b
}

// WithSerializer overrides the JSON serializer.
func (b *Builder) WithSerializer(s payload.Serializer) *Builder {
	b.serializer = s
	return b
}

// WithLogger overrides the logger built from Config.Log.
func (b *Builder) WithLogger(l zerolog.Logger) *Builder {
	b.logger = &l
	return b
}

// WithAuditSink routes lifecycle events to sink through a bounded async dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithTracerProvider overrides otel.GetTracerProvider for container spans.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracer = tp
	return b
}

// WithClock overrides time.Now. Each request captures the clock once at Open.
func (b *Builder) WithClock(fn func() time.Time) *Builder {
	b.clock = fn
	return b
}

// WithIDGenerator overrides session id generation.
func (b *Builder) WithIDGenerator(fn func() (string, error)) *Builder {
	b.newID = fn
	return b
}

// WithMetricsEnabled overrides Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms overrides Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and opens the backend with a background context.
func (b *Builder) Build() (*Manager, error) {
	return b.BuildContext(context.Background())
}

// BuildContext validates the configuration and opens the backend. Backends that dial
// (SQL, MongoDB) honor ctx.
func (b *Builder) BuildContext(ctx context.Context) (*Manager, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == BackendRedis && b.redis == nil && b.provider == nil && cfg.Redis.Addr == "" {
		return nil, configErr("Redis Addr is required when no client is supplied")
	}

	// -------- LOGGER --------
	var logger zerolog.Logger
	if b.logger != nil {
		logger = *b.logger
	} else {
		l, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		if err != nil {
			return nil, configErr("%v", err)
		}
		logger = l
	}

	// -------- CODEC --------
	cd, err := codec.New(codec.Config{
		Mode:           cfg.Encryption.Mode,
		Key:            cloneBytes(cfg.Encryption.Key),
		IV:             cloneBytes(cfg.Encryption.IV),
		AllowPlaintext: cfg.Encryption.AllowPlaintext,
	})
	if err != nil {
		return nil, &Error{Kind: ErrorKindConfig, Op: "build", Err: err}
	}

	serializer := b.serializer
	if serializer == nil {
		serializer = payload.NewJSON()
	}

	// -------- PROVIDER --------
	provider := b.provider
	if provider == nil {
		provider, err = newProvider(ctx, backendDeps{
			cfg:        cfg,
			redis:      b.redis,
			s3:         b.s3,
			serializer: serializer,
		})
		if err != nil {
			return nil, err
		}
	}
	if requiresEncryption(provider) && !cd.Enabled() {
		_ = provider.Close()
		return nil, configErr("Backend %s requires encryption", cfg.Backend)
	}
	if !cd.Enabled() {
		logger.Warn().Str("backend", cfg.Backend.String()).Msg("session payloads are stored in plaintext")
	}

	// -------- OBSERVABILITY --------
	metrics := NewMetrics(cfg.Metrics)
	tp := b.tracer
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	m := &Manager{
		cfg:        cfg,
		provider:   instrument(provider, tp, metrics, cfg.Backend.String()),
		codec:      cd,
		serializer: serializer,
		metrics:    metrics,
		audit:      newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		logger:     logger.With().Str("backend", cfg.Backend.String()).Logger(),
		clock:      b.clock,
		newID:      b.newID,
		gcRoll:     rand.Float64,
		backend:    cfg.Backend.String(),
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.newID == nil {
		m.newID = internal.NewSessionID
	}

	b.built = true

	m.logger.Info().
		Dur("max_lifetime", cfg.Session.MaxLifetime).
		Bool("encrypted", cd.Enabled()).
		Msg("session manager ready")

	return m, nil
}
