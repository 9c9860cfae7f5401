package goSession

import (
	"net/http"
	"regexp"
	"time"

	"github.com/MrEthical07/goSession/codec"
)

// Config is the complete coordinator configuration. It is copied by Builder.Build and
// never mutated afterwards.
type Config struct {
	Backend    Backend
	Session    SessionConfig
	Cookie     CookieConfig
	Encryption EncryptionConfig

	File      FileConfig
	SQL       SQLConfig
	Redis     RedisConfig
	Memcached MemcachedConfig
	MongoDB   MongoDBConfig
	S3        S3Config

	Audit   AuditConfig
	Metrics MetricsConfig
	Log     LogConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls identity and lifetime.
type SessionConfig struct {
	// Name is the identity cookie name.
	Name string
	// DataCookieName is the payload cookie used by the cookie backend.
	DataCookieName string
	// MaxLifetime is how long a record stays valid after its last access.
	MaxLifetime time.Duration
	// SavePath is passed to Open; the file backend uses it when File.Dir is empty.
	SavePath string
	// GCProbability is the chance in [0,1] that Manager.Start runs gc.
	GCProbability float64
}

// SecureMode selects the Secure cookie attribute.
type SecureMode string

const (
	// SecureAuto marks cookies Secure unless the request host is localhost.
	SecureAuto SecureMode = "auto"
	// SecureAlways always sets Secure.
	SecureAlways SecureMode = "always"
	// SecureNever never sets Secure.
	SecureNever SecureMode = "never"
)

// CookieConfig holds the attributes of every cookie the coordinator emits.
type CookieConfig struct {
	Path     string
	Domain   string
	Secure   SecureMode
	HTTPOnly bool
	SameSite http.SameSite
	// Lifetime is the identity cookie Max-Age. Zero issues a browser-session cookie.
	Lifetime time.Duration
}

// EncryptionConfig selects the payload codec.
type EncryptionConfig struct {
	Mode codec.Mode
	Key  []byte
	// IV is required in aes-cbc mode.
	IV []byte
	// AllowPlaintext permits running without a key. Rejected by backends that require
	// encryption.
	AllowPlaintext bool
}

/*
====================================
BACKEND CONFIG
====================================
*/

// FileConfig configures BackendFile.
type FileConfig struct {
	Dir    string
	Prefix string
}

// SQLConfig configures BackendSQL.
type SQLConfig struct {
	Driver       string // "sqlite" (default) or "mysql"
	DSN          string
	Table        string
	AutoMigrate  bool
	MaxOpenConns int
}

// RedisConfig configures BackendRedis when no client is supplied to the Builder.
type RedisConfig struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	Prefix      string
	DialTimeout time.Duration
}

// MemcachedConfig configures BackendMemcached.
type MemcachedConfig struct {
	Servers []string
	Prefix  string
	Timeout time.Duration
}

// MongoDBConfig configures BackendMongoDB.
type MongoDBConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
}

// S3Config configures BackendS3.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

/*
====================================
AMBIENT CONFIG
====================================
*/

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// LogConfig controls the zerolog logger built when none is supplied.
type LogConfig struct {
	Level  string // trace, debug, info, warn, error
	Format string // json or console
}

// DefaultConfig returns the configuration used when the Builder gets none.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Backend: BackendFile,
		Session: SessionConfig{
			Name:           "GOSESSID",
			DataCookieName: "GOSESSDATA",
			MaxLifetime:    30 * time.Minute,
		},
		Cookie: CookieConfig{
			Path:     "/",
			Secure:   SecureAuto,
			HTTPOnly: true,
			SameSite: http.SameSiteStrictMode,
		},
		Encryption: EncryptionConfig{
			Mode: codec.ModeAESCBC,
		},
		File: FileConfig{
			Prefix: "sess_",
		},
		SQL: SQLConfig{
			Driver: "sqlite",
			Table:  "sessions",
		},
		Redis: RedisConfig{
			Prefix:      "gosess:",
			DialTimeout: 5 * time.Second,
		},
		Memcached: MemcachedConfig{
			Prefix:  "gosess:",
			Timeout: time.Second,
		},
		MongoDB: MongoDBConfig{
			Database:       "gosession",
			Collection:     "sessions",
			ConnectTimeout: 10 * time.Second,
		},
		S3: S3Config{
			Prefix: "sessions/",
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Encryption.Key = cloneBytes(cfg.Encryption.Key)
	out.Encryption.IV = cloneBytes(cfg.Encryption.IV)
	out.Memcached.Servers = append([]string(nil), cfg.Memcached.Servers...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

var (
	cookieNameRE = regexp.MustCompile("^[!#$%&'*+\\-.^_`|~0-9A-Za-z]+$")
	sqlTableRE   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Validate checks cfg for consistency. It performs no I/O.
func (c *Config) Validate() error {
	// Session
	if !cookieNameRE.MatchString(c.Session.Name) {
		return configErr("Session Name must be a valid cookie name")
	}
	if c.Session.MaxLifetime <= 0 {
		return configErr("Session MaxLifetime must be > 0")
	}
	if c.Session.GCProbability < 0 || c.Session.GCProbability > 1 {
		return configErr("Session GCProbability must be within [0,1]")
	}

	// Cookie
	switch c.Cookie.Secure {
	case SecureAuto, SecureAlways, SecureNever:
	default:
		return configErr("Cookie Secure must be auto, always or never")
	}
	if c.Cookie.Lifetime < 0 {
		return configErr("Cookie Lifetime must be >= 0")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && c.Cookie.Secure == SecureNever {
		return configErr("Cookie SameSite=None requires Secure cookies")
	}

	// Encryption
	switch c.Encryption.Mode {
	case "", codec.ModeAESCBC, codec.ModeXChaCha20Poly1305:
	default:
		return configErr("Encryption Mode %q is not supported", c.Encryption.Mode)
	}
	if len(c.Encryption.Key) == 0 && !c.Encryption.AllowPlaintext {
		return configErr("Encryption Key is required unless AllowPlaintext is set")
	}

	// Backend
	switch c.Backend {
	case BackendFile:
	case BackendMemory:
	case BackendSQL:
		if c.SQL.Driver != "sqlite" && c.SQL.Driver != "mysql" {
			return configErr("SQL Driver must be 'sqlite' or 'mysql'")
		}
		if c.SQL.DSN == "" {
			return configErr("SQL DSN is required")
		}
		if !sqlTableRE.MatchString(c.SQL.Table) {
			return configErr("SQL Table must be a plain identifier")
		}
		if c.SQL.MaxOpenConns < 0 {
			return configErr("SQL MaxOpenConns must be >= 0")
		}
	case BackendRedis:
		// Addr may be empty when a client is passed to the Builder; checked in Build.
		if c.Redis.DB < 0 {
			return configErr("Redis DB must be >= 0")
		}
	case BackendMemcached:
		if len(c.Memcached.Servers) == 0 {
			return configErr("Memcached Servers must not be empty")
		}
	case BackendMongoDB:
		if c.MongoDB.URI == "" {
			return configErr("MongoDB URI is required")
		}
		if c.MongoDB.Database == "" {
			return configErr("MongoDB Database is required")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return configErr("S3 Bucket is required")
		}
	case BackendCookie:
		if len(c.Encryption.Key) == 0 {
			return configErr("Cookie backend requires encryption")
		}
		if !cookieNameRE.MatchString(c.Session.DataCookieName) {
			return configErr("Session DataCookieName must be a valid cookie name")
		}
		if c.Session.DataCookieName == c.Session.Name {
			return configErr("Session DataCookieName must differ from Name")
		}
	default:
		return configErr("Backend %d is not registered", c.Backend)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configErr("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
