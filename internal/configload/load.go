// Package configload reads goSession configuration from a TOML or YAML file, optional
// .env files and GOSESSION_* environment variables, in that order of precedence
// (later wins), and validates the result.
package configload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/codec"
)

// DefaultEnvPrefix prefixes every environment variable.
const DefaultEnvPrefix = "GOSESSION"

// ErrUnsupportedFormat is returned for config files that are neither TOML nor YAML.
var ErrUnsupportedFormat = errors.New("configload: unsupported config format")

// Options controls where Load reads from.
type Options struct {
	// Path is a .toml, .yaml or .yml file. Empty skips the file.
	Path string
	// DotEnv files are loaded into the process environment; missing files are skipped.
	// Variables already set are not overridden.
	DotEnv []string
	// EnvPrefix defaults to DefaultEnvPrefix.
	EnvPrefix string
	// SkipEnv disables the environment overlay.
	SkipEnv bool
}

// Load builds a validated goSession.Config.
func Load(opts Options) (goSession.Config, error) {
	var f File
	if opts.Path != "" {
		if err := DecodeFile(opts.Path, &f); err != nil {
			return goSession.Config{}, err
		}
	}

	for _, p := range opts.DotEnv {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return goSession.Config{}, fmt.Errorf("configload: load %s: %w", p, err)
		}
	}

	if !opts.SkipEnv {
		prefix := opts.EnvPrefix
		if prefix == "" {
			prefix = DefaultEnvPrefix
		}
		if err := envconfig.Process(prefix, &f); err != nil {
			return goSession.Config{}, fmt.Errorf("configload: environment: %w", err)
		}
	}

	cfg, err := f.Config()
	if err != nil {
		return goSession.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return goSession.Config{}, err
	}
	return cfg, nil
}

// DecodeFile decodes path into f, choosing the format by extension.
func DecodeFile(path string, f *File) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("configload: read %s: %w", path, err)
	}
	return Decode(filepath.Ext(path), data, f)
}

// Decode decodes data in the format named by ext (".toml", ".yaml", ".yml").
func Decode(ext string, data []byte, f *File) error {
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(f); err != nil {
			return fmt.Errorf("configload: failed to decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.UnmarshalStrict(data, f); err != nil {
			return fmt.Errorf("configload: failed to decode YAML: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return nil
}

// Config converts f onto goSession.DefaultConfig. It does not validate.
func (f *File) Config() (goSession.Config, error) {
	cfg := goSession.DefaultConfig()

	if f.Backend != "" {
		b, err := goSession.ParseBackend(f.Backend)
		if err != nil {
			return cfg, err
		}
		cfg.Backend = b
	}

	// Session
	setString(&cfg.Session.Name, f.Session.Name)
	setString(&cfg.Session.DataCookieName, f.Session.DataCookieName)
	setDuration(&cfg.Session.MaxLifetime, f.Session.MaxLifetime)
	setString(&cfg.Session.SavePath, f.Session.SavePath)
	if f.Session.GCProbability != 0 {
		cfg.Session.GCProbability = f.Session.GCProbability
	}

	// Cookie
	setString(&cfg.Cookie.Path, f.Cookie.Path)
	setString(&cfg.Cookie.Domain, f.Cookie.Domain)
	if f.Cookie.Secure != "" {
		cfg.Cookie.Secure = goSession.SecureMode(strings.ToLower(f.Cookie.Secure))
	}
	if f.Cookie.HTTPOnly != nil {
		cfg.Cookie.HTTPOnly = *f.Cookie.HTTPOnly
	}
	if f.Cookie.SameSite != "" {
		ss, err := ParseSameSite(f.Cookie.SameSite)
		if err != nil {
			return cfg, err
		}
		cfg.Cookie.SameSite = ss
	}
	setDuration(&cfg.Cookie.Lifetime, f.Cookie.Lifetime)

	// Encryption
	if f.Encryption.Mode != "" {
		cfg.Encryption.Mode = codec.Mode(strings.ToLower(f.Encryption.Mode))
	}
	key, err := decodeBase64("encryption key", f.Encryption.Key)
	if err != nil {
		return cfg, err
	}
	iv, err := decodeBase64("encryption iv", f.Encryption.IV)
	if err != nil {
		return cfg, err
	}
	cfg.Encryption.Key = key
	cfg.Encryption.IV = iv
	cfg.Encryption.AllowPlaintext = f.Encryption.AllowPlaintext

	// Backends
	setString(&cfg.File.Dir, f.File.Dir)
	setString(&cfg.File.Prefix, f.File.Prefix)

	setString(&cfg.SQL.Driver, f.SQL.Driver)
	setString(&cfg.SQL.DSN, f.SQL.DSN)
	setString(&cfg.SQL.Table, f.SQL.Table)
	cfg.SQL.AutoMigrate = f.SQL.AutoMigrate
	if f.SQL.MaxOpenConns != 0 {
		cfg.SQL.MaxOpenConns = f.SQL.MaxOpenConns
	}

	setString(&cfg.Redis.Addr, f.Redis.Addr)
	setString(&cfg.Redis.Username, f.Redis.Username)
	setString(&cfg.Redis.Password, f.Redis.Password)
	if f.Redis.DB != 0 {
		cfg.Redis.DB = f.Redis.DB
	}
	setString(&cfg.Redis.Prefix, f.Redis.Prefix)
	setDuration(&cfg.Redis.DialTimeout, f.Redis.DialTimeout)

	if len(f.Memcached.Servers) > 0 {
		cfg.Memcached.Servers = append([]string(nil), f.Memcached.Servers...)
	}
	setString(&cfg.Memcached.Prefix, f.Memcached.Prefix)
	setDuration(&cfg.Memcached.Timeout, f.Memcached.Timeout)

	setString(&cfg.MongoDB.URI, f.MongoDB.URI)
	setString(&cfg.MongoDB.Database, f.MongoDB.Database)
	setString(&cfg.MongoDB.Collection, f.MongoDB.Collection)
	setDuration(&cfg.MongoDB.ConnectTimeout, f.MongoDB.ConnectTimeout)

	setString(&cfg.S3.Bucket, f.S3.Bucket)
	setString(&cfg.S3.Prefix, f.S3.Prefix)
	setString(&cfg.S3.Region, f.S3.Region)
	setString(&cfg.S3.Endpoint, f.S3.Endpoint)
	setString(&cfg.S3.AccessKeyID, f.S3.AccessKeyID)
	setString(&cfg.S3.SecretAccessKey, f.S3.SecretAccessKey)
	cfg.S3.UsePathStyle = f.S3.UsePathStyle

	// Ambient
	cfg.Audit.Enabled = f.Audit.Enabled
	if f.Audit.BufferSize != 0 {
		cfg.Audit.BufferSize = f.Audit.BufferSize
	}
	if f.Audit.DropIfFull != nil {
		cfg.Audit.DropIfFull = *f.Audit.DropIfFull
	}
	cfg.Metrics.Enabled = f.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = f.Metrics.EnableLatencyHistograms
	setString(&cfg.Log.Level, f.Log.Level)
	setString(&cfg.Log.Format, f.Log.Format)

	return cfg, nil
}

// ParseSameSite maps "default", "lax", "strict" and "none" onto http.SameSite.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "default":
		return http.SameSiteDefaultMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("%w: cookie same_site %q", goSession.ErrInvalidConfig, s)
	}
}

func decodeBase64(what, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be base64: %v", goSession.ErrInvalidConfig, what, err)
	}
	return b, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v Duration) {
	if v != 0 {
		*dst = time.Duration(v)
	}
}
