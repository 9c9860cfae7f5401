package configload

import (
	"fmt"
	"time"
)

// Duration decodes "30m"-style strings from TOML, YAML and the environment.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// File is the text form of goSession.Config. Zero values keep the defaults; booleans
// that default to true are pointers. Keys and IVs are base64.
//
// Environment names derive from field names, e.g. GOSESSION_COOKIE_HTTP_ONLY. Leaf
// fields carry no envconfig tag so unprefixed variables such as PATH never match.
type File struct {
	Backend string `toml:"backend" yaml:"backend" split_words:"true"`

	Session struct {
		Name           string   `toml:"name" yaml:"name" split_words:"true"`
		DataCookieName string   `toml:"data_cookie_name" yaml:"data_cookie_name" split_words:"true"`
		MaxLifetime    Duration `toml:"max_lifetime" yaml:"max_lifetime" split_words:"true"`
		SavePath       string   `toml:"save_path" yaml:"save_path" split_words:"true"`
		GCProbability  float64  `toml:"gc_probability" yaml:"gc_probability" split_words:"true"`
	} `toml:"session" yaml:"session"`

	Cookie struct {
		Path     string   `toml:"path" yaml:"path" split_words:"true"`
		Domain   string   `toml:"domain" yaml:"domain" split_words:"true"`
		Secure   string   `toml:"secure" yaml:"secure" split_words:"true"`
		HTTPOnly *bool    `toml:"http_only" yaml:"http_only" split_words:"true"`
		SameSite string   `toml:"same_site" yaml:"same_site" split_words:"true"`
		Lifetime Duration `toml:"lifetime" yaml:"lifetime" split_words:"true"`
	} `toml:"cookie" yaml:"cookie"`

	Encryption struct {
		Mode           string `toml:"mode" yaml:"mode" split_words:"true"`
		Key            string `toml:"key" yaml:"key" split_words:"true"`
		IV             string `toml:"iv" yaml:"iv" split_words:"true"`
		AllowPlaintext bool   `toml:"allow_plaintext" yaml:"allow_plaintext" split_words:"true"`
	} `toml:"encryption" yaml:"encryption"`

	File struct {
		Dir    string `toml:"dir" yaml:"dir" split_words:"true"`
		Prefix string `toml:"prefix" yaml:"prefix" split_words:"true"`
	} `toml:"file" yaml:"file"`

	SQL struct {
		Driver       string `toml:"driver" yaml:"driver" split_words:"true"`
		DSN          string `toml:"dsn" yaml:"dsn" split_words:"true"`
		Table        string `toml:"table" yaml:"table" split_words:"true"`
		AutoMigrate  bool   `toml:"auto_migrate" yaml:"auto_migrate" split_words:"true"`
		MaxOpenConns int    `toml:"max_open_conns" yaml:"max_open_conns" split_words:"true"`
	} `toml:"sql" yaml:"sql"`

	Redis struct {
		Addr        string   `toml:"addr" yaml:"addr" split_words:"true"`
		Username    string   `toml:"username" yaml:"username" split_words:"true"`
		Password    string   `toml:"password" yaml:"password" split_words:"true"`
		DB          int      `toml:"db" yaml:"db" split_words:"true"`
		Prefix      string   `toml:"prefix" yaml:"prefix" split_words:"true"`
		DialTimeout Duration `toml:"dial_timeout" yaml:"dial_timeout" split_words:"true"`
	} `toml:"redis" yaml:"redis"`

	Memcached struct {
		Servers []string `toml:"servers" yaml:"servers" split_words:"true"`
		Prefix  string   `toml:"prefix" yaml:"prefix" split_words:"true"`
		Timeout Duration `toml:"timeout" yaml:"timeout" split_words:"true"`
	} `toml:"memcached" yaml:"memcached"`

	MongoDB struct {
		URI            string   `toml:"uri" yaml:"uri" split_words:"true"`
		Database       string   `toml:"database" yaml:"database" split_words:"true"`
		Collection     string   `toml:"collection" yaml:"collection" split_words:"true"`
		ConnectTimeout Duration `toml:"connect_timeout" yaml:"connect_timeout" split_words:"true"`
	} `toml:"mongodb" yaml:"mongodb"`

	S3 struct {
		Bucket          string `toml:"bucket" yaml:"bucket" split_words:"true"`
		Prefix          string `toml:"prefix" yaml:"prefix" split_words:"true"`
		Region          string `toml:"region" yaml:"region" split_words:"true"`
		Endpoint        string `toml:"endpoint" yaml:"endpoint" split_words:"true"`
		AccessKeyID     string `toml:"access_key_id" yaml:"access_key_id" split_words:"true"`
		SecretAccessKey string `toml:"secret_access_key" yaml:"secret_access_key" split_words:"true"`
		UsePathStyle    bool   `toml:"use_path_style" yaml:"use_path_style" split_words:"true"`
	} `toml:"s3" yaml:"s3"`

	Audit struct {
		Enabled    bool  `toml:"enabled" yaml:"enabled" split_words:"true"`
		BufferSize int   `toml:"buffer_size" yaml:"buffer_size" split_words:"true"`
		DropIfFull *bool `toml:"drop_if_full" yaml:"drop_if_full" split_words:"true"`
	} `toml:"audit" yaml:"audit"`

	Metrics struct {
		Enabled                 bool `toml:"enabled" yaml:"enabled" split_words:"true"`
		EnableLatencyHistograms bool `toml:"latency_histograms" yaml:"latency_histograms" split_words:"true"`
	} `toml:"metrics" yaml:"metrics"`

	Log struct {
		Level  string `toml:"level" yaml:"level" split_words:"true"`
		Format string `toml:"format" yaml:"format" split_words:"true"`
	} `toml:"log" yaml:"log"`
}
