package goSession

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/container"
	"github.com/MrEthical07/goSession/container/cookiestore"
	"github.com/MrEthical07/goSession/container/filestore"
	"github.com/MrEthical07/goSession/container/memcachestore"
	"github.com/MrEthical07/goSession/container/memstore"
	"github.com/MrEthical07/goSession/container/mongostore"
	"github.com/MrEthical07/goSession/container/redisstore"
	"github.com/MrEthical07/goSession/container/s3store"
	"github.com/MrEthical07/goSession/container/sqlstore"
	"github.com/MrEthical07/goSession/payload"
)

// Backend selects a storage container.
type Backend uint8

const (
	// BackendFile stores one file per session.
	BackendFile Backend = iota + 1
	// BackendSQL stores rows through database/sql.
	BackendSQL
	// BackendRedis stores keys with native TTL.
	BackendRedis
	// BackendMemcached stores items with native expiration.
	BackendMemcached
	// BackendMongoDB stores documents.
	BackendMongoDB
	// BackendS3 stores objects in a bucket.
	BackendS3
	// BackendCookie stores the encrypted payload client-side.
	BackendCookie
	// BackendMemory stores records in process memory.
	BackendMemory
)

var backendNames = map[Backend]string{
	BackendFile:      "file",
	BackendSQL:       "sql",
	BackendRedis:     "redis",
	BackendMemcached: "memcached",
	BackendMongoDB:   "mongodb",
	BackendS3:        "s3",
	BackendCookie:    "cookie",
	BackendMemory:    "memory",
}

func (b Backend) String() string {
	if n, ok := backendNames[b]; ok {
		return n
	}
	return fmt.Sprintf("backend(%d)", uint8(b))
}

// ParseBackend maps a configuration string onto a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file", "files":
		return BackendFile, nil
	case "sql", "mysql", "sqlite":
		return BackendSQL, nil
	case "redis":
		return BackendRedis, nil
	case "memcached", "memcache":
		return BackendMemcached, nil
	case "mongodb", "mongo":
		return BackendMongoDB, nil
	case "s3":
		return BackendS3, nil
	case "cookie":
		return BackendCookie, nil
	case "memory", "mem":
		return BackendMemory, nil
	default:
		return 0, configErr("unknown backend %q", s)
	}
}

// backendDeps carries what a provider factory may need besides Config.
type backendDeps struct {
	cfg        Config
	redis      redis.UniversalClient
	s3         s3store.API
	serializer payload.Serializer
}

type providerFactory func(ctx context.Context, d backendDeps) (container.Provider, error)

// registry is fixed at compile time.
var registry = map[Backend]providerFactory{
	BackendFile:      newFileProvider,
	BackendSQL:       newSQLProvider,
	BackendRedis:     newRedisProvider,
	BackendMemcached: newMemcachedProvider,
	BackendMongoDB:   newMongoProvider,
	BackendS3:        newS3Provider,
	BackendCookie:    newCookieProvider,
	BackendMemory:    newMemoryProvider,
}

func newProvider(ctx context.Context, d backendDeps) (container.Provider, error) {
	f, ok := registry[d.cfg.Backend]
	if !ok {
		return nil, configErr("Backend %s is not registered", d.cfg.Backend)
	}
	p, err := f(ctx, d)
	if err != nil {
		return nil, backendErr("open", err)
	}
	return p, nil
}

func newFileProvider(_ context.Context, d backendDeps) (container.Provider, error) {
	return filestore.New(filestore.Config{
		Dir:         d.cfg.File.Dir,
		Prefix:      d.cfg.File.Prefix,
		MaxLifetime: d.cfg.Session.MaxLifetime,
	}), nil
}

func newSQLProvider(ctx context.Context, d backendDeps) (container.Provider, error) {
	return sqlstore.Open(ctx, sqlstore.Config{
		Driver:       d.cfg.SQL.Driver,
		DSN:          d.cfg.SQL.DSN,
		Table:        d.cfg.SQL.Table,
		AutoMigrate:  d.cfg.SQL.AutoMigrate,
		MaxOpenConns: d.cfg.SQL.MaxOpenConns,
		MaxLifetime:  d.cfg.Session.MaxLifetime,
	})
}

func newRedisProvider(_ context.Context, d backendDeps) (container.Provider, error) {
	rdb := d.redis
	if rdb == nil {
		rdb = redis.NewClient(&redis.Options{
			Addr:        d.cfg.Redis.Addr,
			Username:    d.cfg.Redis.Username,
			Password:    d.cfg.Redis.Password,
			DB:          d.cfg.Redis.DB,
			DialTimeout: d.cfg.Redis.DialTimeout,
		})
		return &ownedRedis{Store: redisstore.NewStore(rdb, d.cfg.Redis.Prefix, d.cfg.Session.MaxLifetime), rdb: rdb}, nil
	}
	return redisstore.NewStore(rdb, d.cfg.Redis.Prefix, d.cfg.Session.MaxLifetime), nil
}

// ownedRedis closes a client the registry created itself.
type ownedRedis struct {
	*redisstore.Store
	rdb redis.UniversalClient
}

func (o *ownedRedis) Close() error { return o.rdb.Close() }

func newMemcachedProvider(_ context.Context, d backendDeps) (container.Provider, error) {
	return memcachestore.Dial(memcachestore.Config{
		Servers:     d.cfg.Memcached.Servers,
		Prefix:      d.cfg.Memcached.Prefix,
		Timeout:     d.cfg.Memcached.Timeout,
		MaxLifetime: d.cfg.Session.MaxLifetime,
	}), nil
}

func newMongoProvider(ctx context.Context, d backendDeps) (container.Provider, error) {
	return mongostore.Connect(ctx, mongostore.Config{
		URI:            d.cfg.MongoDB.URI,
		Database:       d.cfg.MongoDB.Database,
		Collection:     d.cfg.MongoDB.Collection,
		ConnectTimeout: d.cfg.MongoDB.ConnectTimeout,
		MaxLifetime:    d.cfg.Session.MaxLifetime,
	})
}

func newS3Provider(_ context.Context, d backendDeps) (container.Provider, error) {
	sc := s3store.Config{
		Bucket:          d.cfg.S3.Bucket,
		Prefix:          d.cfg.S3.Prefix,
		Region:          d.cfg.S3.Region,
		Endpoint:        d.cfg.S3.Endpoint,
		AccessKeyID:     d.cfg.S3.AccessKeyID,
		SecretAccessKey: d.cfg.S3.SecretAccessKey,
		UsePathStyle:    d.cfg.S3.UsePathStyle,
		MaxLifetime:     d.cfg.Session.MaxLifetime,
	}
	api := d.s3
	if api == nil {
		api = s3store.NewClient(sc)
	}
	return s3store.New(api, sc), nil
}

func newCookieProvider(_ context.Context, d backendDeps) (container.Provider, error) {
	sameSite := d.cfg.Cookie.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteStrictMode
	}
	return cookiestore.New(cookiestore.Config{
		Name:        d.cfg.Session.DataCookieName,
		Path:        d.cfg.Cookie.Path,
		Domain:      d.cfg.Cookie.Domain,
		HTTPOnly:    d.cfg.Cookie.HTTPOnly,
		SameSite:    sameSite,
		MaxLifetime: d.cfg.Session.MaxLifetime,
		Serializer:  d.serializer,
	}), nil
}

func newMemoryProvider(_ context.Context, d backendDeps) (container.Provider, error) {
	return memstore.New(d.cfg.Session.MaxLifetime), nil
}
