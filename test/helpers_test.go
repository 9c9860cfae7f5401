//go:build integration
// +build integration

package test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goSession "github.com/MrEthical07/goSession"
)

const sessionName = "SESSID"

// redisMode describes which Redis backend the suite is running against. mr is nil for
// real servers.
type redisMode struct {
	name  string
	setup func(t *testing.T) (redis.UniversalClient, *miniredis.Miniredis, func())
}

// redisModes always includes miniredis. A real server is added when REDIS_ADDR is set.
func redisModes(t *testing.T) []redisMode {
	t.Helper()
	modes := []redisMode{
		{
			name: "miniredis",
			setup: func(t *testing.T) (redis.UniversalClient, *miniredis.Miniredis, func()) {
				t.Helper()
				mr, err := miniredis.Run()
				if err != nil {
					t.Fatalf("miniredis: %v", err)
				}
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				return rdb, mr, func() { _ = rdb.Close(); mr.Close() }
			},
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		modes = append(modes, redisMode{
			name: "standalone:" + addr,
			setup: func(t *testing.T) (redis.UniversalClient, *miniredis.Miniredis, func()) {
				t.Helper()
				rdb := redis.NewClient(&redis.Options{Addr: addr})
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := rdb.Ping(ctx).Err(); err != nil {
					t.Skipf("cannot connect to Redis at %s: %v", addr, err)
				}
				rdb.FlushDB(context.Background())
				return rdb, nil, func() { rdb.FlushDB(context.Background()); _ = rdb.Close() }
			},
		})
	}
	return modes
}

func newRedisManager(t *testing.T, rdb redis.UniversalClient) *goSession.Manager {
	t.Helper()
	cfg := goSession.DefaultConfig()
	cfg.Backend = goSession.BackendRedis
	cfg.Session.Name = sessionName
	cfg.Session.GCProbability = 0
	cfg.Cookie.Secure = goSession.SecureNever
	cfg.Encryption.Key = bytes.Repeat([]byte{0x42}, 32)
	cfg.Encryption.IV = bytes.Repeat([]byte{0x24}, 16)
	cfg.Log.Level = "error"

	m, err := goSession.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// visit starts a session, applies fn and commits. It returns the identity cookie value
// seen on the response, or id when none was issued.
func visit(t *testing.T, m *goSession.Manager, id string, fn func(*goSession.Session)) string {
	t.Helper()
	next, err := tryVisit(m, id, fn)
	if err != nil {
		t.Fatalf("visit failed: %v", err)
	}
	return next
}

func tryVisit(m *goSession.Manager, id string, fn func(*goSession.Session)) (string, error) {
	ctx := context.Background()
	req := httptest.NewRequest(http.MethodGet, "http://app.test/", nil)
	if id != "" {
		req.AddCookie(&http.Cookie{Name: sessionName, Value: id})
	}
	rec := httptest.NewRecorder()
	s, err := m.Start(ctx, rec, req)
	if err != nil {
		return "", err
	}
	if fn != nil {
		fn(s)
	}
	if err := s.Commit(ctx); err != nil {
		return "", err
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionName && c.MaxAge >= 0 {
			return c.Value, nil
		}
	}
	return id, nil
}
