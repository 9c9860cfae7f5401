package main

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
)

func newTestServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()
	cfg := goSession.DefaultConfig()
	cfg.Backend = goSession.BackendMemory
	cfg.Encryption.Key = bytes.Repeat([]byte{3}, 32)
	cfg.Encryption.IV = bytes.Repeat([]byte{5}, 16)
	cfg.Cookie.Secure = goSession.SecureNever
	cfg.Metrics.Enabled = true
	cfg.Log.Level = "error"

	m, err := goSession.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })

	exp, err := prometheus.NewPrometheusExporter(m)
	if err != nil {
		t.Fatalf("NewPrometheusExporter failed: %v", err)
	}

	srv := httptest.NewServer(newRouter(m, exp.Handler()))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return srv, &http.Client{Jar: jar}
}

func get(t *testing.T, c *http.Client, method, url string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestRouterSessionLifecycle(t *testing.T) {
	srv, c := newTestServer(t)

	if code, _ := get(t, c, http.MethodGet, srv.URL+"/session/peek"); code != http.StatusNotFound {
		t.Fatalf("expected 404 peek without a session, got %d", code)
	}

	if _, body := get(t, c, http.MethodGet, srv.URL+"/session/"); body != "visits=1 new=true\n" {
		t.Fatalf("unexpected first visit body %q", body)
	}
	if _, body := get(t, c, http.MethodGet, srv.URL+"/session/"); body != "visits=2 new=false\n" {
		t.Fatalf("unexpected second visit body %q", body)
	}
	if _, body := get(t, c, http.MethodGet, srv.URL+"/session/peek"); body != "visits=2\n" {
		t.Fatalf("unexpected peek body %q", body)
	}

	if code, _ := get(t, c, http.MethodPost, srv.URL+"/session/rotate"); code != http.StatusNoContent {
		t.Fatalf("expected 204 from rotate, got %d", code)
	}
	if _, body := get(t, c, http.MethodGet, srv.URL+"/session/"); body != "visits=3 new=false\n" {
		t.Fatalf("expected values to survive rotation, got %q", body)
	}

	if code, _ := get(t, c, http.MethodPost, srv.URL+"/session/logout"); code != http.StatusNoContent {
		t.Fatalf("expected 204 from logout, got %d", code)
	}
	if _, body := get(t, c, http.MethodGet, srv.URL+"/session/"); body != "visits=1 new=true\n" {
		t.Fatalf("expected a fresh session after logout, got %q", body)
	}

	code, body := get(t, c, http.MethodGet, srv.URL+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("expected 200 from metrics, got %d", code)
	}
	if !strings.Contains(body, "gosession_destroy_total 1") {
		t.Fatalf("expected one destroy in metrics, got:\n%s", body)
	}
}

func TestKeygenPrintsDecodableKeys(t *testing.T) {
	cmd := keygenCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("keygen failed: %v", err)
	}

	vals := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		k, v, _ := strings.Cut(line, "=")
		vals[k] = v
	}
	key, err := base64.StdEncoding.DecodeString(vals["GOSESSION_ENCRYPTION_KEY"])
	if err != nil || len(key) != 32 {
		t.Fatalf("expected 32-byte key, got %d bytes err=%v", len(key), err)
	}
	iv, err := base64.StdEncoding.DecodeString(vals["GOSESSION_ENCRYPTION_IV"])
	if err != nil || len(iv) != 16 {
		t.Fatalf("expected 16-byte iv, got %d bytes err=%v", len(iv), err)
	}

	bad := keygenCmd()
	bad.SetOut(io.Discard)
	bad.SetArgs([]string{"--mode", "rot13"})
	if err := bad.Execute(); err == nil {
		t.Fatal("expected unsupported mode to fail")
	}
}
