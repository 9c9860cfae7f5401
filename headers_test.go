package goSession

import (
	"net/http"
	"reflect"
	"testing"
)

func TestDedupeSetCookieKeepsLastPerName(t *testing.T) {
	in := []string{
		"GOSESSID=a; Path=/",
		"theme=dark",
		"GOSESSID=b; Path=/",
		"GOSESSID=c; Path=/",
	}
	got := DedupeSetCookie(in)
	want := []string{"theme=dark", "GOSESSID=c; Path=/"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDedupeSetCookieKeepsNamelessValues(t *testing.T) {
	in := []string{"garbage", "garbage", "x=1"}
	got := DedupeSetCookie(in)
	if len(got) != 3 {
		t.Fatalf("expected nameless values to be kept, got %v", got)
	}
}

func TestFlushMergesExistingHeadersOnce(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	acc := NewHeaderAccumulator(nil)
	acc.metrics = m

	dst := http.Header{}
	dst.Add("Set-Cookie", "GOSESSID=stale; Path=/")
	dst.Add("Set-Cookie", "lang=en")

	acc.SetCookie(&http.Cookie{Name: "GOSESSID", Value: "fresh", Path: "/"})
	acc.Add("lang=fr")

	if !acc.Flush(dst) {
		t.Fatal("expected first flush to run")
	}
	want := []string{"GOSESSID=fresh; Path=/", "lang=fr"}
	if got := dst.Values("Set-Cookie"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if m.Value(MetricHeaderDeduped) != 2 {
		t.Fatalf("expected 2 deduped headers, got %d", m.Value(MetricHeaderDeduped))
	}

	acc.Add("late=1")
	if acc.Flush(dst) {
		t.Fatal("expected second flush to be a no-op")
	}
	if len(dst.Values("Set-Cookie")) != 2 || !acc.Flushed() {
		t.Fatalf("second flush changed headers: %v", dst.Values("Set-Cookie"))
	}
}

func TestHeaderAccumulatorReadsRequestCookies(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	req.AddCookie(&http.Cookie{Name: "GOSESSID", Value: "abc"})
	acc := NewHeaderAccumulator(req)

	if v, ok := acc.Cookie("GOSESSID"); !ok || v != "abc" {
		t.Fatalf("expected abc, got %q %v", v, ok)
	}
	if _, ok := acc.Cookie("missing"); ok {
		t.Fatal("expected missing cookie")
	}
	if _, ok := NewHeaderAccumulator(nil).Cookie("GOSESSID"); ok {
		t.Fatal("nil request has no cookies")
	}
}

func TestSetCookieDropsInvalidCookie(t *testing.T) {
	acc := NewHeaderAccumulator(nil)
	acc.SetCookie(&http.Cookie{Name: "bad name", Value: "x"})
	acc.SetCookie(nil)
	if p := acc.Pending(); len(p) != 0 {
		t.Fatalf("expected nothing queued, got %v", p)
	}
}
