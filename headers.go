package goSession

import (
	"net/http"
	"strings"
	"sync"
)

// HeaderAccumulator collects outgoing Set-Cookie values for one response and writes them
// exactly once, keeping only the last value queued for each cookie name.
//
// It also serves as the request cookie view handed to containers.
type HeaderAccumulator struct {
	mu      sync.Mutex
	req     *http.Request
	pending []string
	flushed bool
	metrics *Metrics
}

// NewHeaderAccumulator returns an accumulator reading request cookies from r. r may be nil.
func NewHeaderAccumulator(r *http.Request) *HeaderAccumulator {
	return &HeaderAccumulator{req: r}
}

// Cookie implements container.CookieJar.
func (h *HeaderAccumulator) Cookie(name string) (string, bool) {
	if h == nil || h.req == nil {
		return "", false
	}
	c, err := h.req.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// SetCookie implements container.CookieJar. Invalid cookies are dropped by net/http's
// serializer and never queued.
func (h *HeaderAccumulator) SetCookie(c *http.Cookie) {
	if c == nil {
		return
	}
	if v := c.String(); v != "" {
		h.Add(v)
	}
}

// Add queues a raw Set-Cookie header value.
func (h *HeaderAccumulator) Add(value string) {
	h.mu.Lock()
	h.pending = append(h.pending, value)
	h.mu.Unlock()
}

// Pending returns the queued values in order.
func (h *HeaderAccumulator) Pending() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.pending...)
}

// Flush merges the queued values with any Set-Cookie values already present in dst and
// replaces them with the deduplicated list. Later calls are no-ops and return false.
func (h *HeaderAccumulator) Flush(dst http.Header) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.flushed {
		return false
	}
	h.flushed = true

	all := append(append([]string(nil), dst.Values("Set-Cookie")...), h.pending...)
	h.pending = nil
	if len(all) == 0 {
		return true
	}

	out := DedupeSetCookie(all)
	if removed := len(all) - len(out); removed > 0 {
		h.metrics.Add(MetricHeaderDeduped, uint64(removed))
	}
	dst.Del("Set-Cookie")
	for _, v := range out {
		dst.Add("Set-Cookie", v)
	}
	return true
}

// Flushed reports whether Flush has run.
func (h *HeaderAccumulator) Flushed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushed
}

// DedupeSetCookie keeps the last value per cookie name, at the position of its last
// occurrence. Values without a name are kept as-is.
func DedupeSetCookie(values []string) []string {
	last := make(map[string]int, len(values))
	for i, v := range values {
		last[cookieName(v)] = i
	}
	out := make([]string, 0, len(last))
	for i, v := range values {
		name := cookieName(v)
		if name == "" || last[name] == i {
			out = append(out, v)
		}
	}
	return out
}

func cookieName(v string) string {
	name, _, ok := strings.Cut(v, "=")
	if !ok {
		return ""
	}
	return strings.TrimSpace(name)
}
