// Package cookiestore keeps the encrypted session payload in a second client cookie.
// The browser cannot be trusted to expire anything, so the store embeds the access
// time inside the plaintext under payload.TimestampKey and judges freshness from it.
//
// The store refuses to run without encryption; see [Store.RequiresEncryption].
package cookiestore

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/container"
	"github.com/MrEthical07/goSession/payload"
)

// MaxCookieBytes is the largest encrypted payload a single cookie may carry.
const MaxCookieBytes = 4096

// DefaultName is the data cookie name.
const DefaultName = "GOSESSDATA"

// Config configures the data cookie.
type Config struct {
	Name        string
	Path        string
	Domain      string
	HTTPOnly    bool
	SameSite    http.SameSite
	MaxLifetime time.Duration
	Serializer  payload.Serializer
}

// Store is the cookie backend provider.
type Store struct {
	cfg Config
}

// New returns a cookie store.
func New(cfg Config) *Store {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.Serializer == nil {
		cfg.Serializer = payload.NewJSON()
	}
	return &Store{cfg: cfg}
}

// RequiresEncryption implements container.EncryptionRequired.
func (s *Store) RequiresEncryption() bool { return true }

// NewContainer implements container.Provider.
func (s *Store) NewContainer() container.Container {
	return &conn{store: s}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// conn binds the data cookie to the id carried by the identity cookie, so a payload is
// only ever served for the session it was written under.
type conn struct {
	store  *Store
	jar    container.CookieJar
	secure bool
	owner  string
	value  []byte
	ready  bool
}

func (c *conn) Init(_ context.Context, p container.InitParams) error {
	c.jar = p.Cookies
	c.secure = p.SecureCookies
	c.owner, c.value = "", nil
	if c.jar != nil {
		if id, ok := c.jar.Cookie(p.Name); ok {
			c.owner = id
		}
		if v, ok := c.jar.Cookie(c.store.cfg.Name); ok && v != "" {
			c.value = []byte(v)
		}
	}
	c.ready = true
	return nil
}

// Get returns the data cookie when id owns it. The coordinator decrypts it and asks
// PayloadLive whether the embedded timestamp is still valid.
func (c *conn) Get(_ context.Context, id string) ([]byte, bool, error) {
	if !c.ready {
		return nil, false, container.ErrNotInitialized
	}
	if id != c.owner || len(c.value) == 0 {
		return nil, false, nil
	}
	return append([]byte(nil), c.value...), true, nil
}

func (c *conn) Set(_ context.Context, id string, ciphertext []byte) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	if len(ciphertext) > MaxCookieBytes {
		return false, fmt.Errorf("%w: %d bytes exceeds %d per cookie", container.ErrPayloadTooLarge, len(ciphertext), MaxCookieBytes)
	}
	c.owner = id
	c.value = append([]byte(nil), ciphertext...)
	if c.jar != nil {
		c.jar.SetCookie(&http.Cookie{
			Name:     c.store.cfg.Name,
			Value:    string(ciphertext),
			Path:     c.store.cfg.Path,
			Domain:   c.store.cfg.Domain,
			Secure:   c.secure,
			HttpOnly: c.store.cfg.HTTPOnly,
			SameSite: c.store.cfg.SameSite,
		})
	}
	return true, nil
}

// Touch re-issues the cookie with the freshly stamped payload.
func (c *conn) Touch(ctx context.Context, id string, ciphertext []byte) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	if id != c.owner || len(c.value) == 0 {
		return false, nil
	}
	return c.Set(ctx, id, ciphertext)
}

// GC has nothing to collect; stale cookies fail PayloadLive.
func (c *conn) GC(context.Context, time.Duration) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	return true, nil
}

// Delete forgets the cookie for the rest of the request. Expiring it in the browser is
// the coordinator's job.
func (c *conn) Delete(_ context.Context, id string) (bool, error) {
	if !c.ready {
		return false, container.ErrNotInitialized
	}
	if id == c.owner {
		c.value = nil
	}
	return true, nil
}

func (c *conn) Close() error {
	c.ready = false
	c.value = nil
	return nil
}

// StampPayload implements container.PayloadStamper.
func (c *conn) StampPayload(plain []byte, now time.Time) ([]byte, error) {
	return payload.Stamp(c.store.cfg.Serializer, plain, now)
}

// PayloadLive implements container.PayloadStamper. A payload without a timestamp is
// never live.
func (c *conn) PayloadLive(plain []byte, now time.Time) bool {
	at, ok := payload.StampedAt(c.store.cfg.Serializer, plain)
	if !ok {
		return false
	}
	if c.store.cfg.MaxLifetime <= 0 {
		return true
	}
	return container.Live(at, now, c.store.cfg.MaxLifetime)
}
