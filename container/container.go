package container

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrPayloadTooLarge is returned by backends with a hard size cap.
	ErrPayloadTooLarge = errors.New("session payload exceeds backend size limit")
	// ErrInvalidID is returned when a session id is unsafe for the backend's key space.
	ErrInvalidID = errors.New("invalid session id")
	// ErrNotInitialized is returned when a container is used before Init.
	ErrNotInitialized = errors.New("container not initialized")
)

// CookieJar gives containers access to the cookies of the current request and
// a way to queue outgoing ones. Outgoing cookies pass through header deduplication.
type CookieJar interface {
	Cookie(name string) (string, bool)
	SetCookie(c *http.Cookie)
}

// InitParams carries the per-request values a container needs.
type InitParams struct {
	SavePath string
	Name     string
	// Now is captured once per request; all expiry comparisons use it.
	Now     time.Time
	Cookies CookieJar
	// SecureCookies is the Secure attribute resolved for this request's host.
	SecureCookies bool
}

// Container is the uniform record contract every backend honors for one request.
//
// Get reports a miss as (nil, false, nil). Every other error is a backend fault.
// Delete of an absent id succeeds.
type Container interface {
	Init(ctx context.Context, p InitParams) error
	Get(ctx context.Context, id string) ([]byte, bool, error)
	Set(ctx context.Context, id string, payload []byte) (bool, error)
	Touch(ctx context.Context, id string, payload []byte) (bool, error)
	GC(ctx context.Context, maxLifetime time.Duration) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	Close() error
}

// Provider is the long-lived side of a backend. It owns pools and clients and hands
// out one Container per request. Implementations must be safe for concurrent use.
type Provider interface {
	NewContainer() Container
	Close() error
}

// PayloadStamper is implemented by containers that cannot expire records on their own
// and instead embed a timestamp inside the plaintext payload.
type PayloadStamper interface {
	StampPayload(plaintext []byte, now time.Time) ([]byte, error)
	PayloadLive(plaintext []byte, now time.Time) bool
}

// EncryptionRequired is implemented by providers that must never store plaintext.
type EncryptionRequired interface {
	RequiresEncryption() bool
}

// ValidID reports whether id is non-empty, at most 256 bytes, and drawn from
// [A-Za-z0-9,_-]. Backends that map ids onto paths or keys reject anything else.
func ValidID(id string) bool {
	if id == "" || len(id) > 256 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == ',':
		default:
			return false
		}
	}
	return true
}

// Live reports whether a record last accessed at lastAccessed is still valid at now.
func Live(lastAccessed, now time.Time, maxLifetime time.Duration) bool {
	return now.Sub(lastAccessed) < maxLifetime
}
