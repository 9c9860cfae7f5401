package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/MrEthical07/goSession/container"
)

// SessionIDBytes is the entropy of a generated session id.
const SessionIDBytes = 32

// NewSessionID returns 256 random bits as 64 lowercase hex characters.
func NewSessionID() (string, error) {
	var raw [SessionIDBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("session id entropy: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}

// MinSessionIDLen rejects ids too short to carry 128 bits in base64url.
const MinSessionIDLen = 22

// WellFormedSessionID reports whether id could have come from a session id generator:
// hex or base64url, in the same alphabet containers accept. Malformed ids are never
// looked up.
func WellFormedSessionID(id string) bool {
	return len(id) >= MinSessionIDLen && container.ValidID(id)
}

// Fingerprint returns a short, non-reversible tag for id, safe to log.
func Fingerprint(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:6])
}

// NewKey returns n random bytes base64-encoded with standard padding.
func NewKey(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("key entropy: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
