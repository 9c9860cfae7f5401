package goSession

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/codec"
	"github.com/MrEthical07/goSession/container"
)

var (
	// ErrInvalidConfig is returned by Config.Validate and Builder.Build.
	ErrInvalidConfig = errors.New("invalid session config")
	// ErrBackendFailure marks any storage error. It is fatal for the request.
	ErrBackendFailure = errors.New("session backend failure")
	// ErrPayloadTooLarge is returned when the backend cannot hold the encrypted payload.
	ErrPayloadTooLarge = errors.New("session payload too large")
	// ErrCodecFailure is returned when a payload cannot be encrypted or encoded.
	ErrCodecFailure = errors.New("session codec failure")
	// ErrReadOnly is returned when a read-only session is modified.
	ErrReadOnly = errors.New("session is read-only")
	// ErrSessionClosed is returned when a committed session is used again.
	ErrSessionClosed = errors.New("session already closed")
	// ErrNotOpen is returned when a handler callback runs outside Open/Close.
	ErrNotOpen = errors.New("session handler not open")
	// ErrIDSpaceExhausted is returned when id generation keeps colliding.
	ErrIDSpaceExhausted = errors.New("session id generation exhausted")
)

// ErrorKind classifies coordinator errors.
type ErrorKind uint8

const (
	// ErrorKindConfig is an invalid or inconsistent configuration.
	ErrorKindConfig ErrorKind = iota + 1
	// ErrorKindBackend is an I/O or protocol failure of the storage backend.
	ErrorKindBackend
	// ErrorKindPayloadTooLarge is a backend size cap violation.
	ErrorKindPayloadTooLarge
	// ErrorKindCodec is an encryption or serialization failure.
	ErrorKindCodec
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindConfig:
		return "config"
	case ErrorKindBackend:
		return "backend"
	case ErrorKindPayloadTooLarge:
		return "payload_too_large"
	case ErrorKindCodec:
		return "codec"
	default:
		return "unknown"
	}
}

// Error is the error type returned by [Handler] operations.
type Error struct {
	Kind ErrorKind
	// Op is the protocol operation that failed, e.g. "write".
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gosession: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case ErrorKindConfig:
		return ErrInvalidConfig
	case ErrorKindPayloadTooLarge:
		return ErrPayloadTooLarge
	case ErrorKindCodec:
		return ErrCodecFailure
	default:
		return ErrBackendFailure
	}
}

// IsFatal reports whether err must abort the request. Every [*Error] is fatal.
func IsFatal(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

func backendErr(op string, err error) error {
	if errors.Is(err, container.ErrPayloadTooLarge) {
		return &Error{Kind: ErrorKindPayloadTooLarge, Op: op, Err: err}
	}
	return &Error{Kind: ErrorKindBackend, Op: op, Err: err}
}

func codecErr(op string, err error) error {
	return &Error{Kind: ErrorKindCodec, Op: op, Err: err}
}

func configErr(format string, args ...any) error {
	return &Error{Kind: ErrorKindConfig, Op: "config", Err: fmt.Errorf(format, args...)}
}

// decryptMiss reports whether err is a decryption failure that the coordinator treats
// as a missing record rather than a backend fault.
func decryptMiss(err error) bool {
	return errors.Is(err, codec.ErrDecrypt)
}
