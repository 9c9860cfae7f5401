// Package payload serializes session values to the byte form handed to the lifecycle
// coordinator, and answers the one question the coordinator asks about those bytes:
// whether they decode to an empty session.
package payload

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// TimestampKey is the field embedded by stamping backends (client-side cookie storage).
const TimestampKey = "_TS_"

// ErrMalformed is returned when bytes cannot be decoded into session values.
var ErrMalformed = errors.New("payload: malformed")

// Values is the decoded application view of a session.
type Values map[string]any

// Serializer converts between [Values] and stored bytes.
type Serializer interface {
	Encode(v Values) ([]byte, error)
	Decode(data []byte) (Values, error)
	// IsEmpty reports whether data decodes to an empty or default value. Undecodable
	// input is not empty.
	IsEmpty(data []byte) bool
}

// JSON is the default serializer.
type JSON struct {
	api sonic.API
}

// NewJSON returns a JSON serializer with sorted map keys, so unchanged values encode to
// identical bytes and lazy writes can be detected by byte comparison.
func NewJSON() *JSON {
	return &JSON{api: sonic.Config{SortMapKeys: true}.Froze()}
}

// Encode marshals v. A nil map encodes as {}.
func (j *JSON) Encode(v Values) ([]byte, error) {
	if v == nil {
		v = Values{}
	}
	data, err := j.api.Marshal(map[string]any(v))
	if err != nil {
		return nil, fmt.Errorf("payload: encode: %w", err)
	}
	return data, nil
}

// Decode unmarshals data. Empty input decodes to an empty map.
func (j *JSON) Decode(data []byte) (Values, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Values{}, nil
	}
	var out map[string]any
	if err := j.api.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return Values(out), nil
}

// IsEmpty reports true for "", "null" and "{}".
func (j *JSON) IsEmpty(data []byte) bool {
	v, err := j.Decode(data)
	if err != nil {
		return false
	}
	return len(v) == 0
}

// Stamp sets [TimestampKey] to now in the encoded values.
func Stamp(s Serializer, data []byte, now time.Time) ([]byte, error) {
	v, err := s.Decode(data)
	if err != nil {
		return nil, err
	}
	v[TimestampKey] = now.Unix()
	return s.Encode(v)
}

// StampedAt returns the embedded timestamp, if any.
func StampedAt(s Serializer, data []byte) (time.Time, bool) {
	v, err := s.Decode(data)
	if err != nil {
		return time.Time{}, false
	}
	switch ts := v[TimestampKey].(type) {
	case float64:
		return time.Unix(int64(ts), 0), true
	case int64:
		return time.Unix(ts, 0), true
	case int:
		return time.Unix(int64(ts), 0), true
	default:
		return time.Time{}, false
	}
}
