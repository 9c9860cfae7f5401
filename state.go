package goSession

import "time"

// State is the coordinator's position in the request lifecycle.
type State uint8

const (
	// StateUnopened is the state before Open and after Close.
	StateUnopened State = iota
	// StateValidating follows a successful Open.
	StateValidating
	// StateFound means ValidateID located a live record.
	StateFound
	// StateNotFound means ValidateID missed. It replaces the classic "spam" flag.
	StateNotFound
	// StateActive follows Read.
	StateActive
	// StateClosed is set while Close runs.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateValidating:
		return "validating"
	case StateFound:
		return "found"
	case StateNotFound:
		return "not_found"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type dataFound uint8

const (
	foundUnknown dataFound = iota
	foundYes
	foundNo
)

// sessionState is owned by one Handler for one request.
type sessionState struct {
	sessionID        string
	cachedPayload    []byte
	found            dataFound
	regenerating     bool
	timestampUpdated bool
	state            State
	now              time.Time
}

func (s *sessionState) reset() {
	*s = sessionState{}
}
