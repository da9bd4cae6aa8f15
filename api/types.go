// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// Side tells which end of a connection the local peer is.
// It is fixed when the connection is created.
type Side int

const (
	SideClient Side = iota
	SideServer
)

func (s Side) String() string {
	switch s {
	case SideClient:
		return "client"
	case SideServer:
		return "server"
	default:
		return "unknown"
	}
}

// State enumerates the error state of a connection.
type State int

const (
	// StateActive means no error has been recorded.
	StateActive State = iota
	// StateSoftError records a fatal transport failure (not EAGAIN).
	StateSoftError
	// StateProtocolError is sticky; it is never downgraded.
	StateProtocolError
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSoftError:
		return "soft-error"
	case StateProtocolError:
		return "protocol-error"
	default:
		return "unknown"
	}
}

// PollEvents is a readiness bit set.
type PollEvents uint32

const (
	PollIn PollEvents = 1 << iota
	PollOut
	PollHup
	PollErr
)
