// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error classification for hioload-wth.

package api

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Common errors used across the library.
var (
	ErrAgain            = fmt.Errorf("resource temporarily unavailable")
	ErrTransportClosed  = fmt.Errorf("transport is closed")
	ErrConnectionClosed = fmt.Errorf("connection closed by peer")
	ErrProtocol         = fmt.Errorf("protocol error")
	ErrWrongSide        = fmt.Errorf("operation not permitted on this connection side")
	ErrTableAlreadySet  = fmt.Errorf("operation table already set")
	ErrInvalidArgument  = fmt.Errorf("invalid argument")
	ErrAlreadyExists    = fmt.Errorf("resource already exists")
	ErrNotFound         = fmt.Errorf("resource not found")
	ErrReentrant        = fmt.Errorf("call not allowed from inside a dispatch handler")
)

// IsTransient reports whether err only means "retry after readiness".
func IsTransient(err error) bool {
	return errors.Is(err, ErrAgain) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, unix.EINTR)
}

// ProtocolError is the sticky, interface-defined failure of a connection.
// It remembers which object triggered it and the interface error code.
type ProtocolError struct {
	ObjectID  uint32
	Interface string
	Code      uint32
	Message   string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("protocol error %d on %s@%d", e.Code, e.Interface, e.ObjectID)
	}
	return fmt.Sprintf("protocol error %d on %s@%d: %s", e.Code, e.Interface, e.ObjectID, e.Message)
}

// Is makes every ProtocolError match ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}
