// File: protocol/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Incoming message routing. Requests and events are looked up in separate
// per-interface tables keyed purely by opcode.

package protocol

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/internal/ring"
	"github.com/momentics/hioload-wth/wire"
)

// ErrBadObject is returned by operations that receive an object argument
// or new id they cannot honour. It is reported as invalid_object.
var ErrBadObject = errors.New("protocol: invalid object argument")

var (
	errUnknownObject = errors.New("unknown object")
	errBadOpcode     = errors.New("invalid opcode")
)

// DispatchError describes a rejected incoming message.
type DispatchError struct {
	ObjectID  uint32
	Interface string
	Opcode    uint16
	Code      uint32
	Err       error
}

func (e *DispatchError) Error() string {
	iface := e.Interface
	if iface == "" {
		iface = "?"
	}
	return fmt.Sprintf("%s@%d opcode %d: %v", iface, e.ObjectID, e.Opcode, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// classify maps an operation failure to a display error code.
func classify(err error) uint32 {
	switch {
	case errors.Is(err, ErrBadObject), errors.Is(err, api.ErrAlreadyExists),
		errors.Is(err, api.ErrWrongSide):
		return DisplayErrorInvalidObject
	case errors.Is(err, wire.ErrShortBody), errors.Is(err, wire.ErrBadString),
		errors.Is(err, wire.ErrNullArgument):
		return DisplayErrorInvalidMethod
	default:
		return DisplayErrorImplementation
	}
}

// dispatchOne routes one message. It reports whether an operation ran.
func (c *Connection) dispatchOne(m ring.Message) bool {
	id, opcode := m.Header.ID, m.Header.Opcode

	obj := c.Object(id)
	if obj == nil {
		c.reject(&DispatchError{ObjectID: id, Opcode: opcode,
			Code: DisplayErrorInvalidObject, Err: errUnknownObject})
		return false
	}

	descs := obj.iface.incoming(c.side == api.SideServer)
	op := int(opcode)
	if op >= len(descs) || op >= len(obj.table) || obj.table[op] == nil {
		c.reject(&DispatchError{ObjectID: id, Interface: obj.iface.Name, Opcode: opcode,
			Code: DisplayErrorInvalidMethod, Err: errBadOpcode})
		return false
	}
	if err := checkArgs(descs[op].Signature, m.Body); err != nil {
		c.reject(&DispatchError{ObjectID: id, Interface: obj.iface.Name, Opcode: opcode,
			Code: DisplayErrorInvalidMethod, Err: fmt.Errorf("%s: %w", descs[op].Name, err)})
		return false
	}

	c.log.Debugf("%s -> %s.%s (%d bytes)", c.side, obj, descs[op].Name, m.Header.Size)
	if err := obj.table[op](obj, wire.NewDecoder(m.Body)); err != nil {
		if errors.Is(err, api.ErrProtocol) {
			// The operation already recorded the error.
			return true
		}
		c.reject(&DispatchError{ObjectID: id, Interface: obj.iface.Name, Opcode: opcode,
			Code: classify(err), Err: fmt.Errorf("%s: %w", descs[op].Name, err)})
	}
	return true
}

// reject posts invalid_object/invalid_method on the server, which makes the
// connection unusable, and merely drops the message on the client.
func (c *Connection) reject(e *DispatchError) {
	c.metrics.MessagesDiscarded(1)
	if c.side == api.SideServer {
		_ = c.postError(e.ObjectID, e.Interface, e.Code, e.Error())
		return
	}
	c.log.Warningf("discarding message: %v", e)
}
