// File: protocol/object.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Object is the addressable protocol entity. Its operation table is a
// listener on the client (events) or an implementation on the server
// (requests); typed wrappers such as Display build the table from
// strongly typed callbacks.

package protocol

import (
	"fmt"

	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/wire"
)

// Operation handles one incoming message addressed to obj. args holds the
// message body positioned at the first argument.
type Operation func(obj *Object, args *wire.Decoder) error

// OperationTable is indexed by opcode. Nil entries reject the opcode.
type OperationTable []Operation

// Object is one live protocol entity bound to a connection.
type Object struct {
	id       uint32
	conn     *Connection
	iface    *Interface
	table    OperationTable
	userData any
	deleted  bool
}

// NewObject creates an object with a locally allocated id.
func NewObject(conn *Connection, iface *Interface) (*Object, error) {
	o := &Object{conn: conn, iface: iface}
	id, err := conn.objects.InsertNew(o, 0)
	if err != nil {
		return nil, err
	}
	o.id = id
	return o, nil
}

// NewObjectWithID creates an object under an id chosen by the peer. The
// slot is reserved first so the id cannot be claimed twice.
func NewObjectWithID(conn *Connection, iface *Interface, id uint32) (*Object, error) {
	if err := conn.objects.Reserve(id); err != nil {
		return nil, fmt.Errorf("new %s@%d: %w", iface.Name, id, err)
	}
	o := &Object{id: id, conn: conn, iface: iface}
	if err := conn.objects.InsertAt(id, o, 0); err != nil {
		conn.objects.Remove(id)
		return nil, fmt.Errorf("new %s@%d: %w", iface.Name, id, err)
	}
	return o, nil
}

// ID returns the object id.
func (o *Object) ID() uint32 { return o.id }

// Interface returns the object type.
func (o *Object) Interface() *Interface { return o.iface }

// Connection returns the owning connection.
func (o *Object) Connection() *Connection { return o.conn }

// UserData returns the value bound with SetTable.
func (o *Object) UserData() any { return o.userData }

// Deleted reports whether Delete was called.
func (o *Object) Deleted() bool { return o.deleted }

func (o *Object) String() string {
	return fmt.Sprintf("%s@%d", o.iface.Name, o.id)
}

// SetTable binds the operation table once. Rebinding is a usage error.
func (o *Object) SetTable(table OperationTable, userData any) error {
	if o.table != nil {
		o.conn.log.Warningf("%s: operation table already set", o)
		return fmt.Errorf("%s: %w", o, api.ErrTableAlreadySet)
	}
	o.table = table
	o.userData = userData
	return nil
}

// Delete removes the id map entry, then drops the object. Messages still
// in flight for this id will no longer resolve.
//
// On the client an id from its own namespace stays held until the server
// confirms with delete_id, so it is never handed out again while the
// server may still address it.
func (o *Object) Delete() {
	if o.deleted {
		return
	}
	if cur, ok := o.conn.objects.Lookup(o.id); ok && cur == o {
		if o.conn.side == api.SideClient {
			o.conn.objects.Hold(o.id)
		} else {
			o.conn.objects.Remove(o.id)
		}
	}
	o.deleted = true
	o.table = nil
	o.userData = nil
}

// Post encodes one outgoing message from this object and writes it.
// build appends the arguments; it may be nil for argument-less messages.
func (o *Object) Post(opcode uint16, build func(e *wire.Encoder)) error {
	if o.deleted {
		return fmt.Errorf("%s: post on deleted object: %w", o, api.ErrNotFound)
	}
	e := wire.NewEncoder(o.id, opcode)
	defer e.Release()
	if build != nil {
		build(e)
	}
	b, err := e.Bytes()
	if err != nil {
		return fmt.Errorf("%s opcode %d: %w", o, opcode, err)
	}
	return o.conn.write(b)
}

// PostError sends an error event for this object through the display and
// moves the connection into the sticky protocol error state. Server only;
// the connection must stay open afterwards so the event reaches the peer.
func (o *Object) PostError(code uint32, format string, args ...any) error {
	if err := o.conn.require(api.SideServer, "PostError"); err != nil {
		return err
	}
	return o.conn.postError(o.id, o.iface.Name, code, fmt.Sprintf(format, args...))
}
