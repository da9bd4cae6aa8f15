// File: protocol/display.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// wth_display: the connection singleton at id 1. It carries the sync
// primitive, registry creation, error reporting and id deletion.

package protocol

import (
	"fmt"

	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/internal/idmap"
	"github.com/momentics/hioload-wth/wire"
)

// DisplayID is the well-known id of the display on every connection.
const DisplayID uint32 = 1

// Display error codes carried by the error event.
const (
	DisplayErrorInvalidObject  uint32 = 0
	DisplayErrorInvalidMethod  uint32 = 1
	DisplayErrorNoMemory       uint32 = 2
	DisplayErrorImplementation uint32 = 3
)

// Display request opcodes.
const (
	DisplayClientVersion uint16 = 0
	DisplaySync          uint16 = 1
	DisplayGetRegistry   uint16 = 2
)

// Display event opcodes.
const (
	DisplayError         uint16 = 0
	DisplayDeleteID      uint16 = 1
	DisplayServerVersion uint16 = 2
)

// DisplayInterface describes wth_display.
var DisplayInterface = &Interface{
	Name:    "wth_display",
	Version: 1,
	Requests: []MessageDesc{
		{Name: "client_version", Signature: "u"},
		{Name: "sync", Signature: "n"},
		{Name: "get_registry", Signature: "n"},
	},
	Events: []MessageDesc{
		{Name: "error", Signature: "ous"},
		{Name: "delete_id", Signature: "u"},
		{Name: "server_version", Signature: "u"},
	},
}

// Display is the typed handle of the display object.
type Display struct {
	*Object
}

func newDisplay(c *Connection) (*Display, error) {
	var (
		o   *Object
		err error
	)
	if c.side == api.SideClient {
		o, err = NewObject(c, DisplayInterface)
		if err == nil && o.ID() != DisplayID {
			err = fmt.Errorf("display got id %d", o.ID())
		}
	} else {
		o, err = NewObjectWithID(c, DisplayInterface, DisplayID)
	}
	if err != nil {
		return nil, err
	}
	d := &Display{Object: o}
	if c.side == api.SideClient {
		err = d.SetTable(d.listenerTable(), nil)
	} else {
		err = d.SetTable(d.implementationTable(), nil)
	}
	return d, err
}

// require rejects calls made from the wrong end of the connection.
func (c *Connection) require(side api.Side, op string) error {
	if c.side != side {
		c.log.Criticalf("%s is %s-only, called on the %s side", op, side, c.side)
		return fmt.Errorf("%s: %w", op, api.ErrWrongSide)
	}
	return nil
}

// ClientVersion announces the client protocol version.
func (d *Display) ClientVersion(version uint32) error {
	if err := d.conn.require(api.SideClient, "display.client_version"); err != nil {
		return err
	}
	return d.Post(DisplayClientVersion, func(e *wire.Encoder) { e.Uint(version) })
}

// Sync asks the server to answer with done on the returned callback once
// every earlier request has been processed.
func (d *Display) Sync() (*Callback, error) {
	if err := d.conn.require(api.SideClient, "display.sync"); err != nil {
		return nil, err
	}
	o, err := NewObject(d.conn, CallbackInterface)
	if err != nil {
		return nil, err
	}
	if err := d.Post(DisplaySync, func(e *wire.Encoder) { e.NewID(o.ID()) }); err != nil {
		o.Delete()
		return nil, err
	}
	return &Callback{Object: o}, nil
}

// GetRegistry creates a registry that receives the server's globals.
func (d *Display) GetRegistry() (*Registry, error) {
	if err := d.conn.require(api.SideClient, "display.get_registry"); err != nil {
		return nil, err
	}
	o, err := NewObject(d.conn, RegistryInterface)
	if err != nil {
		return nil, err
	}
	if err := d.Post(DisplayGetRegistry, func(e *wire.Encoder) { e.NewID(o.ID()) }); err != nil {
		o.Delete()
		return nil, err
	}
	return &Registry{Object: o}, nil
}

// Error sends the error event about objectID.
func (d *Display) Error(objectID, code uint32, message string) error {
	if err := d.conn.require(api.SideServer, "display.error"); err != nil {
		return err
	}
	return d.Post(DisplayError, func(e *wire.Encoder) {
		e.Object(objectID).Uint(code).String(message)
	})
}

// DeleteID confirms that id is no longer in use.
func (d *Display) DeleteID(id uint32) error {
	if err := d.conn.require(api.SideServer, "display.delete_id"); err != nil {
		return err
	}
	return d.Post(DisplayDeleteID, func(e *wire.Encoder) { e.Uint(id) })
}

// ServerVersion announces the server protocol version.
func (d *Display) ServerVersion(version uint32) error {
	if err := d.conn.require(api.SideServer, "display.server_version"); err != nil {
		return err
	}
	return d.Post(DisplayServerVersion, func(e *wire.Encoder) { e.Uint(version) })
}

// implementationTable handles client requests on the server.
func (d *Display) implementationTable() OperationTable {
	c := d.conn
	return OperationTable{
		DisplayClientVersion: func(_ *Object, args *wire.Decoder) error {
			v := args.Uint()
			if err := args.Err(); err != nil {
				return err
			}
			c.clientVersion = v
			return nil
		},
		DisplaySync: func(_ *Object, args *wire.Decoder) error {
			id := args.NewID()
			if err := args.Err(); err != nil {
				return err
			}
			o, err := NewObjectWithID(c, CallbackInterface, id)
			if err != nil {
				return err
			}
			cb := &Callback{Object: o}
			serial := c.syncSerial
			c.syncSerial++
			if err := cb.Done(serial); err != nil {
				return err
			}
			cb.Delete()
			return d.DeleteID(id)
		},
		DisplayGetRegistry: func(_ *Object, args *wire.Decoder) error {
			id := args.NewID()
			if err := args.Err(); err != nil {
				return err
			}
			o, err := NewObjectWithID(c, RegistryInterface, id)
			if err != nil {
				return err
			}
			r := &Registry{Object: o}
			if err := r.SetTable(r.implementationTable(), nil); err != nil {
				return err
			}
			c.registries = append(c.registries, r)
			for _, g := range c.globals {
				if err := r.Global(g.name, g.iface.Name, g.version); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// listenerTable handles server events on the client.
func (d *Display) listenerTable() OperationTable {
	c := d.conn
	return OperationTable{
		DisplayError: func(_ *Object, args *wire.Decoder) error {
			objectID := args.Object()
			code := args.Uint()
			msg := args.String()
			if err := args.Err(); err != nil {
				return err
			}
			iface := "unknown"
			if o := c.Object(objectID); o != nil {
				iface = o.iface.Name
			}
			c.setProtocolError(objectID, iface, code, msg)
			return nil
		},
		DisplayDeleteID: func(_ *Object, args *wire.Decoder) error {
			id := args.Uint()
			if err := args.Err(); err != nil {
				return err
			}
			if idmap.IsServerID(id) {
				return nil
			}
			if o := c.Object(id); o != nil {
				o.Delete()
			}
			// Only now may the id be allocated again.
			c.objects.Remove(id)
			return nil
		},
		DisplayServerVersion: func(_ *Object, args *wire.Decoder) error {
			v := args.Uint()
			if err := args.Err(); err != nil {
				return err
			}
			c.serverVersion = v
			return nil
		},
	}
}
