// File: protocol/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// wthp_registry advertises the server's globals and binds client objects
// to them.

package protocol

import (
	"fmt"

	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/wire"
)

// Registry opcodes.
const (
	RegistryBind uint16 = 0

	RegistryGlobal       uint16 = 0
	RegistryGlobalRemove uint16 = 1
)

// RegistryInterface describes wthp_registry.
var RegistryInterface = &Interface{
	Name:    "wthp_registry",
	Version: 1,
	Requests: []MessageDesc{
		{Name: "bind", Signature: "usun"},
	},
	Events: []MessageDesc{
		{Name: "global", Signature: "usu"},
		{Name: "global_remove", Signature: "u"},
	},
}

// BindFunc is called on the server when a client binds a global. obj is
// already registered under the client-chosen id.
type BindFunc func(obj *Object, version uint32) error

// Global is an object type the server offers through the registry.
type Global struct {
	name    uint32
	iface   *Interface
	version uint32
	bind    BindFunc
	removed bool
}

// Name returns the registry name of g.
func (g *Global) Name() uint32 { return g.name }

// Interface returns the advertised type.
func (g *Global) Interface() *Interface { return g.iface }

// AddGlobal offers iface up to version. Existing registries are told
// immediately; later ones receive it on creation.
func (c *Connection) AddGlobal(iface *Interface, version uint32, bind BindFunc) (*Global, error) {
	if err := c.require(api.SideServer, "AddGlobal"); err != nil {
		return nil, err
	}
	if iface == nil || version == 0 || version > iface.Version {
		return nil, fmt.Errorf("AddGlobal: bad interface or version: %w", api.ErrInvalidArgument)
	}
	c.nextGlobal++
	g := &Global{name: c.nextGlobal, iface: iface, version: version, bind: bind}
	c.globals = append(c.globals, g)
	for _, r := range c.liveRegistries() {
		if err := r.Global(g.name, iface.Name, version); err != nil {
			return g, err
		}
	}
	return g, nil
}

// RemoveGlobal withdraws g and notifies every registry.
func (c *Connection) RemoveGlobal(g *Global) error {
	if err := c.require(api.SideServer, "RemoveGlobal"); err != nil {
		return err
	}
	for i, cur := range c.globals {
		if cur == g {
			c.globals = append(c.globals[:i], c.globals[i+1:]...)
			g.removed = true
			for _, r := range c.liveRegistries() {
				if err := r.GlobalRemove(g.name); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return fmt.Errorf("global %d: %w", g.name, api.ErrNotFound)
}

// liveRegistries prunes deleted registries and returns the rest.
func (c *Connection) liveRegistries() []*Registry {
	live := c.registries[:0]
	for _, r := range c.registries {
		if !r.Deleted() {
			live = append(live, r)
		}
	}
	c.registries = live
	return live
}

func (c *Connection) global(name uint32) *Global {
	for _, g := range c.globals {
		if g.name == name {
			return g
		}
	}
	return nil
}

// Registry is the typed handle of a wthp_registry object.
type Registry struct {
	*Object
}

// RegistryListener receives registry events on the client.
type RegistryListener struct {
	Global       func(r *Registry, name uint32, iface string, version uint32)
	GlobalRemove func(r *Registry, name uint32)
}

// SetListener binds l. It may only be called once.
func (r *Registry) SetListener(l *RegistryListener, userData any) error {
	if err := r.conn.require(api.SideClient, "registry.set_listener"); err != nil {
		return err
	}
	return r.SetTable(OperationTable{
		RegistryGlobal: func(_ *Object, args *wire.Decoder) error {
			name := args.Uint()
			iface := args.String()
			version := args.Uint()
			if err := args.Err(); err != nil {
				return err
			}
			if l.Global != nil {
				l.Global(r, name, iface, version)
			}
			return nil
		},
		RegistryGlobalRemove: func(_ *Object, args *wire.Decoder) error {
			name := args.Uint()
			if err := args.Err(); err != nil {
				return err
			}
			if l.GlobalRemove != nil {
				l.GlobalRemove(r, name)
			}
			return nil
		},
	}, userData)
}

// Bind creates a client object of iface bound to the global name.
func (r *Registry) Bind(name uint32, iface *Interface, version uint32) (*Object, error) {
	if err := r.conn.require(api.SideClient, "registry.bind"); err != nil {
		return nil, err
	}
	o, err := NewObject(r.conn, iface)
	if err != nil {
		return nil, err
	}
	err = r.Post(RegistryBind, func(e *wire.Encoder) {
		e.Uint(name).String(iface.Name).Uint(version).NewID(o.ID())
	})
	if err != nil {
		o.Delete()
		return nil, err
	}
	return o, nil
}

// Global sends the global event.
func (r *Registry) Global(name uint32, iface string, version uint32) error {
	if err := r.conn.require(api.SideServer, "registry.global"); err != nil {
		return err
	}
	return r.Post(RegistryGlobal, func(e *wire.Encoder) {
		e.Uint(name).String(iface).Uint(version)
	})
}

// GlobalRemove sends the global_remove event.
func (r *Registry) GlobalRemove(name uint32) error {
	if err := r.conn.require(api.SideServer, "registry.global_remove"); err != nil {
		return err
	}
	return r.Post(RegistryGlobalRemove, func(e *wire.Encoder) { e.Uint(name) })
}

// implementationTable handles bind on the server.
func (r *Registry) implementationTable() OperationTable {
	c := r.conn
	return OperationTable{
		RegistryBind: func(_ *Object, args *wire.Decoder) error {
			name := args.Uint()
			ifaceName := args.String()
			version := args.Uint()
			id := args.NewID()
			if err := args.Err(); err != nil {
				return err
			}
			g := c.global(name)
			switch {
			case g == nil:
				return fmt.Errorf("%w: no global %d", ErrBadObject, name)
			case g.iface.Name != ifaceName:
				return fmt.Errorf("%w: global %d is %s, not %s", ErrBadObject, name, g.iface.Name, ifaceName)
			case version == 0 || version > g.version:
				return fmt.Errorf("%w: %s version %d unsupported (max %d)", ErrBadObject, ifaceName, version, g.version)
			}
			o, err := NewObjectWithID(c, g.iface, id)
			if err != nil {
				return err
			}
			if g.bind != nil {
				return g.bind(o, version)
			}
			return nil
		},
	}
}
