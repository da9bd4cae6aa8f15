// File: protocol/callback.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/wire"
)

// CallbackDone is the opcode of the done event.
const CallbackDone uint16 = 0

// CallbackInterface describes wthp_callback, a one-shot completion.
var CallbackInterface = &Interface{
	Name:    "wthp_callback",
	Version: 1,
	Events: []MessageDesc{
		{Name: "done", Signature: "u"},
	},
}

// Callback is the typed handle of a wthp_callback object.
type Callback struct {
	*Object
}

// CallbackListener receives callback events on the client.
type CallbackListener struct {
	Done func(cb *Callback, data uint32)
}

// SetListener binds l. It may only be called once.
func (cb *Callback) SetListener(l *CallbackListener, userData any) error {
	if err := cb.conn.require(api.SideClient, "callback.set_listener"); err != nil {
		return err
	}
	return cb.SetTable(OperationTable{
		CallbackDone: func(_ *Object, args *wire.Decoder) error {
			data := args.Uint()
			if err := args.Err(); err != nil {
				return err
			}
			if l.Done != nil {
				l.Done(cb, data)
			}
			return nil
		},
	}, userData)
}

// Done sends the done event.
func (cb *Callback) Done(data uint32) error {
	if err := cb.conn.require(api.SideServer, "callback.done"); err != nil {
		return err
	}
	return cb.Post(CallbackDone, func(e *wire.Encoder) { e.Uint(data) })
}
