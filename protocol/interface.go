// File: protocol/interface.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Interface descriptors. Requests travel client to server, events server to
// client; each direction has its own opcode table.

package protocol

import (
	"fmt"

	"github.com/momentics/hioload-wth/wire"
)

// MessageDesc describes one request or event.
//
// Signature letters: u uint, i int, f fixed, o object, n new_id, s string,
// a array. A '?' before o or s marks the argument nullable.
type MessageDesc struct {
	Name      string
	Signature string
}

// Interface describes an object type.
type Interface struct {
	Name     string
	Version  uint32
	Requests []MessageDesc
	Events   []MessageDesc
}

// incoming returns the table of messages the given side receives.
func (i *Interface) incoming(serverSide bool) []MessageDesc {
	if serverSide {
		return i.Requests
	}
	return i.Events
}

// checkArgs walks body against sig and reports the first malformed
// argument. It never invokes user code.
func checkArgs(sig string, body []byte) error {
	d := wire.NewDecoder(body)
	nullable := false
	for i := 0; i < len(sig); i++ {
		null := false
		switch sig[i] {
		case '?':
			nullable = true
			continue
		case 'u', 'i', 'f':
			d.Uint()
		case 'o':
			null = d.Object() == 0
		case 'n':
			d.NewID()
		case 's':
			_, ok := d.NullableString()
			null = !ok
		case 'a':
			d.Array()
		default:
			return fmt.Errorf("bad signature %q", sig)
		}
		if err := d.Err(); err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
		if null && !nullable {
			return fmt.Errorf("argument %d: %w", i, wire.ErrNullArgument)
		}
		nullable = false
	}
	return nil
}
