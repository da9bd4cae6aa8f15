// File: protocol/roundtrip.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/momentics/hioload-wth/api"
)

// Roundtrip blocks until the server has processed every request sent so
// far. It sends sync and then alternates flush, poll, read and dispatch
// until the callback fires, the connection breaks, or ctx is done.
//
// ctx is checked between poll iterations; the wait itself uses the
// connection's Poller with no timeout. A peer hang-up before done yields
// api.ErrConnectionClosed.
func (c *Connection) Roundtrip(ctx context.Context) (err error) {
	if err := c.require(api.SideClient, "Roundtrip"); err != nil {
		return err
	}
	if c.destroyed {
		return api.ErrTransportClosed
	}
	if c.dispatching {
		return fmt.Errorf("roundtrip: %w", api.ErrReentrant)
	}
	defer func() { c.metrics.Roundtrip(err == nil) }()

	// Messages framed before the call must be handled before reading more.
	if c.reader.Len() > 0 {
		if _, err := c.Dispatch(); err != nil {
			return err
		}
	}
	if err := c.Err(); err != nil {
		return err
	}

	cb, err := c.display.Sync()
	if err != nil {
		return err
	}
	done := false
	if err := cb.SetListener(&CallbackListener{
		Done: func(cb *Callback, _ uint32) {
			done = true
			cb.Delete()
		},
	}, nil); err != nil {
		return err
	}
	defer func() {
		if !done {
			cb.Delete()
		}
	}()

	for !done {
		if err := ctx.Err(); err != nil {
			return err
		}

		want := api.PollIn
		if ferr := c.Flush(); ferr != nil {
			if !errors.Is(ferr, api.ErrAgain) {
				return ferr
			}
			want |= api.PollOut
		}

		ev, err := c.poller.Wait(c.Fd(), want, -1)
		if err != nil {
			return err
		}
		if ev&(api.PollIn|api.PollHup|api.PollErr) == 0 {
			continue
		}

		rerr := c.Read()
		if _, derr := c.Dispatch(); done {
			break
		} else if derr != nil {
			return derr
		}
		switch {
		case rerr == nil:
		case errors.Is(rerr, api.ErrAgain):
			if ev&api.PollHup != 0 {
				// Hang-up and nothing left to read: done will never come.
				return api.ErrConnectionClosed
			}
		default:
			return rerr
		}
	}
	return nil
}
