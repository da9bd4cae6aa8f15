// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"time"

	"github.com/momentics/hioload-wth/api"
)

// Poller is a scripted api.Poller. Each Wait calls Step with the iteration
// number, which lets a test drive the remote peer between the local side's
// poll iterations without any goroutines.
type Poller struct {
	Step  func(iter int, fd int, want api.PollEvents) (api.PollEvents, error)
	Waits int
}

var _ api.Poller = (*Poller)(nil)

// Wait implements api.Poller.
func (p *Poller) Wait(fd int, events api.PollEvents, _ time.Duration) (api.PollEvents, error) {
	p.Waits++
	if p.Step == nil {
		return events, nil
	}
	return p.Step(p.Waits, fd, events)
}
