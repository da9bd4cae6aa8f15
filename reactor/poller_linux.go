//go:build linux
// +build linux

// File: reactor/poller_linux.go
// Author: momentics <momentics@gmail.com>
//
// Single-descriptor readiness wait over poll(2), used by blocking
// roundtrips where a full reactor would be overkill.

package reactor

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-wth/api"
	"golang.org/x/sys/unix"
)

// FDPoller implements api.Poller with poll(2).
type FDPoller struct{}

var _ api.Poller = FDPoller{}

// NewPoller returns the platform poller.
func NewPoller() api.Poller { return FDPoller{} }

// Wait blocks until fd reports one of events, or timeout elapses.
// A negative timeout blocks indefinitely. EINTR yields no events.
func (FDPoller) Wait(fd int, events api.PollEvents, timeout time.Duration) (api.PollEvents, error) {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLRDHUP}}
	if events&api.PollIn != 0 {
		pfd[0].Events |= unix.POLLIN
	}
	if events&api.PollOut != 0 {
		pfd[0].Events |= unix.POLLOUT
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	n, err := unix.Poll(pfd, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return 0, nil
	}

	var got api.PollEvents
	re := pfd[0].Revents
	if re&unix.POLLIN != 0 {
		got |= api.PollIn
	}
	if re&unix.POLLOUT != 0 {
		got |= api.PollOut
	}
	if re&(unix.POLLHUP|unix.POLLRDHUP) != 0 {
		got |= api.PollHup
	}
	if re&(unix.POLLERR|unix.POLLNVAL) != 0 {
		got |= api.PollErr
	}
	return got, nil
}
