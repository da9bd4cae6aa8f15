//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"errors"
	"time"

	"github.com/momentics/hioload-wth/api"
)

var errUnsupported = errors.New("reactor: this platform is not supported")

// NewReactor returns an error for unsupported platforms.
func NewReactor() (Reactor, error) {
	return nil, errUnsupported
}

type stubPoller struct{}

func (stubPoller) Wait(int, api.PollEvents, time.Duration) (api.PollEvents, error) {
	return 0, errUnsupported
}

// NewPoller returns a poller that always fails.
func NewPoller() api.Poller { return stubPoller{} }
