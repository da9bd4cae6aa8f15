// File: protocol/options.go
// Package protocol defines functional options for Connection.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"github.com/momentics/hioload-wth/api"
	"github.com/op/go-logging"
)

// Option customizes connection initialization.
type Option func(*Connection)

// WithRingCapacity overrides the receive ring size in bytes.
func WithRingCapacity(n int) Option {
	return func(c *Connection) {
		c.ringCapacity = n
	}
}

// WithLogger replaces the package logger for this connection.
func WithLogger(l *logging.Logger) Option {
	return func(c *Connection) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m api.Metrics) Option {
	return func(c *Connection) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithPoller sets the readiness waiter used by Roundtrip.
func WithPoller(p api.Poller) Option {
	return func(c *Connection) {
		c.poller = p
	}
}

// WithIDReuse lets removed local ids be handed out again.
func WithIDReuse(on bool) Option {
	return func(c *Connection) {
		c.reuseIDs = on
	}
}
