// File: api/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Metrics receives connection level counters.
// Implementations must be safe for use by many connections at once.
type Metrics interface {
	BytesRead(n int)
	BytesWritten(n int)
	MessagesDispatched(n int)
	MessagesDiscarded(n int)
	ProtocolError(side Side)
	Roundtrip(ok bool)
	ConnectionOpened(side Side)
	ConnectionClosed(side Side)
	BytesForwarded(n int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) BytesRead(int)          {}
func (NopMetrics) BytesWritten(int)       {}
func (NopMetrics) MessagesDispatched(int) {}
func (NopMetrics) MessagesDiscarded(int)  {}
func (NopMetrics) ProtocolError(Side)     {}
func (NopMetrics) Roundtrip(bool)         {}
func (NopMetrics) ConnectionOpened(Side)  {}
func (NopMetrics) ConnectionClosed(Side)  {}
func (NopMetrics) BytesForwarded(int)     {}
