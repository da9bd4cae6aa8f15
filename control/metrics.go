// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors behind the api.Metrics contract. One Metrics value
// is shared by every connection and relay session of a process.

package control

import (
	"github.com/momentics/hioload-wth/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsOptions configures NewMetrics.
type MetricsOptions struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption mutates MetricsOptions.
type MetricsOption func(*MetricsOptions)

// WithNamespace sets the metrics namespace.
func WithNamespace(ns string) MetricsOption {
	return func(o *MetricsOptions) { o.Namespace = ns }
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(s string) MetricsOption {
	return func(o *MetricsOptions) { o.Subsystem = s }
}

// WithConstLabels adds constant labels to every collector.
func WithConstLabels(l prometheus.Labels) MetricsOption {
	return func(o *MetricsOptions) { o.ConstLabels = l }
}

// WithRegistry registers the collectors with r instead of the default.
func WithRegistry(r prometheus.Registerer) MetricsOption {
	return func(o *MetricsOptions) { o.Registry = r }
}

// Metrics implements api.Metrics with Prometheus collectors.
type Metrics struct {
	bytesRead      prometheus.Counter
	bytesWritten   prometheus.Counter
	bytesForwarded prometheus.Counter
	dispatched     prometheus.Counter
	discarded      prometheus.Counter
	protocolErrors *prometheus.CounterVec
	roundtrips     *prometheus.CounterVec
	connections    *prometheus.GaugeVec
}

var _ api.Metrics = (*Metrics)(nil)

// NewMetrics creates and registers the collectors. Registering twice with
// the same registry panics, as with any promauto collector.
func NewMetrics(opts ...MetricsOption) *Metrics {
	o := MetricsOptions{
		Namespace: "wth",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	f := promauto.With(o.Registry)

	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: o.Namespace, Subsystem: o.Subsystem,
			Name: name, Help: help, ConstLabels: o.ConstLabels,
		})
	}
	return &Metrics{
		bytesRead:      counter("bytes_read_total", "Bytes received from sockets"),
		bytesWritten:   counter("bytes_written_total", "Bytes written to sockets by connections"),
		bytesForwarded: counter("bytes_forwarded_total", "Bytes forwarded verbatim by relays"),
		dispatched:     counter("messages_dispatched_total", "Messages handed to an operation"),
		discarded:      counter("messages_discarded_total", "Messages dropped without running an operation"),
		protocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.Namespace, Subsystem: o.Subsystem,
			Name: "protocol_errors_total", Help: "Connections that entered the protocol error state",
			ConstLabels: o.ConstLabels,
		}, []string{"side"}),
		roundtrips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.Namespace, Subsystem: o.Subsystem,
			Name: "roundtrips_total", Help: "Completed roundtrips by result",
			ConstLabels: o.ConstLabels,
		}, []string{"result"}),
		connections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: o.Namespace, Subsystem: o.Subsystem,
			Name: "connections_active", Help: "Open connections by side",
			ConstLabels: o.ConstLabels,
		}, []string{"side"}),
	}
}

func (m *Metrics) BytesRead(n int)          { m.bytesRead.Add(float64(n)) }
func (m *Metrics) BytesWritten(n int)       { m.bytesWritten.Add(float64(n)) }
func (m *Metrics) BytesForwarded(n int)     { m.bytesForwarded.Add(float64(n)) }
func (m *Metrics) MessagesDispatched(n int) { m.dispatched.Add(float64(n)) }
func (m *Metrics) MessagesDiscarded(n int)  { m.discarded.Add(float64(n)) }

func (m *Metrics) ProtocolError(side api.Side) {
	m.protocolErrors.WithLabelValues(side.String()).Inc()
}

func (m *Metrics) Roundtrip(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.roundtrips.WithLabelValues(result).Inc()
}

func (m *Metrics) ConnectionOpened(side api.Side) {
	m.connections.WithLabelValues(side.String()).Inc()
}

func (m *Metrics) ConnectionClosed(side api.Side) {
	m.connections.WithLabelValues(side.String()).Dec()
}
