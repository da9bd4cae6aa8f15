// File: relay/session.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Session joins a downstream client socket to an upstream server socket
// and forwards framed messages verbatim in both directions.

package relay

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"github.com/momentics/hioload-wth/api"
	wthlog "github.com/momentics/hioload-wth/internal/logging"
	"github.com/momentics/hioload-wth/internal/ring"
	"github.com/momentics/hioload-wth/reactor"
	"github.com/op/go-logging"
)

var log = wthlog.Logger("wth.relay")

// DefaultMaxBacklog is the per-direction backlog above which the source
// stops being read.
const DefaultMaxBacklog = 4 << 20

// chunk is queued, not yet written output.
type chunk struct {
	b []byte
}

// pipe moves messages from src to dst in one direction.
type pipe struct {
	name    string
	src     api.Socket
	dst     api.Socket
	reader  *ring.Reader
	backlog *queue.Queue
	queued  int

	forwarded atomic.Uint64
	messages  atomic.Uint64
}

func newPipe(name string, src, dst api.Socket, capacity int) (*pipe, error) {
	r, err := ring.New(capacity)
	if err != nil {
		return nil, err
	}
	return &pipe{name: name, src: src, dst: dst, reader: r, backlog: queue.New()}, nil
}

// pull reads once from src and forwards whatever was framed. It returns
// api.ErrAgain when src had nothing to offer.
func (p *pipe) pull(m api.Metrics) error {
	if err := p.reader.Pull(p.src); err != nil {
		return err
	}
	return p.forward(m)
}

// forward hands every framed message to dst, queueing what dst refuses.
// While a backlog exists new messages go behind it.
func (p *pipe) forward(m api.Metrics) error {
	n := p.reader.Len()
	if n == 0 {
		return nil
	}
	defer p.reader.Flush()
	p.messages.Add(uint64(n))

	if p.backlog.Length() > 0 {
		b, err := p.reader.Bytes(0, n-1)
		if err != nil {
			return err
		}
		p.enqueue(b)
		return nil
	}

	w, err := p.reader.Forward(p.dst, 0, n-1)
	p.count(m, w)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, api.ErrAgain), errors.Is(err, ring.ErrShortWrite):
		b, berr := p.reader.Bytes(0, n-1)
		if berr != nil {
			return berr
		}
		p.enqueue(b[w:])
		return nil
	default:
		return fmt.Errorf("%s: %w", p.name, err)
	}
}

func (p *pipe) enqueue(b []byte) {
	p.backlog.Add(&chunk{b: b})
	p.queued += len(b)
}

func (p *pipe) count(m api.Metrics, n int) {
	if n > 0 {
		p.forwarded.Add(uint64(n))
		m.BytesForwarded(n)
	}
}

// drain writes the backlog to dst until it is empty or dst is full.
func (p *pipe) drain(m api.Metrics) error {
	for p.backlog.Length() > 0 {
		head := p.backlog.Peek().(*chunk)
		n, err := p.dst.Writev([][]byte{head.b})
		if err != nil {
			if api.IsTransient(err) {
				return nil
			}
			return fmt.Errorf("%s: %w", p.name, err)
		}
		p.count(m, n)
		p.queued -= n
		if n < len(head.b) {
			head.b = head.b[n:]
			return nil
		}
		p.backlog.Remove()
	}
	return nil
}

// SessionStats reports traffic of one session.
type SessionStats struct {
	UpstreamBytes      uint64
	DownstreamBytes    uint64
	UpstreamMessages   uint64
	DownstreamMessages uint64
}

// Session forwards between one downstream and one upstream socket. All
// methods except ID and Stats must be called from a single goroutine.
type Session struct {
	id         uuid.UUID
	down, up   api.Socket
	toUp       *pipe
	toDown     *pipe
	maxBacklog int
	metrics    api.Metrics
	log        *logging.Logger
	closed     bool
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithSessionMetrics attaches a metrics sink.
func WithSessionMetrics(m api.Metrics) SessionOption {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithMaxBacklog overrides DefaultMaxBacklog.
func WithMaxBacklog(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxBacklog = n
		}
	}
}

// NewSession builds a session over two connected sockets. capacity is the
// ring size of each direction.
func NewSession(down, up api.Socket, capacity int, opts ...SessionOption) (*Session, error) {
	s := &Session{
		id:         uuid.New(),
		down:       down,
		up:         up,
		maxBacklog: DefaultMaxBacklog,
		metrics:    api.NopMetrics{},
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	var err error
	if s.toUp, err = newPipe("downstream->upstream", down, up, capacity); err != nil {
		return nil, err
	}
	if s.toDown, err = newPipe("upstream->downstream", up, down, capacity); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Stats returns forwarded byte and message counts. Safe from any goroutine.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		UpstreamBytes:      s.toUp.forwarded.Load(),
		DownstreamBytes:    s.toDown.forwarded.Load(),
		UpstreamMessages:   s.toUp.messages.Load(),
		DownstreamMessages: s.toDown.messages.Load(),
	}
}

// Interest returns the events the session wants on fd: read while the
// opposite backlog has room, write while this end has a backlog.
func (s *Session) Interest(fd int) reactor.FDEventType {
	to, from := s.pipes(fd)
	if to == nil {
		return 0
	}
	var ev reactor.FDEventType
	if from.queued < s.maxBacklog {
		ev |= reactor.EventRead
	}
	if to.backlog.Length() > 0 {
		ev |= reactor.EventWrite
	}
	return ev
}

// pipes returns the pipe writing to fd and the pipe reading from fd.
func (s *Session) pipes(fd int) (to, from *pipe) {
	switch fd {
	case s.down.Fd():
		return s.toDown, s.toUp
	case s.up.Fd():
		return s.toUp, s.toDown
	}
	return nil, nil
}

// Handle services readiness on one of the session's descriptors. A
// non-nil error means the session is finished; io.EOF reports an orderly
// close by either end.
func (s *Session) Handle(fd int, ev reactor.FDEventType) error {
	if s.closed {
		return api.ErrTransportClosed
	}
	to, from := s.pipes(fd)
	if to == nil {
		return fmt.Errorf("session %s: fd %d: %w", s.id, fd, api.ErrNotFound)
	}
	if ev&reactor.EventWrite != 0 {
		if err := to.drain(s.metrics); err != nil {
			return err
		}
	}
	if ev&(reactor.EventRead|reactor.EventError) != 0 {
		for from.queued < s.maxBacklog {
			err := from.pull(s.metrics)
			if err == nil {
				continue
			}
			if errors.Is(err, api.ErrAgain) {
				break
			}
			if err == io.EOF {
				s.log.Infof("session %s: %s closed", s.id, from.name)
			}
			return err
		}
	}
	return nil
}

// Close closes both sockets. It is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.down.Close()
	if uerr := s.up.Close(); err == nil {
		err = uerr
	}
	st := s.Stats()
	s.log.Infof("session %s closed: %d bytes up, %d bytes down", s.id, st.UpstreamBytes, st.DownstreamBytes)
	return err
}
