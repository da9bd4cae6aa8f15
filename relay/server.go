// File: relay/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server accepts downstream clients, dials the upstream for each and
// multiplexes every session over one epoll reactor. Session I/O runs on
// the goroutine that calls Serve; accepting and dialing run beside it.

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/internal/ring"
	"github.com/momentics/hioload-wth/pool"
	"github.com/momentics/hioload-wth/reactor"
	"github.com/momentics/hioload-wth/transport"
	"github.com/op/go-logging"
)

// pollInterval bounds how long new sessions wait to be attached.
const pollInterval = 50 * time.Millisecond

// handoffSlots is the capacity of the accept-to-reactor handoff ring.
const handoffSlots = 64

// Config describes both ends of the relay.
type Config struct {
	Network         string
	Listen          string
	UpstreamNetwork string
	Upstream        string
	RingCapacity    int
	MaxBacklog      int
}

// DialFunc opens the upstream connection for a new session.
type DialFunc func(ctx context.Context) (api.Socket, error)

// Option customizes a Server.
type Option func(*Server)

// WithMetrics attaches a metrics sink shared by all sessions.
func WithMetrics(m api.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithDialer replaces the upstream dialer.
func WithDialer(d DialFunc) Option {
	return func(s *Server) { s.dial = d }
}

// WithLogger replaces the package logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// SessionInfo is a point-in-time view of one session.
type SessionInfo struct {
	ID    uuid.UUID
	Stats SessionStats
}

// Server is a pass-through relay.
type Server struct {
	cfg      Config
	ln       *transport.Listener
	reactor  reactor.Reactor
	sessions *table
	incoming *pool.RingBuffer[*Session]
	metrics  api.Metrics
	log      *logging.Logger
	dial     DialFunc

	// reactor goroutine only
	byFd     map[int]*Session
	interest map[int]reactor.FDEventType
}

// NewServer binds the listening address and prepares the reactor.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	if cfg.RingCapacity == 0 {
		cfg.RingCapacity = ring.DefaultCapacity
	}
	if cfg.MaxBacklog == 0 {
		cfg.MaxBacklog = DefaultMaxBacklog
	}
	s := &Server{
		cfg:      cfg,
		sessions: newTable(16),
		incoming: pool.NewRingBuffer[*Session](handoffSlots),
		metrics:  api.NopMetrics{},
		log:      log,
		byFd:     make(map[int]*Session),
		interest: make(map[int]reactor.FDEventType),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dial == nil {
		if cfg.Upstream == "" {
			return nil, fmt.Errorf("relay: no upstream: %w", api.ErrInvalidArgument)
		}
		s.dial = func(ctx context.Context) (api.Socket, error) {
			return transport.Dial(ctx, cfg.UpstreamNetwork, cfg.Upstream)
		}
	}

	r, err := reactor.NewReactor()
	if err != nil {
		return nil, err
	}
	ln, err := transport.Listen(cfg.Network, cfg.Listen)
	if err != nil {
		r.Close()
		return nil, err
	}
	s.reactor, s.ln = r, ln
	return s, nil
}

// Addr returns the bound downstream address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Len returns the number of live sessions. Safe from any goroutine.
func (s *Server) Len() int { return s.sessions.len() }

// Sessions returns a snapshot of live sessions. Safe from any goroutine.
func (s *Server) Sessions() []SessionInfo {
	var out []SessionInfo
	s.sessions.rangeAll(func(sess *Session) bool {
		out = append(out, SessionInfo{ID: sess.ID(), Stats: sess.Stats()})
		return true
	})
	return out
}

// Serve runs until ctx is done, then closes every session, the listener
// and the reactor. It returns nil on cancellation.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Infof("relay listening on %s %s, upstream %s %s",
		s.cfg.Network, s.Addr(), s.cfg.UpstreamNetwork, s.cfg.Upstream)

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		s.acceptLoop(ctx)
	}()
	defer func() {
		s.ln.Close()
		<-acceptDone
		s.shutdown()
	}()

	for ctx.Err() == nil {
		s.attachPending()
		if _, err := s.reactor.Poll(int(pollInterval / time.Millisecond)); err != nil {
			return fmt.Errorf("relay: %w", err)
		}
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		down, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Errorf("accept: %v", err)
			}
			return
		}
		up, err := s.dial(ctx)
		if err != nil {
			s.log.Warningf("upstream dial: %v", err)
			down.Close()
			continue
		}
		sess, err := NewSession(down, up, s.cfg.RingCapacity,
			WithSessionMetrics(s.metrics), WithMaxBacklog(s.cfg.MaxBacklog))
		if err != nil {
			s.log.Errorf("new session: %v", err)
			down.Close()
			up.Close()
			continue
		}
		// The reactor drains the ring every poll interval.
		if err := s.incoming.EnqueueWait(ctx, sess, time.Millisecond, pollInterval); err != nil {
			sess.Close()
			return
		}
	}
}

// attachPending registers sessions handed over by the accept loop.
func (s *Server) attachPending() {
	s.incoming.Drain(s.attach)
}

func (s *Server) attach(sess *Session) {
	fds := [2]int{sess.down.Fd(), sess.up.Fd()}
	for i, fd := range fds {
		ev := sess.Interest(fd)
		if err := s.reactor.Register(fd, ev, s.onReady); err != nil {
			s.log.Errorf("session %s: %v", sess.ID(), err)
			for _, prev := range fds[:i] {
				_ = s.reactor.Unregister(prev)
				delete(s.byFd, prev)
				delete(s.interest, prev)
			}
			sess.Close()
			return
		}
		s.byFd[fd] = sess
		s.interest[fd] = ev
	}
	s.sessions.add(sess)
	s.metrics.ConnectionOpened(api.SideServer)
	s.metrics.ConnectionOpened(api.SideClient)
	s.log.Infof("session %s opened", sess.ID())
}

func (s *Server) onReady(fd int, ev reactor.FDEventType) {
	sess, ok := s.byFd[fd]
	if !ok {
		return
	}
	if err := sess.Handle(fd, ev); err != nil {
		s.detach(sess, err)
		return
	}
	// Progress on one end changes the interest of the other.
	for _, f := range [2]int{sess.down.Fd(), sess.up.Fd()} {
		want := sess.Interest(f)
		if want == s.interest[f] {
			continue
		}
		if err := s.reactor.Modify(f, want); err != nil {
			s.detach(sess, err)
			return
		}
		s.interest[f] = want
	}
}

func (s *Server) detach(sess *Session, cause error) {
	for _, fd := range [2]int{sess.down.Fd(), sess.up.Fd()} {
		if _, ok := s.byFd[fd]; !ok {
			continue
		}
		_ = s.reactor.Unregister(fd)
		delete(s.byFd, fd)
		delete(s.interest, fd)
	}
	s.sessions.remove(sess.ID())
	s.metrics.ConnectionClosed(api.SideServer)
	s.metrics.ConnectionClosed(api.SideClient)
	if cause != nil && !errors.Is(cause, io.EOF) {
		s.log.Warningf("session %s: %v", sess.ID(), cause)
	}
	sess.Close()
}

func (s *Server) shutdown() {
	s.attachPending()
	var live []*Session
	s.sessions.rangeAll(func(sess *Session) bool {
		live = append(live, sess)
		return true
	})
	for _, sess := range live {
		s.detach(sess, nil)
	}
	if err := s.reactor.Close(); err != nil {
		s.log.Warningf("reactor close: %v", err)
	}
}
