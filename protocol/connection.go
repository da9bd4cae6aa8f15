// File: protocol/connection.go
// Package protocol implements the object protocol connection.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection owns one stream socket, its receive ring and its id map.
// It is single-threaded and non-blocking: Read, Dispatch and Flush never
// wait; only Roundtrip blocks, through the configured Poller.
//
// State machine: Active -> SoftError on a fatal transport failure;
// Active|SoftError -> ProtocolError when a protocol error is posted or
// received. ProtocolError is sticky.

package protocol

import (
	"errors"
	"fmt"
	"io"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/internal/idmap"
	wthlog "github.com/momentics/hioload-wth/internal/logging"
	"github.com/momentics/hioload-wth/internal/ring"
	"github.com/momentics/hioload-wth/reactor"
	"github.com/op/go-logging"
)

var log = wthlog.Logger("wth")

// maxFlushVectors bounds the iovecs handed to one writev.
const maxFlushVectors = 64

// outChunk is an unsent remainder of an outgoing message.
type outChunk struct {
	b []byte
}

// Connection is one end of a protocol stream.
type Connection struct {
	sock api.Socket
	side api.Side

	state api.State
	err   error
	perr  *api.ProtocolError

	reader  *ring.Reader
	objects *idmap.Map[*Object]
	display *Display
	pending *queue.Queue

	ringCapacity int
	reuseIDs     bool
	poller       api.Poller
	log          *logging.Logger
	metrics      api.Metrics

	lastRead uint64

	// server side
	globals    []*Global
	nextGlobal uint32
	registries []*Registry
	syncSerial uint32

	clientVersion uint32
	serverVersion uint32

	destroyed   bool
	dispatching bool
}

// NewConnection wraps a connected socket. The display object is created
// at its well-known id on both sides.
func NewConnection(sock api.Socket, side api.Side, opts ...Option) (*Connection, error) {
	c := &Connection{
		sock:         sock,
		side:         side,
		ringCapacity: ring.DefaultCapacity,
		log:          log,
		metrics:      api.NopMetrics{},
		pending:      queue.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.poller == nil {
		c.poller = reactor.NewPoller()
	}

	r, err := ring.New(c.ringCapacity)
	if err != nil {
		return nil, err
	}
	c.reader = r
	c.objects = idmap.New[*Object](side, idmap.WithReuse(c.reuseIDs))

	if c.display, err = newDisplay(c); err != nil {
		return nil, fmt.Errorf("create display: %w", err)
	}
	c.metrics.ConnectionOpened(side)
	return c, nil
}

// Side returns which end of the stream this connection is.
func (c *Connection) Side() api.Side { return c.side }

// Fd returns the socket descriptor for external readiness polling.
func (c *Connection) Fd() int { return c.sock.Fd() }

// State returns the current error state.
func (c *Connection) State() api.State { return c.state }

// ProtocolError returns the recorded protocol error triple, if any.
func (c *Connection) ProtocolError() *api.ProtocolError { return c.perr }

// Err returns the error that broke the connection, or nil while Active.
func (c *Connection) Err() error {
	switch c.state {
	case api.StateProtocolError:
		return c.perr
	case api.StateSoftError:
		return c.err
	default:
		return nil
	}
}

// Display returns the display singleton.
func (c *Connection) Display() *Display { return c.display }

// Object resolves id to a live object, or nil.
func (c *Connection) Object(id uint32) *Object {
	o, _ := c.objects.Lookup(id)
	return o
}

// ClientVersion returns the version announced by the client (server side).
func (c *Connection) ClientVersion() uint32 { return c.clientVersion }

// ServerVersion returns the version announced by the server (client side).
func (c *Connection) ServerVersion() uint32 { return c.serverVersion }

// Pending returns the number of outgoing chunks waiting for Flush.
func (c *Connection) Pending() int { return c.pending.Length() }

func (c *Connection) setSoftError(err error) {
	if c.state != api.StateActive {
		return
	}
	c.state = api.StateSoftError
	c.err = err
	c.log.Errorf("%s connection: %v", c.side, err)
}

// setProtocolError records the triple and enters the sticky state. The
// first recorded triple wins.
func (c *Connection) setProtocolError(objectID uint32, iface string, code uint32, msg string) {
	if c.state == api.StateProtocolError {
		return
	}
	c.state = api.StateProtocolError
	c.perr = &api.ProtocolError{ObjectID: objectID, Interface: iface, Code: code, Message: msg}
	c.metrics.ProtocolError(c.side)
	c.log.Errorf("%s connection: %v", c.side, c.perr)
}

// postError sends display.error and enters ProtocolError (server side).
func (c *Connection) postError(objectID uint32, iface string, code uint32, msg string) error {
	err := c.display.Error(objectID, code, msg)
	c.setProtocolError(objectID, iface, code, msg)
	return err
}

// Read drains the socket into the receive ring once.
//
// It returns api.ErrAgain when nothing was available. In ProtocolError the
// socket is still drained but everything received is discarded. In
// SoftError the stored error is returned without touching the socket.
func (c *Connection) Read() error {
	if c.destroyed {
		return api.ErrTransportClosed
	}
	if c.dispatching {
		return fmt.Errorf("read: %w", api.ErrReentrant)
	}
	switch c.state {
	case api.StateSoftError:
		return c.err
	case api.StateProtocolError:
		c.discard()
		err := c.reader.Pull(c.sock)
		c.countRead()
		if errors.Is(err, ring.ErrCorruptStream) {
			c.reader.Reset()
		} else {
			c.discard()
		}
		if errors.Is(err, api.ErrAgain) {
			return err
		}
		return c.perr
	}

	err := c.reader.Pull(c.sock)
	c.countRead()
	switch {
	case err == nil, errors.Is(err, api.ErrAgain):
		return err
	case err == io.EOF:
		c.setSoftError(api.ErrConnectionClosed)
		return c.err
	case errors.Is(err, ring.ErrCorruptStream):
		c.streamError(DisplayErrorInvalidMethod, err)
		return c.perr
	case errors.Is(err, ring.ErrRingFull):
		c.streamError(DisplayErrorNoMemory, err)
		return c.perr
	default:
		c.setSoftError(err)
		return c.err
	}
}

// streamError handles framing failures that leave no trustworthy object.
func (c *Connection) streamError(code uint32, err error) {
	if c.side == api.SideServer {
		_ = c.postError(c.display.ID(), DisplayInterface.Name, code, err.Error())
		return
	}
	c.setProtocolError(c.display.ID(), DisplayInterface.Name, code, err.Error())
}

func (c *Connection) countRead() {
	total := c.reader.Stats().BytesRead
	if d := total - c.lastRead; d > 0 {
		c.metrics.BytesRead(int(d))
	}
	c.lastRead = total
}

func (c *Connection) discard() {
	if n := c.reader.Len(); n > 0 {
		c.metrics.MessagesDiscarded(n)
	}
	c.reader.Flush()
}

// Dispatch runs every framed message in arrival order and returns how many
// were walked. In ProtocolError messages are walked but not executed. A
// non-nil error reports that the connection is in an error state.
//
// Handlers may call Destroy, which ends the walk; calling Read, Dispatch or
// Roundtrip from a handler fails with api.ErrReentrant.
func (c *Connection) Dispatch() (int, error) {
	if c.destroyed {
		return 0, api.ErrTransportClosed
	}
	if c.dispatching {
		return 0, fmt.Errorf("dispatch: %w", api.ErrReentrant)
	}
	c.dispatching = true
	defer func() { c.dispatching = false }()

	n := c.reader.Len()
	executed, walked := 0, 0
	for i := 0; i < n && !c.destroyed; i++ {
		walked++
		m := c.reader.Map(i)
		if c.state == api.StateProtocolError {
			c.metrics.MessagesDiscarded(1)
			continue
		}
		if c.dispatchOne(m) {
			executed++
		}
	}
	if executed > 0 {
		c.metrics.MessagesDispatched(executed)
	}
	if c.destroyed {
		return walked, api.ErrTransportClosed
	}
	c.reader.Flush()
	return walked, c.Err()
}

// write sends one encoded message. Bytes the kernel does not take are
// queued, and later messages queue behind them to keep stream order.
// Writes remain allowed in ProtocolError so a pending error reaches the
// peer.
func (c *Connection) write(b []byte) error {
	if c.destroyed {
		return api.ErrTransportClosed
	}
	if c.state == api.StateSoftError {
		return c.err
	}
	if c.pending.Length() > 0 {
		c.enqueue(b)
		return nil
	}
	n, err := c.sock.Writev([][]byte{b})
	if err != nil && !api.IsTransient(err) {
		c.setSoftError(fmt.Errorf("write: %w", err))
		return c.err
	}
	if n > 0 {
		c.metrics.BytesWritten(n)
	}
	if n < len(b) {
		c.enqueue(b[n:])
	}
	return nil
}

func (c *Connection) enqueue(b []byte) {
	c.pending.Add(&outChunk{b: append([]byte(nil), b...)})
}

// Flush writes queued outgoing bytes without blocking. It returns
// api.ErrAgain while data remains queued.
func (c *Connection) Flush() error {
	if c.destroyed {
		return api.ErrTransportClosed
	}
	if c.state == api.StateSoftError {
		return c.err
	}
	iov := make([][]byte, 0, maxFlushVectors)
	for c.pending.Length() > 0 {
		iov = iov[:0]
		offered := 0
		for i := 0; i < c.pending.Length() && i < maxFlushVectors; i++ {
			b := c.pending.Get(i).(*outChunk).b
			iov = append(iov, b)
			offered += len(b)
		}
		n, err := c.sock.Writev(iov)
		if err != nil {
			if api.IsTransient(err) {
				return api.ErrAgain
			}
			c.setSoftError(fmt.Errorf("flush: %w", err))
			return c.err
		}
		c.metrics.BytesWritten(n)
		for left := n; left > 0; {
			head := c.pending.Peek().(*outChunk)
			if left < len(head.b) {
				head.b = head.b[left:]
				break
			}
			left -= len(head.b)
			c.pending.Remove()
		}
		if n < offered {
			// The kernel took less than offered; wait for writability.
			return api.ErrAgain
		}
	}
	return nil
}

// Destroy closes the socket and releases every resource. It is reachable
// from any state; a second call returns api.ErrTransportClosed.
func (c *Connection) Destroy() error {
	if c.destroyed {
		return api.ErrTransportClosed
	}
	c.destroyed = true
	err := c.sock.Close()
	if c.display != nil {
		c.display.Delete()
	}
	c.objects.Release()
	c.reader.Reset()
	c.pending = queue.New()
	c.metrics.ConnectionClosed(c.side)
	return err
}
