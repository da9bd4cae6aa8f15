// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the socket contracts.

package fake

import (
	"bytes"
	"sync"

	"github.com/momentics/hioload-wth/api"
	"golang.org/x/sys/unix"
)

// Stream is a scripted api.VectorReader. Each pushed chunk models one
// arrival on the wire: a single Readv never crosses a chunk boundary, but
// may consume a chunk only partly when the vectors are too small.
type Stream struct {
	mu     sync.Mutex
	chunks [][]byte
	eof    bool
	err    error

	ReadvCalls int
}

// NewStream creates a stream preloaded with chunks.
func NewStream(chunks ...[]byte) *Stream {
	s := &Stream{}
	for _, c := range chunks {
		s.Push(c)
	}
	return s
}

// Push queues another chunk.
func (s *Stream) Push(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.chunks = append(s.chunks, cp)
}

// CloseWrite makes Readv report end-of-stream once all chunks are read.
func (s *Stream) CloseWrite() {
	s.mu.Lock()
	s.eof = true
	s.mu.Unlock()
}

// SetError makes the next Readv fail with err.
func (s *Stream) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Readv implements api.VectorReader.
func (s *Stream) Readv(iovs [][]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReadvCalls++

	if s.err != nil {
		err := s.err
		s.err = nil
		return 0, err
	}
	if len(s.chunks) == 0 {
		if s.eof {
			return 0, nil
		}
		return 0, unix.EAGAIN
	}

	head := s.chunks[0]
	n := 0
	for _, iov := range iovs {
		if len(head) == 0 {
			break
		}
		c := copy(iov, head)
		head = head[c:]
		n += c
	}
	if len(head) == 0 {
		s.chunks = s.chunks[1:]
	} else {
		s.chunks[0] = head
	}
	return n, nil
}

// Sink is a recording api.VectorWriter. Limit caps the bytes accepted per
// call to simulate a full send buffer; a zero Limit accepts everything.
type Sink struct {
	mu  sync.Mutex
	buf bytes.Buffer
	err error

	Limit       int
	WritevCalls int
}

// SetError makes every following Writev fail with err until cleared.
func (s *Sink) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Writev implements api.VectorWriter.
func (s *Sink) Writev(iovs [][]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WritevCalls++
	if s.err != nil {
		return 0, s.err
	}
	budget := s.Limit
	n := 0
	for _, iov := range iovs {
		if s.Limit > 0 {
			if budget == 0 {
				break
			}
			if len(iov) > budget {
				iov = iov[:budget]
			}
			budget -= len(iov)
		}
		s.buf.Write(iov)
		n += len(iov)
	}
	if n == 0 && s.Limit > 0 {
		return 0, unix.EAGAIN
	}
	return n, nil
}

// Bytes returns everything written so far.
func (s *Sink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

// Socket joins a Stream and a Sink into an api.Socket with no real fd.
type Socket struct {
	*Stream
	*Sink

	closed bool
}

var _ api.Socket = (*Socket)(nil)

// NewSocket returns a socket with an empty stream and unlimited sink.
func NewSocket() *Socket {
	return &Socket{Stream: NewStream(), Sink: &Sink{}}
}

// Fd returns -1; fake sockets cannot be polled by the kernel.
func (s *Socket) Fd() int { return -1 }

// Close marks the socket closed.
func (s *Socket) Close() error {
	if s.closed {
		return api.ErrTransportClosed
	}
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Socket) Closed() bool { return s.closed }
