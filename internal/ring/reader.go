// File: internal/ring/reader.go
// Package ring implements the non-blocking circular-buffer message framer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reader ingests socket bytes into a fixed-size ring and segments them into
// complete messages without copying. Only a message that straddles the
// physical end of the ring is copied, into a bounce buffer, when mapped.
//
// Usage cycle: Pull, then Map each of the Len() messages, then Flush.
// Pull must never be called while framed messages remain.

package ring

import (
	"errors"
	"fmt"
	"io"

	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/pool"
	"github.com/momentics/hioload-wth/wire"
)

const (
	// DefaultCapacity holds two maximal messages plus the withheld byte.
	DefaultCapacity = 2*wire.MaxMessageSize + 1

	initialSlots  = 64
	initialBounce = 2048
)

var (
	ErrCorruptStream = errors.New("ring: corrupt message size")
	ErrRingFull      = errors.New("ring: buffer full without a complete message")
	ErrShortWrite    = errors.New("ring: short write while forwarding")
)

// descriptor locates one complete message. The header is copied out so
// its fields stay valid whatever happens to the ring bytes later.
type descriptor struct {
	start  int
	length int
	hdr    wire.Header
}

// Message is a mapped view of one framed message. Body and Tail alias
// reader memory and are only valid until the next Flush.
type Message struct {
	Header wire.Header
	Body   []byte
	Tail   []byte
}

// Stats reports cumulative reader counters.
type Stats struct {
	BytesRead      uint64
	MessagesFramed uint64
	Bounced        uint64
}

// Reader is the ring framer. It is not safe for concurrent use.
type Reader struct {
	buf []byte
	rp  int
	wp  int

	msgs   *pool.Array[descriptor]
	tail   []byte
	bounce []byte
	iov    [][]byte

	stats Stats
}

// New allocates a reader with the given ring capacity in bytes.
func New(capacity int) (*Reader, error) {
	if capacity <= wire.HeaderSize+1 {
		return nil, fmt.Errorf("ring: capacity %d too small: %w", capacity, api.ErrInvalidArgument)
	}
	return &Reader{
		buf:  make([]byte, capacity),
		msgs: pool.NewArray[descriptor](initialSlots),
		iov:  make([][]byte, 0, 3),
	}, nil
}

// Capacity returns the ring size in bytes.
func (r *Reader) Capacity() int { return len(r.buf) }

// Len returns the number of complete, undispatched messages.
func (r *Reader) Len() int { return r.msgs.Len() }

// Buffered returns the bytes received but not yet framed.
func (r *Reader) Buffered() int { return r.used(r.rp) }

// Stats returns a snapshot of the reader counters.
func (r *Reader) Stats() Stats { return r.stats }

// Pull performs at most one scatter read from src and frames every
// complete message now available.
//
// It returns api.ErrAgain when src has no data, io.EOF when the peer
// closed its side, ErrCorruptStream when a header declares a size below
// wire.HeaderSize, and ErrRingFull when no space is left but no message is
// complete. Messages framed before a corrupt header remain available.
func (r *Reader) Pull(src api.VectorReader) error {
	if r.msgs.Len() != 0 {
		panic("ring: Pull called with undispatched messages; Flush first")
	}

	iov := r.freeSpans()
	if len(iov) == 0 {
		return ErrRingFull
	}
	n, err := src.Readv(iov)
	if err != nil {
		if api.IsTransient(err) {
			return api.ErrAgain
		}
		return fmt.Errorf("ring: readv: %w", err)
	}
	if n == 0 {
		return io.EOF
	}
	r.wp = r.advance(r.wp, n)
	r.stats.BytesRead += uint64(n)

	for {
		ok, err := r.frameOne()
		if err != nil {
			// Nothing after a corrupt size can be framed reliably.
			r.rp = r.wp
			return err
		}
		if !ok {
			return nil
		}
	}
}

// frameOne extracts the message at the read cursor if it is complete.
func (r *Reader) frameOne() (bool, error) {
	left := r.used(r.rp)
	if left < wire.HeaderSize {
		return false, nil
	}
	size := int(r.uint16At(r.rp, wire.OffsetSize))
	if size < wire.HeaderSize {
		return false, fmt.Errorf("%w: %d", ErrCorruptStream, size)
	}
	if left < size {
		return false, nil
	}

	d := &r.msgs.Add(1)[0]
	d.start = r.rp
	d.length = size
	d.hdr = wire.Header{
		ID:     r.uint32At(r.rp, wire.OffsetID),
		Size:   uint16(size),
		Opcode: r.uint16At(r.rp, wire.OffsetOpcode),
	}

	r.rp = r.advance(r.rp, size)
	r.stats.MessagesFramed++
	return true, nil
}

// Map returns a linear view of message i.
func (r *Reader) Map(i int) Message {
	if i < 0 || i >= r.msgs.Len() {
		panic("ring: Map index out of range")
	}
	d := r.msgs.At(i)

	var raw []byte
	if r.crossesEnd(d.start, d.length) {
		r.growBounce(d.length)
		a, b := r.spans(d.start, d.length)
		copy(r.bounce, a)
		copy(r.bounce[len(a):], b)
		raw = r.bounce[:d.length]
		r.stats.Bounced++
	} else {
		raw = r.buf[d.start : d.start+d.length]
	}

	m := Message{
		Header: d.hdr,
		Body:   raw[wire.HeaderSize:d.hdr.Size],
	}
	if i == r.msgs.Len()-1 && len(r.tail) > 0 {
		m.Tail = r.tail
	}
	return m
}

func (r *Reader) growBounce(need int) {
	if len(r.bounce) >= need {
		return
	}
	size := len(r.bounce)
	if size == 0 {
		size = initialBounce
	}
	for size < need {
		size *= 2
	}
	r.bounce = make([]byte, size)
}

// AppendTail attaches out-of-band bytes to the last framed message.
// Interior messages never carry a tail.
func (r *Reader) AppendTail(p []byte) error {
	if r.msgs.Len() == 0 {
		return fmt.Errorf("ring: no message to attach tail to: %w", api.ErrInvalidArgument)
	}
	r.tail = append(r.tail, p...)
	return nil
}

// Flush discards the framed messages and the tail. When every received
// byte has been consumed, both cursors rewind to the start so the next
// fill does not wrap.
func (r *Reader) Flush() {
	if r.rp == r.wp {
		r.rp, r.wp = 0, 0
	}
	r.msgs.Truncate(0)
	r.tail = r.tail[:0]
}

// Reset drops everything, including partially received messages.
func (r *Reader) Reset() {
	r.rp = r.wp
	r.Flush()
}
