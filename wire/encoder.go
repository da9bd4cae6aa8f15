// File: wire/encoder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Argument serialization. Each argument is padded to a 4-byte boundary.

package wire

import (
	"encoding/binary"
	"math"

	"github.com/momentics/hioload-wth/pool"
)

// Fixed is a signed 24.8 fixed-point number.
type Fixed int32

// FixedFromFloat converts f to 24.8 fixed point.
func FixedFromFloat(f float64) Fixed {
	return Fixed(math.Round(f * 256))
}

// Float returns the value as float64.
func (f Fixed) Float() float64 {
	return float64(f) / 256
}

var bufPool = pool.NewSyncPool(
	func() []byte { return make([]byte, 0, 256) },
	func(b []byte) []byte { return b[:0] },
)

// Encoder builds one message. The zero value is not usable; use NewEncoder.
type Encoder struct {
	buf    []byte
	id     uint32
	opcode uint16
}

// NewEncoder starts a message addressed to object id with the given opcode.
func NewEncoder(id uint32, opcode uint16) *Encoder {
	e := &Encoder{buf: bufPool.Get(), id: id, opcode: opcode}
	e.buf = append(e.buf, make([]byte, HeaderSize)...)
	return e
}

func (e *Encoder) putUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) pad() {
	for len(e.buf)&3 != 0 {
		e.buf = append(e.buf, 0)
	}
}

// Uint appends an unsigned 32-bit argument.
func (e *Encoder) Uint(v uint32) *Encoder {
	e.putUint32(v)
	return e
}

// Int appends a signed 32-bit argument.
func (e *Encoder) Int(v int32) *Encoder {
	e.putUint32(uint32(v))
	return e
}

// Fixed appends a 24.8 fixed-point argument.
func (e *Encoder) Fixed(v Fixed) *Encoder {
	e.putUint32(uint32(v))
	return e
}

// Object appends an object reference; 0 means null.
func (e *Encoder) Object(id uint32) *Encoder {
	e.putUint32(id)
	return e
}

// NewID appends the id of an object being created by this message.
func (e *Encoder) NewID(id uint32) *Encoder {
	e.putUint32(id)
	return e
}

// String appends a length-prefixed, NUL-terminated string.
func (e *Encoder) String(s string) *Encoder {
	e.putUint32(uint32(len(s) + 1))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
	e.pad()
	return e
}

// Array appends a length-prefixed byte array.
func (e *Encoder) Array(b []byte) *Encoder {
	e.putUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
	e.pad()
	return e
}

// Len returns the current encoded length including the header.
func (e *Encoder) Len() int { return len(e.buf) }

// Bytes finalises the header and returns the encoded message. The slice
// stays valid until Release.
func (e *Encoder) Bytes() ([]byte, error) {
	if len(e.buf) > MaxMessageSize {
		return nil, ErrTooLarge
	}
	Header{ID: e.id, Size: uint16(len(e.buf)), Opcode: e.opcode}.Put(e.buf)
	return e.buf, nil
}

// Release returns the buffer to the pool. The encoder must not be used
// afterwards.
func (e *Encoder) Release() {
	if e.buf != nil && cap(e.buf) <= 4*MaxMessageSize {
		bufPool.Put(e.buf)
	}
	e.buf = nil
}
