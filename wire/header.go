// File: wire/header.go
// Package wire implements the message header and argument codec.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Every message starts with a fixed 8-byte little-endian header:
//
//	0 ----------- 32 --------- 48 ---------- 64 ------------+
//	|  object id   |    size    |   opcode   |  payload...  |
//	+----- 32 -----+---- 16 ----+---- 16 ----+--------------+
//
// size counts the header itself, so a valid size is never below HeaderSize.

package wire

import (
	"encoding/binary"
	"errors"
)

const (
	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 8

	// MaxMessageSize is the largest value the size field can carry.
	MaxMessageSize = 0xffff

	// MaxPayloadSize bounds the arguments of a single message.
	MaxPayloadSize = MaxMessageSize - HeaderSize

	OffsetID     = 0
	OffsetSize   = 4
	OffsetOpcode = 6
)

var (
	ErrShortHeader  = errors.New("wire: buffer shorter than header")
	ErrInvalidSize  = errors.New("wire: invalid message size")
	ErrTooLarge     = errors.New("wire: message exceeds maximum size")
	ErrShortBody    = errors.New("wire: message body truncated")
	ErrBadString    = errors.New("wire: string not NUL terminated")
	ErrNullArgument = errors.New("wire: null object where one is required")
)

// Header holds the fixed fields of a message.
type Header struct {
	ID     uint32
	Size   uint16
	Opcode uint16
}

// Put writes h into b, which must hold at least HeaderSize bytes.
func (h Header) Put(b []byte) {
	binary.LittleEndian.PutUint32(b[OffsetID:], h.ID)
	binary.LittleEndian.PutUint16(b[OffsetSize:], h.Size)
	binary.LittleEndian.PutUint16(b[OffsetOpcode:], h.Opcode)
}

// ParseHeader decodes and validates the header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	h := Header{
		ID:     binary.LittleEndian.Uint32(b[OffsetID:]),
		Size:   binary.LittleEndian.Uint16(b[OffsetSize:]),
		Opcode: binary.LittleEndian.Uint16(b[OffsetOpcode:]),
	}
	if h.Size < HeaderSize {
		return h, ErrInvalidSize
	}
	return h, nil
}

// Padded rounds n up to the next multiple of four.
func Padded(n int) int {
	return (n + 3) &^ 3
}
