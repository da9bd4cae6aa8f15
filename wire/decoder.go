// File: wire/decoder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wire

import "encoding/binary"

// Decoder reads arguments from a message body in order. The first error
// sticks; later reads return zero values, so callers check Err once.
type Decoder struct {
	body []byte
	off  int
	err  error
}

// NewDecoder reads arguments from body (the bytes after the header).
func NewDecoder(body []byte) *Decoder {
	return &Decoder{body: body}
}

// Err returns the first decoding error.
func (d *Decoder) Err() error { return d.err }

// Remaining returns the number of unread body bytes.
func (d *Decoder) Remaining() int { return len(d.body) - d.off }

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.body) {
		d.err = ErrShortBody
		return nil
	}
	p := d.body[d.off : d.off+n]
	d.off += n
	return p
}

func (d *Decoder) uint32() uint32 {
	p := d.take(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

// skipPadding advances over the padding after an n-byte field.
// Padding content is not checked; a short tail is tolerated.
func (d *Decoder) skipPadding(n int) {
	pad := Padded(n) - n
	if d.off+pad > len(d.body) {
		d.off = len(d.body)
		return
	}
	d.off += pad
}

func (d *Decoder) Uint() uint32   { return d.uint32() }
func (d *Decoder) Int() int32     { return int32(d.uint32()) }
func (d *Decoder) Fixed() Fixed   { return Fixed(d.uint32()) }
func (d *Decoder) Object() uint32 { return d.uint32() }

// NewID reads a new object id; zero is rejected.
func (d *Decoder) NewID() uint32 {
	id := d.uint32()
	if d.err == nil && id == 0 {
		d.err = ErrNullArgument
	}
	return id
}

// String reads a length-prefixed string. A null string decodes as "".
func (d *Decoder) String() string {
	s, _ := d.NullableString()
	return s
}

// NullableString reads a string and reports whether it was non-null.
// Null strings are encoded with a zero length.
func (d *Decoder) NullableString() (string, bool) {
	n := int(d.uint32())
	if d.err != nil || n == 0 {
		return "", false
	}
	p := d.take(n)
	if p == nil {
		return "", false
	}
	if p[n-1] != 0 {
		d.err = ErrBadString
		return "", false
	}
	d.skipPadding(n)
	return string(p[:n-1]), true
}

// Array reads a length-prefixed byte array. The result aliases the body.
func (d *Decoder) Array() []byte {
	n := int(d.uint32())
	if d.err != nil {
		return nil
	}
	p := d.take(n)
	if p == nil {
		return nil
	}
	d.skipPadding(n)
	return p
}
