// File: internal/ring/offsets.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// All logical-offset arithmetic of the ring lives here. A logical offset
// is an index into buf; walking past the physical end wraps to zero.

package ring

// advance moves off forward by n bytes, wrapping at the physical end.
func (r *Reader) advance(off, n int) int {
	return (off + n) % len(r.buf)
}

// used returns the number of bytes between off and the write cursor.
func (r *Reader) used(off int) int {
	if off <= r.wp {
		return r.wp - off
	}
	return len(r.buf) - off + r.wp
}

// distance returns the logical length of the range [from, to).
func (r *Reader) distance(from, to int) int {
	if to >= from {
		return to - from
	}
	return len(r.buf) - from + to
}

// byteAt reads the byte i positions after off.
func (r *Reader) byteAt(off, i int) byte {
	return r.buf[r.advance(off, i)]
}

// uint16At composes a little-endian u16 from two wrap-aware byte reads.
func (r *Reader) uint16At(off, i int) uint16 {
	v := uint16(r.byteAt(off, i+1))
	v <<= 8
	v |= uint16(r.byteAt(off, i))
	return v
}

// uint32At composes a little-endian u32 from two wrap-aware u16 reads.
func (r *Reader) uint32At(off, i int) uint32 {
	return uint32(r.uint16At(off, i)) | uint32(r.uint16At(off, i+2))<<16
}

// spans splits the logical range [start, start+length) into at most two
// physical slices. The second slice is nil unless the range wraps.
func (r *Reader) spans(start, length int) (first, second []byte) {
	end := start + length
	if end <= len(r.buf) {
		return r.buf[start:end], nil
	}
	return r.buf[start:], r.buf[:end-len(r.buf)]
}

// crossesEnd reports whether [start, start+length) wraps.
func (r *Reader) crossesEnd(start, length int) bool {
	return start+length > len(r.buf)
}

// freeSpans returns the writable region as up to two vectors. One byte is
// always withheld so the write cursor never catches the read cursor; equal
// cursors therefore always mean "empty".
func (r *Reader) freeSpans() [][]byte {
	var first, second []byte
	if r.rp > r.wp {
		first = r.buf[r.wp : r.rp-1]
	} else if r.rp == 0 {
		first = r.buf[r.wp : len(r.buf)-1]
	} else {
		first = r.buf[r.wp:]
		second = r.buf[:r.rp-1]
	}

	r.iov = r.iov[:0]
	if len(first) > 0 {
		r.iov = append(r.iov, first)
	}
	if len(second) > 0 {
		r.iov = append(r.iov, second)
	}
	return r.iov
}
