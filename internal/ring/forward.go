// File: internal/ring/forward.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Verbatim re-emission of framed messages, used by pass-through relays.

package ring

import (
	"fmt"

	"github.com/momentics/hioload-wth/api"
)

// rangeOf returns the logical start and length of messages [first, last].
func (r *Reader) rangeOf(first, last int) (start, length int, err error) {
	if first < 0 || first > last || last >= r.msgs.Len() {
		return 0, 0, fmt.Errorf("ring: message range [%d,%d] of %d: %w",
			first, last, r.msgs.Len(), api.ErrInvalidArgument)
	}
	start = r.msgs.At(first).start
	l := r.msgs.At(last)
	end := r.advance(l.start, l.length)
	return start, r.distance(start, end), nil
}

// vectors builds the I/O vectors for [first, last]: up to two ring spans
// and, when last is the final message, the tail.
func (r *Reader) vectors(first, last int) ([][]byte, int, error) {
	start, length, err := r.rangeOf(first, last)
	if err != nil {
		return nil, 0, err
	}
	a, b := r.spans(start, length)
	iov := make([][]byte, 0, 3)
	iov = append(iov, a)
	if len(b) > 0 {
		iov = append(iov, b)
	}
	total := length
	if last == r.msgs.Len()-1 && len(r.tail) > 0 {
		iov = append(iov, r.tail)
		total += len(r.tail)
	}
	return iov, total, nil
}

// Forward writes messages first..last to dst with a single gather write.
// It returns the bytes written; a partial write yields ErrShortWrite and
// EAGAIN yields api.ErrAgain with n == 0.
func (r *Reader) Forward(dst api.VectorWriter, first, last int) (int, error) {
	iov, total, err := r.vectors(first, last)
	if err != nil {
		return 0, err
	}
	n, err := dst.Writev(iov)
	if err != nil {
		if api.IsTransient(err) {
			return 0, api.ErrAgain
		}
		return 0, fmt.Errorf("ring: writev: %w", err)
	}
	if n < total {
		return n, ErrShortWrite
	}
	return n, nil
}

// ForwardAll forwards every framed message and flushes the reader.
func (r *Reader) ForwardAll(dst api.VectorWriter) (int, error) {
	if r.msgs.Len() == 0 {
		return 0, nil
	}
	n, err := r.Forward(dst, 0, r.msgs.Len()-1)
	r.Flush()
	return n, err
}

// Bytes copies messages first..last (plus the tail when last is the final
// message) into a new linear buffer.
func (r *Reader) Bytes(first, last int) ([]byte, error) {
	iov, total, err := r.vectors(first, last)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, total)
	for _, v := range iov {
		out = append(out, v...)
	}
	return out, nil
}
