// File: pool/ring.go
// Author: momentics <momentics@gmail.com>
//
// Lock-free handoff ring between exactly one producer goroutine and one
// consumer goroutine. The producer may block on a full ring with
// EnqueueWait; the consumer never blocks and empties the ring with Drain.

package pool

import (
	"context"
	"sync/atomic"
	"time"
)

// cacheLine separates the producer and consumer cursors.
const cacheLine = 64

// RingBuffer is a fixed-capacity SPSC ring (power-of-two size). The relay
// uses it to pass accepted sessions to its reactor goroutine.
type RingBuffer[T any] struct {
	data []T
	mask uint64

	head atomic.Uint64 // next slot to read; written by the consumer
	_    [cacheLine - 8]byte
	tail atomic.Uint64 // next slot to write; written by the producer
	_    [cacheLine - 8]byte
}

// NewRingBuffer allocates a ring with size slots. size must be a power of
// two.
func NewRingBuffer[T any](size uint64) *RingBuffer[T] {
	if size == 0 || (size&(size-1)) != 0 {
		panic("pool: ring size must be a power of two")
	}
	return &RingBuffer[T]{
		data: make([]T, size),
		mask: size - 1,
	}
}

// Enqueue adds val and reports false when the ring is full. Producer only.
func (r *RingBuffer[T]) Enqueue(val T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() == uint64(len(r.data)) {
		return false
	}
	r.data[tail&r.mask] = val
	r.tail.Store(tail + 1)
	return true
}

// EnqueueWait adds val, sleeping between attempts while the ring is full.
// The pause starts at minBackoff and doubles up to maxBackoff. It returns
// ctx.Err() if ctx ends first, in which case val was not queued. Producer
// only.
func (r *RingBuffer[T]) EnqueueWait(ctx context.Context, val T, minBackoff, maxBackoff time.Duration) error {
	if minBackoff <= 0 {
		minBackoff = time.Millisecond
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	pause := minBackoff
	for !r.Enqueue(val) {
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if pause *= 2; pause > maxBackoff {
			pause = maxBackoff
		}
	}
	return nil
}

// Dequeue removes the oldest item; ok is false when the ring is empty.
// Consumer only.
func (r *RingBuffer[T]) Dequeue() (res T, ok bool) {
	head := r.head.Load()
	if head == r.tail.Load() {
		return res, false
	}
	idx := head & r.mask
	res = r.data[idx]
	var zero T
	r.data[idx] = zero
	r.head.Store(head + 1)
	return res, true
}

// Drain hands every item present on entry to fn in FIFO order and returns
// how many it handed over. Items enqueued meanwhile wait for the next call.
// Consumer only.
func (r *RingBuffer[T]) Drain(fn func(T)) int {
	head, tail := r.head.Load(), r.tail.Load()
	var zero T
	for i := head; i != tail; i++ {
		v := r.data[i&r.mask]
		r.data[i&r.mask] = zero
		r.head.Store(i + 1)
		fn(v)
	}
	return int(tail - head)
}

// Len returns the number of queued items.
func (r *RingBuffer[T]) Len() int {
	head := r.head.Load()
	return int(r.tail.Load() - head)
}

// Cap returns the ring capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.data)
}
