// File: pool/array.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Growable contiguous storage backing the id map and the ring reader's
// message table. Capacity grows from an initial allocation by doubling,
// so appends are amortised O(1) and existing elements are preserved.

package pool

// DefaultArrayAlloc is the first allocation made by an empty Array.
const DefaultArrayAlloc = 16

// Array is a growable region of T with explicit size and capacity.
// The zero value is ready to use.
type Array[T any] struct {
	data    []T
	size    int
	initial int
}

// NewArray returns an Array whose first allocation holds initial elements.
func NewArray[T any](initial int) *Array[T] {
	return &Array[T]{initial: initial}
}

// Add appends n zeroed elements and returns them as a slice.
// The returned slice is only valid until the next Add.
func (a *Array[T]) Add(n int) []T {
	if n < 0 {
		return nil
	}
	need := a.size + n
	if need > len(a.data) {
		alloc := len(a.data)
		if alloc == 0 {
			alloc = a.initial
			if alloc <= 0 {
				alloc = DefaultArrayAlloc
			}
		}
		for alloc < need {
			alloc *= 2
		}
		grown := make([]T, alloc)
		copy(grown, a.data[:a.size])
		a.data = grown
	}
	p := a.data[a.size:need:need]
	var zero T
	for i := range p {
		p[i] = zero
	}
	a.size = need
	return p
}

// At returns a pointer to element i. It panics when i is out of range.
func (a *Array[T]) At(i int) *T {
	if i < 0 || i >= a.size {
		panic("pool: array index out of range")
	}
	return &a.data[i]
}

// Len returns the number of elements in use.
func (a *Array[T]) Len() int { return a.size }

// Cap returns the allocated capacity.
func (a *Array[T]) Cap() int { return len(a.data) }

// Slice exposes the elements in use.
func (a *Array[T]) Slice() []T { return a.data[:a.size] }

// Truncate shrinks the in-use size without releasing capacity.
func (a *Array[T]) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < a.size {
		a.size = n
	}
}

// CopyFrom makes a hold exactly the elements of src.
func (a *Array[T]) CopyFrom(src *Array[T]) {
	if a.size < src.size {
		a.Add(src.size - a.size)
	} else {
		a.size = src.size
	}
	copy(a.data, src.data[:src.size])
}

// Release drops the storage. The Array may be reused afterwards.
func (a *Array[T]) Release() {
	a.data = nil
	a.size = 0
}
