// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory primitives shared by the protocol runtime: the growable Array
// behind the ring reader's message table and the id map, a generic
// sync.Pool wrapper recycling encoder buffers, and a lock-free SPSC ring
// for cross-goroutine handoff.
package pool
