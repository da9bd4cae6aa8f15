// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral event reactor interface for readiness multiplexing.

package reactor

// FDEventType is a bitmask of readiness conditions.
type FDEventType uint8

const (
	EventRead FDEventType = 1 << iota
	EventWrite
	EventError
)

// FDCallback is invoked from Poll for every ready descriptor.
type FDCallback func(fd int, events FDEventType)

// Reactor multiplexes readiness of many descriptors onto callbacks.
// Callbacks run on the goroutine that calls Poll.
type Reactor interface {
	// Register starts watching fd for events.
	Register(fd int, events FDEventType, cb FDCallback) error

	// Modify changes the watched events of a registered fd.
	Modify(fd int, events FDEventType) error

	// Unregister stops watching fd. It is safe to call from a callback.
	Unregister(fd int) error

	// Poll waits up to timeoutMs (negative blocks) and runs callbacks.
	// It returns the number of descriptors that were ready.
	Poll(timeoutMs int) (int, error)

	// Close releases the reactor's kernel resources.
	Close() error
}
