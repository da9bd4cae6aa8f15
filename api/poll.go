// Package api
// Author: momentics
//
// Readiness waiting abstraction used by blocking helpers such as roundtrip.

package api

import "time"

// Poller waits for readiness on a single descriptor.
type Poller interface {
	// Wait blocks until one of the requested events is ready on fd.
	// A negative timeout blocks indefinitely. The returned set may contain
	// PollHup or PollErr even if they were not requested.
	Wait(fd int, events PollEvents, timeout time.Duration) (PollEvents, error)
}
