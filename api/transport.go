// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Defines the socket abstraction used by the protocol core. The core
// begins at "I have a connected fd"; establishing the stream is left to
// the transport package.

package api

// VectorReader performs one scatter read.
type VectorReader interface {
	Readv(iovs [][]byte) (n int, err error)
}

// VectorWriter performs one gather write.
type VectorWriter interface {
	Writev(iovs [][]byte) (n int, err error)
}

// Socket is a connected, non-blocking, bidirectional byte stream.
type Socket interface {
	VectorReader
	VectorWriter

	// Fd returns the OS file descriptor used for readiness polling.
	Fd() int

	// Close shuts the stream down.
	Close() error
}
