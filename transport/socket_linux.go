//go:build linux
// +build linux

// File: transport/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw non-blocking stream socket with readv/writev.

package transport

import (
	"fmt"
	"sync/atomic"

	"github.com/momentics/hioload-wth/api"
	"golang.org/x/sys/unix"
)

// Socket owns a non-blocking stream descriptor.
type Socket struct {
	fd     int
	closed atomic.Bool
}

var _ api.Socket = (*Socket)(nil)

// FromFD takes ownership of fd and switches it to non-blocking mode.
func FromFD(fd int) (*Socket, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("set nonblock: %w", err)
	}
	return &Socket{fd: fd}, nil
}

// DupFD wraps a duplicate of fd, leaving the original with the caller.
func DupFD(fd int) (*Socket, error) {
	nfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("dup: %w", err)
	}
	s, err := FromFD(nfd)
	if err != nil {
		unix.Close(nfd)
		return nil, err
	}
	return s, nil
}

// Pair returns two connected in-process sockets.
func Pair() (*Socket, *Socket, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}
	return &Socket{fd: fds[0]}, &Socket{fd: fds[1]}, nil
}

// Fd returns the descriptor, or -1 after Close.
func (s *Socket) Fd() int {
	if s.closed.Load() {
		return -1
	}
	return s.fd
}

// Readv scatters one read across iovs.
func (s *Socket) Readv(iovs [][]byte) (int, error) {
	if s.closed.Load() {
		return 0, api.ErrTransportClosed
	}
	for {
		n, err := unix.Readv(s.fd, iovs)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

// Writev gathers iovs into one write. A vanished peer yields EPIPE.
func (s *Socket) Writev(iovs [][]byte) (int, error) {
	if s.closed.Load() {
		return 0, api.ErrTransportClosed
	}
	for {
		n, err := unix.Writev(s.fd, iovs)
		if err == unix.EINTR {
			continue
		}
		if n < 0 {
			n = 0
		}
		return n, err
	}
}

// CloseWrite half-closes the socket; the peer reads end-of-stream.
func (s *Socket) CloseWrite() error {
	if s.closed.Load() {
		return api.ErrTransportClosed
	}
	return unix.Shutdown(s.fd, unix.SHUT_WR)
}

// Close releases the descriptor. Subsequent calls report ErrTransportClosed.
func (s *Socket) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return api.ErrTransportClosed
	}
	return unix.Close(s.fd)
}
