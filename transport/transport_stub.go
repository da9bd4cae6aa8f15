//go:build !linux
// +build !linux

// File: transport/transport_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package transport

import (
	"context"
	"errors"
	"net"

	"github.com/momentics/hioload-wth/api"
)

var errUnsupported = errors.New("transport: this platform is not supported")

const (
	NetworkTCP      = "tcp"
	NetworkUnix     = "unix"
	NetworkAbstract = "abstract"
)

// Socket is unavailable on this platform.
type Socket struct{}

var _ api.Socket = (*Socket)(nil)

func (*Socket) Fd() int { return -1 }
func (*Socket) Readv([][]byte) (int, error) { return 0, errUnsupported }
func (*Socket) Writev([][]byte) (int, error) { return 0, errUnsupported }
func (*Socket) CloseWrite() error { return errUnsupported }
func (*Socket) Close() error { return errUnsupported }
func FromFD(int) (*Socket, error) { return nil, errUnsupported }
func DupFD(int) (*Socket, error) { return nil, errUnsupported }
func Pair() (*Socket, *Socket, error) { return nil, nil, errUnsupported }
func Dial(context.Context, string, string) (*Socket, error) {
	return nil, errUnsupported
}

// Listener is unavailable on this platform.
type Listener struct{}

func Listen(string, string) (*Listener, error) { return nil, errUnsupported }
func (*Listener) Accept(context.Context) (*Socket, error) { return nil, errUnsupported }
func (*Listener) Addr() net.Addr { return nil }
func (*Listener) Network() string { return "" }
func (*Listener) Close() error { return errUnsupported }
