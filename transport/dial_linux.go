//go:build linux
// +build linux

// File: transport/dial_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection setup. Dialing and accepting go through package net so
// that context cancellation and address resolution behave as usual; the
// resulting descriptor is then detached into a raw Socket.

package transport

import (
	"context"
	"fmt"
	"net"
	"syscall"
)

// Network names accepted by Dial and Listen.
const (
	NetworkTCP      = "tcp"
	NetworkUnix     = "unix"
	NetworkAbstract = "abstract"
)

// detach moves the descriptor of c into a Socket and closes c.
func detach(c net.Conn) (*Socket, error) {
	defer c.Close()
	sc, ok := c.(syscall.Conn)
	if !ok {
		return nil, fmt.Errorf("transport: %T has no descriptor", c)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}
	var (
		s    *Socket
		dErr error
	)
	if err := raw.Control(func(fd uintptr) {
		s, dErr = DupFD(int(fd))
	}); err != nil {
		return nil, err
	}
	return s, dErr
}

func resolve(network, addr string) (string, string, error) {
	switch network {
	case NetworkTCP, "tcp4", "tcp6":
		return network, addr, nil
	case NetworkUnix:
		return "unix", addr, nil
	case NetworkAbstract:
		// Linux abstract namespace: no filesystem entry.
		return "unix", "@" + addr, nil
	default:
		return "", "", fmt.Errorf("transport: unknown network %q", network)
	}
}

// Dial connects to addr and returns a non-blocking Socket. TCP sockets
// have Nagle's algorithm disabled.
func Dial(ctx context.Context, network, addr string) (*Socket, error) {
	nw, a, err := resolve(network, addr)
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	c, err := d.DialContext(ctx, nw, a)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s %s: %w", network, addr, err)
	}
	if tc, ok := c.(*net.TCPConn); ok {
		if err := tc.SetNoDelay(true); err != nil {
			c.Close()
			return nil, fmt.Errorf("transport: TCP_NODELAY: %w", err)
		}
	}
	return detach(c)
}

// Listener accepts connections as raw Sockets.
type Listener struct {
	ln      net.Listener
	network string
}

// Listen binds addr on network.
func Listen(network, addr string) (*Listener, error) {
	nw, a, err := resolve(network, addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen(nw, a)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s %s: %w", network, addr, err)
	}
	return &Listener{ln: ln, network: network}, nil
}

// Accept waits for the next connection or ctx cancellation.
func (l *Listener) Accept(ctx context.Context) (*Socket, error) {
	type result struct {
		c   net.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.ln.Accept()
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if tc, ok := r.c.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}
		return detach(r.c)
	case <-ctx.Done():
		// Unblock the pending Accept; the listener is unusable afterwards.
		l.ln.Close()
		if r := <-ch; r.c != nil {
			r.c.Close()
		}
		return nil, ctx.Err()
	}
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Network returns the network the listener was created with.
func (l *Listener) Network() string { return l.network }

// Close stops listening.
func (l *Listener) Close() error { return l.ln.Close() }
