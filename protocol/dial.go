// File: protocol/dial.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection setup helpers. The core itself starts at "I have a connected
// socket"; these only glue package transport to NewConnection.

package protocol

import (
	"context"

	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/transport"
)

// Dial connects to a server and returns the client end.
// network is one of transport.NetworkTCP, NetworkUnix or NetworkAbstract.
func Dial(ctx context.Context, network, addr string, opts ...Option) (*Connection, error) {
	s, err := transport.Dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	c, err := NewConnection(s, api.SideClient, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	return c, nil
}

// DialUnix connects to a server listening on the Linux abstract socket
// name.
func DialUnix(ctx context.Context, name string, opts ...Option) (*Connection, error) {
	return Dial(ctx, transport.NetworkAbstract, name, opts...)
}

// Accept waits for one client on ln and returns the server end.
func Accept(ctx context.Context, ln *transport.Listener, opts ...Option) (*Connection, error) {
	s, err := ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	c, err := NewConnection(s, api.SideServer, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	return c, nil
}
