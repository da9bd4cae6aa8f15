// File: protocol/helpers_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"errors"
	"testing"

	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/fake"
	"github.com/momentics/hioload-wth/transport"
	"github.com/momentics/hioload-wth/wire"
)

// serve runs one non-blocking server iteration.
func serve(t *testing.T, s *Connection) {
	t.Helper()
	if err := s.Read(); err != nil && !errors.Is(err, api.ErrAgain) && s.State() == api.StateActive {
		t.Fatalf("server Read: %v", err)
	}
	_, _ = s.Dispatch()
	_ = s.Flush()
}

// stepper returns a poller that lets the server run before every client
// wait, so no goroutines are involved.
func stepper(t *testing.T, srv **Connection) *fake.Poller {
	return &fake.Poller{Step: func(_ int, _ int, _ api.PollEvents) (api.PollEvents, error) {
		serve(t, *srv)
		return api.PollIn, nil
	}}
}

// connPair returns a client and server joined by a real socketpair.
func connPair(t *testing.T, clientOpts ...Option) (*Connection, *Connection, *transport.Socket) {
	t.Helper()
	a, b, err := transport.Pair()
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	var srv *Connection
	opts := append([]Option{WithPoller(stepper(t, &srv))}, clientOpts...)
	cli, err := NewConnection(a, api.SideClient, opts...)
	if err != nil {
		t.Fatal(err)
	}
	srv, err = NewConnection(b, api.SideServer)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = cli.Destroy()
		_ = srv.Destroy()
	})
	return cli, srv, b
}

// fakeConn returns a connection over a scripted socket.
func fakeConn(t *testing.T, side api.Side) (*Connection, *fake.Socket) {
	t.Helper()
	sock := fake.NewSocket()
	c, err := NewConnection(sock, side, WithPoller(&fake.Poller{}), WithRingCapacity(4096))
	if err != nil {
		t.Fatal(err)
	}
	return c, sock
}

// raw encodes a message for injection into a stream.
func raw(t *testing.T, id uint32, opcode uint16, build func(e *wire.Encoder)) []byte {
	t.Helper()
	e := wire.NewEncoder(id, opcode)
	defer e.Release()
	if build != nil {
		build(e)
	}
	b, err := e.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return append([]byte(nil), b...)
}

// headers splits a byte stream into message headers.
func headers(t *testing.T, stream []byte) []wire.Header {
	t.Helper()
	var out []wire.Header
	for len(stream) > 0 {
		h, err := wire.ParseHeader(stream)
		if err != nil {
			t.Fatalf("ParseHeader: %v", err)
		}
		out = append(out, h)
		stream = stream[h.Size:]
	}
	return out
}
