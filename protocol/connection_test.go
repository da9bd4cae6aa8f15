// File: protocol/connection_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/wire"
	"golang.org/x/sys/unix"
)

func TestNewConnection_DisplayID(t *testing.T) {
	for _, side := range []api.Side{api.SideClient, api.SideServer} {
		c, _ := fakeConn(t, side)
		if c.Display().ID() != DisplayID {
			t.Errorf("%s display id = %d", side, c.Display().ID())
		}
		if c.Object(DisplayID) != c.Display().Object {
			t.Errorf("%s display not registered", side)
		}
		if c.State() != api.StateActive || c.Err() != nil {
			t.Errorf("%s initial state %v", side, c.State())
		}
	}
}

func TestSetTable_Once(t *testing.T) {
	c, _ := fakeConn(t, api.SideClient)
	cb, err := c.Display().Sync()
	if err != nil {
		t.Fatal(err)
	}
	if err := cb.SetListener(&CallbackListener{}, nil); err != nil {
		t.Fatal(err)
	}
	if err := cb.SetListener(&CallbackListener{}, nil); !errors.Is(err, api.ErrTableAlreadySet) {
		t.Errorf("Expected ErrTableAlreadySet, got %v", err)
	}
}

func TestWrongSideCalls(t *testing.T) {
	cli, _ := fakeConn(t, api.SideClient)
	srv, _ := fakeConn(t, api.SideServer)

	if err := cli.Display().PostError(DisplayErrorImplementation, "x"); !errors.Is(err, api.ErrWrongSide) {
		t.Errorf("Client PostError = %v", err)
	}
	if err := cli.Display().DeleteID(3); !errors.Is(err, api.ErrWrongSide) {
		t.Errorf("Client DeleteID = %v", err)
	}
	if _, err := cli.AddGlobal(CallbackInterface, 1, nil); !errors.Is(err, api.ErrWrongSide) {
		t.Errorf("Client AddGlobal = %v", err)
	}
	if _, err := srv.Display().Sync(); !errors.Is(err, api.ErrWrongSide) {
		t.Errorf("Server Sync = %v", err)
	}
	if cli.State() != api.StateActive || srv.State() != api.StateActive {
		t.Error("Usage errors must not change connection state")
	}
}

func TestRead_EOFAndSoftError(t *testing.T) {
	c, sock := fakeConn(t, api.SideClient)
	if err := c.Read(); !errors.Is(err, api.ErrAgain) {
		t.Fatalf("Expected ErrAgain, got %v", err)
	}
	if c.State() != api.StateActive {
		t.Fatal("EAGAIN changed state")
	}
	sock.Stream.SetError(unix.ECONNRESET)
	if err := c.Read(); !errors.Is(err, unix.ECONNRESET) {
		t.Fatalf("Expected ECONNRESET, got %v", err)
	}
	if c.State() != api.StateSoftError {
		t.Fatalf("State %v, want soft-error", c.State())
	}
	calls := sock.ReadvCalls
	if err := c.Read(); !errors.Is(err, unix.ECONNRESET) {
		t.Errorf("SoftError Read = %v", err)
	}
	if sock.ReadvCalls != calls {
		t.Error("Read in SoftError touched the socket")
	}
	if err := c.Display().ClientVersion(1); !errors.Is(err, unix.ECONNRESET) {
		t.Errorf("Write in SoftError = %v", err)
	}

	c2, sock2 := fakeConn(t, api.SideClient)
	sock2.Stream.CloseWrite()
	if err := c2.Read(); !errors.Is(err, api.ErrConnectionClosed) {
		t.Errorf("EOF Read = %v", err)
	}
}

func TestDispatch_UnknownObjectServerPostsError(t *testing.T) {
	srv, sock := fakeConn(t, api.SideServer)
	sock.Stream.Push(raw(t, 42, 0, nil))
	if err := srv.Read(); err != nil {
		t.Fatal(err)
	}
	n, err := srv.Dispatch()
	if n != 1 || !errors.Is(err, api.ErrProtocol) {
		t.Fatalf("Dispatch = %d, %v", n, err)
	}
	pe := srv.ProtocolError()
	if pe.ObjectID != 42 || pe.Code != DisplayErrorInvalidObject {
		t.Errorf("Recorded %+v", pe)
	}
	hs := headers(t, sock.Sink.Bytes())
	if len(hs) != 1 || hs[0].ID != DisplayID || hs[0].Opcode != DisplayError {
		t.Fatalf("Expected one display.error, got %+v", hs)
	}
	d := wire.NewDecoder(sock.Sink.Bytes()[wire.HeaderSize:])
	if obj, code := d.Object(), d.Uint(); obj != 42 || code != DisplayErrorInvalidObject {
		t.Errorf("error event carries object %d code %d", obj, code)
	}
}

func TestDispatch_InvalidMethod(t *testing.T) {
	cases := map[string][]byte{
		"opcode out of range": nil,
		"truncated argument":  nil,
		"null new_id":         nil,
	}
	cases["opcode out of range"] = raw(t, DisplayID, 9, nil)
	cases["truncated argument"] = raw(t, DisplayID, DisplayClientVersion, nil)
	cases["null new_id"] = raw(t, DisplayID, DisplaySync, func(e *wire.Encoder) { e.NewID(0) })

	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			srv, sock := fakeConn(t, api.SideServer)
			sock.Stream.Push(msg)
			if err := srv.Read(); err != nil {
				t.Fatal(err)
			}
			_, _ = srv.Dispatch()
			pe := srv.ProtocolError()
			if pe == nil || pe.Code != DisplayErrorInvalidMethod || pe.Interface != DisplayInterface.Name {
				t.Errorf("Recorded %+v", pe)
			}
		})
	}
}

func TestDispatch_ClientDiscardsBadEvents(t *testing.T) {
	cli, sock := fakeConn(t, api.SideClient)
	sock.Stream.Push(append(raw(t, 55, 0, nil), raw(t, DisplayID, 9, nil)...))
	if err := cli.Read(); err != nil {
		t.Fatal(err)
	}
	n, err := cli.Dispatch()
	if n != 2 || err != nil {
		t.Errorf("Dispatch = %d, %v", n, err)
	}
	if cli.State() != api.StateActive {
		t.Errorf("Client changed state to %v", cli.State())
	}
	if len(sock.Sink.Bytes()) != 0 {
		t.Error("Client answered a bad event")
	}
}

// TestProtocolError_Sticky checks that nothing runs after a protocol error
// while the socket keeps draining and writes still go out.
func TestProtocolError_Sticky(t *testing.T) {
	cli, sock := fakeConn(t, api.SideClient)
	sock.Stream.Push(raw(t, DisplayID, DisplayError, func(e *wire.Encoder) {
		e.Object(DisplayID).Uint(DisplayErrorImplementation).String("boom")
	}))
	if err := cli.Read(); err != nil {
		t.Fatal(err)
	}
	if _, err := cli.Dispatch(); !errors.Is(err, api.ErrProtocol) {
		t.Fatalf("Dispatch = %v", err)
	}
	pe := cli.ProtocolError()
	if pe.Interface != DisplayInterface.Name || pe.Code != DisplayErrorImplementation || pe.Message != "boom" {
		t.Errorf("Recorded %+v", pe)
	}

	ran := false
	cb, _ := cli.Display().Sync()
	_ = cb.SetListener(&CallbackListener{Done: func(*Callback, uint32) { ran = true }}, nil)
	sock.Stream.Push(raw(t, cb.ID(), CallbackDone, func(e *wire.Encoder) { e.Uint(0) }))

	if err := cli.Read(); !errors.Is(err, api.ErrProtocol) {
		t.Errorf("Read in ProtocolError = %v", err)
	}
	if cli.reader.Len() != 0 {
		t.Error("Messages kept after draining in ProtocolError")
	}
	if n, err := cli.Dispatch(); n != 0 || !errors.Is(err, api.ErrProtocol) {
		t.Errorf("Dispatch = %d, %v", n, err)
	}
	if ran {
		t.Error("Callback executed in ProtocolError")
	}

	// A later error never replaces the first triple.
	cli.setProtocolError(9, "other", 1, "later")
	if cli.ProtocolError() != pe {
		t.Error("Protocol error triple was replaced")
	}
	if hs := headers(t, sock.Sink.Bytes()); len(hs) != 1 || hs[0].Opcode != DisplaySync {
		t.Errorf("Outgoing sync not written in ProtocolError: %+v", hs)
	}
}

func TestDispatch_WalksFramedInProtocolError(t *testing.T) {
	srv, sock := fakeConn(t, api.SideServer)
	sock.Stream.Push(append(raw(t, 42, 0, nil),
		raw(t, DisplayID, DisplayClientVersion, func(e *wire.Encoder) { e.Uint(5) })...))
	if err := srv.Read(); err != nil {
		t.Fatal(err)
	}
	n, _ := srv.Dispatch()
	if n != 2 {
		t.Errorf("Walked %d messages, want 2", n)
	}
	if srv.ClientVersion() != 0 {
		t.Error("Request executed after protocol error")
	}
}

func TestRead_CorruptStream(t *testing.T) {
	srv, sock := fakeConn(t, api.SideServer)
	bad := make([]byte, wire.HeaderSize)
	wire.Header{ID: DisplayID, Size: 0}.Put(bad)
	sock.Stream.Push(bad)
	if err := srv.Read(); !errors.Is(err, api.ErrProtocol) {
		t.Fatalf("Read = %v", err)
	}
	if srv.ProtocolError().Code != DisplayErrorInvalidMethod {
		t.Errorf("Recorded %+v", srv.ProtocolError())
	}
	if hs := headers(t, sock.Sink.Bytes()); len(hs) != 1 || hs[0].Opcode != DisplayError {
		t.Errorf("Expected display.error, got %+v", hs)
	}
}

func TestWrite_PartialQueuesAndFlush(t *testing.T) {
	cli, sock := fakeConn(t, api.SideClient)
	sock.Sink.Limit = 5

	if err := cli.Display().ClientVersion(3); err != nil {
		t.Fatal(err)
	}
	if cli.Pending() != 1 {
		t.Fatalf("Pending = %d after short write", cli.Pending())
	}
	calls := sock.WritevCalls
	if err := cli.Display().ClientVersion(4); err != nil {
		t.Fatal(err)
	}
	if sock.WritevCalls != calls || cli.Pending() != 2 {
		t.Fatal("Later message overtook the queued remainder")
	}

	flushes := 0
	for {
		err := cli.Flush()
		if err == nil {
			break
		}
		if !errors.Is(err, api.ErrAgain) {
			t.Fatalf("Flush: %v", err)
		}
		if flushes++; flushes > 10 {
			t.Fatal("Flush made no progress")
		}
	}
	want := append(raw(t, DisplayID, DisplayClientVersion, func(e *wire.Encoder) { e.Uint(3) }),
		raw(t, DisplayID, DisplayClientVersion, func(e *wire.Encoder) { e.Uint(4) })...)
	if !bytes.Equal(sock.Sink.Bytes(), want) {
		t.Errorf("Wire bytes %x, want %x", sock.Sink.Bytes(), want)
	}
	if cli.Pending() != 0 {
		t.Errorf("Pending = %d after Flush", cli.Pending())
	}
}

func TestDestroy(t *testing.T) {
	c, sock := fakeConn(t, api.SideClient)
	if err := c.Destroy(); err != nil {
		t.Fatal(err)
	}
	if !sock.Closed() {
		t.Error("Socket left open")
	}
	if err := c.Destroy(); !errors.Is(err, api.ErrTransportClosed) {
		t.Errorf("Second Destroy = %v", err)
	}
	if err := c.Read(); !errors.Is(err, api.ErrTransportClosed) {
		t.Errorf("Read after Destroy = %v", err)
	}
}
