//go:build linux
// +build linux

// File: relay/server_linux_test.go
// Author: momentics <momentics@gmail.com>

package relay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/fake"
	"github.com/momentics/hioload-wth/protocol"
	"github.com/momentics/hioload-wth/reactor"
	"github.com/momentics/hioload-wth/relay"
	"github.com/momentics/hioload-wth/transport"
)

// startRelay runs a relay whose upstream is an in-process socketpair. The
// server ends of those pairs are delivered on the returned channel.
func startRelay(t *testing.T) (*relay.Server, string, <-chan api.Socket) {
	t.Helper()
	name := "wth-relay-test-" + uuid.NewString()
	upstreams := make(chan api.Socket, 4)
	srv, err := relay.NewServer(relay.Config{
		Network: transport.NetworkAbstract,
		Listen:  name,
	}, relay.WithDialer(func(context.Context) (api.Socket, error) {
		a, b, err := transport.Pair()
		if err != nil {
			return nil, err
		}
		upstreams <- b
		return a, nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return srv, name, upstreams
}

// serverStepper polls the client descriptor for real, but first lets the
// upstream server make progress on this goroutine.
func serverStepper(srv **protocol.Connection) *fake.Poller {
	p := reactor.NewPoller()
	return &fake.Poller{Step: func(_ int, fd int, want api.PollEvents) (api.PollEvents, error) {
		if s := *srv; s != nil {
			_ = s.Read()
			_, _ = s.Dispatch()
			_ = s.Flush()
		}
		return p.Wait(fd, want, 10*time.Millisecond)
	}}
}

func TestRelay_RoundtripThroughRelay(t *testing.T) {
	r, name, upstreams := startRelay(t)

	var srv *protocol.Connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cli, err := protocol.Dial(ctx, transport.NetworkAbstract, name,
		protocol.WithPoller(serverStepper(&srv)))
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Destroy()

	select {
	case up := <-upstreams:
		srv, err = protocol.NewConnection(up, api.SideServer)
		if err != nil {
			t.Fatal(err)
		}
		defer srv.Destroy()
	case <-ctx.Done():
		t.Fatal("relay never dialed upstream")
	}

	var globals []string
	if _, err := srv.AddGlobal(protocol.CallbackInterface, 1, nil); err != nil {
		t.Fatal(err)
	}
	reg, err := cli.Display().GetRegistry()
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.SetListener(&protocol.RegistryListener{
		Global: func(_ *protocol.Registry, _ uint32, iface string, _ uint32) {
			globals = append(globals, iface)
		},
	}, nil); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := cli.Roundtrip(ctx); err != nil {
			t.Fatalf("Roundtrip %d: %v", i, err)
		}
	}
	if len(globals) != 1 || globals[0] != protocol.CallbackInterface.Name {
		t.Errorf("Globals through relay: %v", globals)
	}

	deadline := time.Now().Add(2 * time.Second)
	for r.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	infos := r.Sessions()
	if len(infos) != 1 || infos[0].Stats.UpstreamMessages == 0 || infos[0].Stats.DownstreamMessages == 0 {
		t.Errorf("Session stats %+v", infos)
	}
}

func TestRelay_UpstreamCloseEndsSession(t *testing.T) {
	r, name, upstreams := startRelay(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cli, err := protocol.DialUnix(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Destroy()

	up := <-upstreams
	up.Close()

	// The relay closes the downstream socket; the client sees end-of-stream.
	p := reactor.NewPoller()
	for {
		if ctx.Err() != nil {
			t.Fatal("client never saw the close")
		}
		if _, err := p.Wait(cli.Fd(), api.PollIn, 50*time.Millisecond); err != nil {
			t.Fatal(err)
		}
		err := cli.Read()
		if errors.Is(err, api.ErrAgain) {
			continue
		}
		if !errors.Is(err, api.ErrConnectionClosed) {
			t.Fatalf("Read = %v", err)
		}
		break
	}
	for r.Len() != 0 && ctx.Err() == nil {
		time.Sleep(5 * time.Millisecond)
	}
	if r.Len() != 0 {
		t.Error("Session outlived its upstream")
	}
}

func TestNewServer_NoUpstream(t *testing.T) {
	_, err := relay.NewServer(relay.Config{Network: transport.NetworkTCP, Listen: "127.0.0.1:0"})
	if !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}
