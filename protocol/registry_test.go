// File: protocol/registry_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"context"
	"errors"
	"testing"

	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/wire"
)

var echoInterface = &Interface{
	Name:     "wth_test_echo",
	Version:  2,
	Requests: []MessageDesc{{Name: "ping", Signature: "u"}},
	Events:   []MessageDesc{{Name: "pong", Signature: "u"}},
}

type seenGlobal struct {
	name    uint32
	iface   string
	version uint32
}

// watchRegistry creates a client registry that records globals.
func watchRegistry(t *testing.T, cli *Connection) (*Registry, map[uint32]seenGlobal, *[]uint32) {
	t.Helper()
	reg, err := cli.Display().GetRegistry()
	if err != nil {
		t.Fatal(err)
	}
	seen := map[uint32]seenGlobal{}
	var removed []uint32
	err = reg.SetListener(&RegistryListener{
		Global: func(_ *Registry, name uint32, iface string, version uint32) {
			seen[name] = seenGlobal{name, iface, version}
		},
		GlobalRemove: func(_ *Registry, name uint32) {
			delete(seen, name)
			removed = append(removed, name)
		},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return reg, seen, &removed
}

func TestAddGlobal_Validation(t *testing.T) {
	srv, _ := fakeConn(t, api.SideServer)
	if _, err := srv.AddGlobal(echoInterface, 3, nil); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("Version above interface: %v", err)
	}
	if _, err := srv.AddGlobal(nil, 1, nil); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("Nil interface: %v", err)
	}
	g1, _ := srv.AddGlobal(echoInterface, 1, nil)
	g2, _ := srv.AddGlobal(CallbackInterface, 1, nil)
	if g1.Name() != 1 || g2.Name() != 2 {
		t.Errorf("Names %d, %d; want 1, 2", g1.Name(), g2.Name())
	}
	if err := srv.RemoveGlobal(g1); err != nil {
		t.Fatal(err)
	}
	if err := srv.RemoveGlobal(g1); !errors.Is(err, api.ErrNotFound) {
		t.Errorf("Second RemoveGlobal = %v", err)
	}
}

func TestRegistry_AdvertiseAndBind(t *testing.T) {
	cli, srv, _ := connPair(t)

	var bound *Object
	var boundVersion uint32
	g, err := srv.AddGlobal(echoInterface, 2, func(o *Object, version uint32) error {
		bound, boundVersion = o, version
		return o.SetTable(OperationTable{
			func(o *Object, args *wire.Decoder) error {
				v := args.Uint()
				return o.Post(0, func(e *wire.Encoder) { e.Uint(v + 1) })
			},
		}, nil)
	})
	if err != nil {
		t.Fatal(err)
	}

	reg, seen, _ := watchRegistry(t, cli)
	if err := cli.Roundtrip(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := seenGlobal{g.Name(), echoInterface.Name, 2}
	if seen[g.Name()] != want {
		t.Fatalf("Advertised %+v, want %+v", seen, want)
	}

	obj, err := reg.Bind(g.Name(), echoInterface, 2)
	if err != nil {
		t.Fatal(err)
	}
	var pong uint32
	if err := obj.SetTable(OperationTable{
		func(_ *Object, args *wire.Decoder) error {
			pong = args.Uint()
			return args.Err()
		},
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := obj.Post(0, func(e *wire.Encoder) { e.Uint(41) }); err != nil {
		t.Fatal(err)
	}
	if err := cli.Roundtrip(context.Background()); err != nil {
		t.Fatal(err)
	}
	if bound == nil || bound.ID() != obj.ID() || boundVersion != 2 {
		t.Fatalf("Server bound %v version %d, want id %d", bound, boundVersion, obj.ID())
	}
	if srv.Object(obj.ID()) != bound {
		t.Error("Bound object not registered under the client id")
	}
	if pong != 42 {
		t.Errorf("pong = %d, want 42", pong)
	}
}

func TestRegistry_LateGlobalAndRemove(t *testing.T) {
	cli, srv, _ := connPair(t)
	_, seen, removed := watchRegistry(t, cli)
	if err := cli.Roundtrip(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 0 {
		t.Fatalf("Unexpected globals %+v", seen)
	}

	g, err := srv.AddGlobal(echoInterface, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := cli.Roundtrip(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := seen[g.Name()]; !ok {
		t.Fatal("Global added after get_registry was not announced")
	}

	if err := srv.RemoveGlobal(g); err != nil {
		t.Fatal(err)
	}
	if err := cli.Roundtrip(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(*removed) != 1 || (*removed)[0] != g.Name() || len(seen) != 0 {
		t.Errorf("Removal not seen: removed %v, left %+v", *removed, seen)
	}
}

func TestRegistry_BindRejected(t *testing.T) {
	cases := []struct {
		name    string
		global  uint32
		iface   *Interface
		version uint32
	}{
		{"unknown global", 9, echoInterface, 1},
		{"interface mismatch", 1, CallbackInterface, 1},
		{"version too new", 1, echoInterface, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cli, srv, _ := connPair(t)
			if _, err := srv.AddGlobal(echoInterface, 1, nil); err != nil {
				t.Fatal(err)
			}
			reg, _, _ := watchRegistry(t, cli)
			if _, err := reg.Bind(tc.global, tc.iface, tc.version); err != nil {
				t.Fatal(err)
			}
			err := cli.Roundtrip(context.Background())
			if !errors.Is(err, api.ErrProtocol) {
				t.Fatalf("Expected protocol error, got %v", err)
			}
			pe := cli.ProtocolError()
			if pe.ObjectID != reg.ID() || pe.Interface != RegistryInterface.Name || pe.Code != DisplayErrorInvalidObject {
				t.Errorf("Client recorded %+v", pe)
			}
			if srv.State() != api.StateProtocolError {
				t.Errorf("Server state %v", srv.State())
			}
		})
	}
}

func TestBindFuncErrorIsImplementation(t *testing.T) {
	cli, srv, _ := connPair(t)
	g, _ := srv.AddGlobal(echoInterface, 1, func(*Object, uint32) error {
		return errors.New("out of widgets")
	})
	reg, _, _ := watchRegistry(t, cli)
	if _, err := reg.Bind(g.Name(), echoInterface, 1); err != nil {
		t.Fatal(err)
	}
	if err := cli.Roundtrip(context.Background()); !errors.Is(err, api.ErrProtocol) {
		t.Fatalf("Roundtrip = %v", err)
	}
	if code := cli.ProtocolError().Code; code != DisplayErrorImplementation {
		t.Errorf("Code %d, want implementation", code)
	}
}
