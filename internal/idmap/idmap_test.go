// File: internal/idmap/idmap_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package idmap

import (
	"errors"
	"testing"

	"github.com/momentics/hioload-wth/api"
)

func TestInsertNew_SideBases(t *testing.T) {
	c := New[string](api.SideClient)
	id, err := c.InsertNew("display", 0)
	if err != nil || id != 1 {
		t.Fatalf("Client first id = %d, %v; want 1", id, err)
	}
	s := New[string](api.SideServer)
	id, err = s.InsertNew("first", 0x5)
	if err != nil || id != ServerIDStart {
		t.Fatalf("Server first id = %#x, %v; want %#x", id, err, ServerIDStart)
	}
	if s.Flags(id) != 0x5 {
		t.Errorf("Flags lost: %d", s.Flags(id))
	}
	if v, ok := s.Lookup(id); !ok || v != "first" {
		t.Errorf("Lookup(%#x) = %q, %v", id, v, ok)
	}
}

func TestLookup_NullAndOutOfRange(t *testing.T) {
	m := New[int](api.SideClient)
	if _, ok := m.Lookup(NullID); ok {
		t.Error("Id 0 must never resolve")
	}
	if _, ok := m.Lookup(42); ok {
		t.Error("Out-of-range client id resolved")
	}
	if _, ok := m.Lookup(ServerIDStart + 7); ok {
		t.Error("Out-of-range server id resolved")
	}
	if err := New[int](api.SideServer).InsertAt(NullID, 1, 0); !errors.Is(err, api.ErrAlreadyExists) {
		t.Errorf("InsertAt(0) should fail, got %v", err)
	}
}

func TestRemove_NoReuseByDefault(t *testing.T) {
	m := New[int](api.SideClient)
	a, _ := m.InsertNew(10, 0)
	b, _ := m.InsertNew(20, 0)
	m.Remove(a)
	if _, ok := m.Lookup(a); ok {
		t.Error("Removed id still resolves")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
	c, _ := m.InsertNew(30, 0)
	if c == a || c != b+1 {
		t.Errorf("Expected monotonic id %d, got %d", b+1, c)
	}
}

func TestRemove_ReuseFromFreeList(t *testing.T) {
	m := New[int](api.SideServer, WithReuse(true))
	a, _ := m.InsertNew(1, 0)
	b, _ := m.InsertNew(2, 0)
	m.Remove(a)
	m.Remove(b)
	// LIFO free list.
	if id, _ := m.InsertNew(3, 0); id != b {
		t.Errorf("Expected reuse of %#x, got %#x", b, id)
	}
	if id, _ := m.InsertNew(4, 0); id != a {
		t.Errorf("Expected reuse of %#x, got %#x", a, id)
	}
	if id, _ := m.InsertNew(5, 0); id != ServerIDStart+2 {
		t.Errorf("Expected append after free list drained, got %#x", id)
	}
}

func TestPeerRemove_NotLocallyReused(t *testing.T) {
	m := New[int](api.SideServer, WithReuse(true))
	if err := m.InsertAt(1, 100, 0); err != nil {
		t.Fatal(err)
	}
	m.Remove(1)
	id, _ := m.InsertNew(7, 0)
	if !IsServerID(id) {
		t.Fatalf("Server allocated client-namespace id %d", id)
	}
	if err := m.Reserve(1); err != nil {
		t.Errorf("Vacated peer id should be reservable: %v", err)
	}
	if err := m.InsertAt(1, 101, 0); err != nil {
		t.Errorf("InsertAt into reserved slot: %v", err)
	}
}

func TestHold_KeepsIDUntilRemove(t *testing.T) {
	m := New[string](api.SideClient, WithReuse(true))
	a, _ := m.InsertNew("callback", 0)
	m.Hold(a)
	if _, ok := m.Lookup(a); ok {
		t.Error("Held id still resolves")
	}
	if !m.Held(a) || m.Len() != 0 {
		t.Errorf("Held(%d) = %v, Len = %d", a, m.Held(a), m.Len())
	}
	b, _ := m.InsertNew("registry", 0)
	if b == a {
		t.Fatalf("Held id %d handed out again before release", a)
	}

	m.Remove(a)
	if m.Held(a) {
		t.Error("Remove did not release the held id")
	}
	if c, _ := m.InsertNew("next", 0); c != a {
		t.Errorf("Expected released id %d to be reused, got %d", a, c)
	}
	if v, ok := m.Lookup(b); !ok || v != "registry" {
		t.Errorf("Releasing %d disturbed %d: %q, %v", a, b, v, ok)
	}
}

func TestHold_PeerIDVacates(t *testing.T) {
	m := New[int](api.SideClient)
	if err := m.InsertAt(ServerIDStart, 1, 0); err != nil {
		t.Fatal(err)
	}
	m.Hold(ServerIDStart)
	if m.Held(ServerIDStart) {
		t.Error("Peer id must not be held")
	}
	if err := m.Reserve(ServerIDStart); err != nil {
		t.Errorf("Vacated peer id should be reservable: %v", err)
	}
}

func TestReserve_Rules(t *testing.T) {
	s := New[int](api.SideServer)
	if err := s.Reserve(ServerIDStart); !errors.Is(err, api.ErrWrongSide) {
		t.Errorf("Reserving own namespace should fail, got %v", err)
	}
	if err := s.Reserve(5); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("Reserving beyond next slot should fail, got %v", err)
	}
	if err := s.Reserve(1); err != nil {
		t.Fatalf("Reserve(1): %v", err)
	}
	if _, ok := s.Lookup(1); ok {
		t.Error("Reserved slot must not resolve")
	}
	if err := s.InsertAt(1, 9, 0); err != nil {
		t.Fatalf("InsertAt reserved: %v", err)
	}
	if err := s.Reserve(1); !errors.Is(err, api.ErrAlreadyExists) {
		t.Errorf("Reserving occupied slot should fail, got %v", err)
	}
	if err := s.InsertAt(1, 10, 0); !errors.Is(err, api.ErrAlreadyExists) {
		t.Errorf("InsertAt occupied slot should fail, got %v", err)
	}

	c := New[int](api.SideClient)
	if err := c.Reserve(3); !errors.Is(err, api.ErrWrongSide) {
		t.Errorf("Client reserving client id should fail, got %v", err)
	}
	if err := c.InsertAt(ServerIDStart, 1, 0); err != nil {
		t.Errorf("Client InsertAt first server id: %v", err)
	}
	if err := c.InsertAt(ServerIDStart+5, 1, 0); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("InsertAt beyond next slot should fail, got %v", err)
	}
}

func TestForEach_ClientFirstAndStop(t *testing.T) {
	m := New[string](api.SideClient)
	_ = m.InsertAt(ServerIDStart, "s0", 0)
	_, _ = m.InsertNew("c1", 0)
	_, _ = m.InsertNew("c2", 0)
	var seen []string
	m.ForEach(func(id uint32, v string) bool {
		seen = append(seen, v)
		return true
	})
	want := []string{"c1", "c2", "s0"}
	if len(seen) != len(want) {
		t.Fatalf("Visited %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("Visited %v, want %v", seen, want)
		}
	}
	n := 0
	m.ForEach(func(uint32, string) bool { n++; return false })
	if n != 1 {
		t.Errorf("Early stop visited %d entries", n)
	}
}

func TestRelease(t *testing.T) {
	m := New[int](api.SideClient)
	for i := 0; i < 100; i++ {
		if _, err := m.InsertNew(i, 0); err != nil {
			t.Fatal(err)
		}
	}
	m.Release()
	if m.Len() != 0 {
		t.Errorf("Len after Release = %d", m.Len())
	}
	if id, _ := m.InsertNew(0, 0); id != 1 {
		t.Errorf("First id after Release = %d", id)
	}
}
