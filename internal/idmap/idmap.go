// File: internal/idmap/idmap.go
// Package idmap implements the per-connection, side-partitioned object table.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ids below ServerIDStart are allocated by the client, ids from
// ServerIDStart upward by the server. A side only allocates in its own
// namespace; slots in the peer namespace are filled on the peer's behalf
// through Reserve and InsertAt. Id 0 is never valid.

package idmap

import (
	"fmt"

	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/pool"
)

const (
	// ServerIDStart is the first id of the server namespace.
	ServerIDStart uint32 = 0xff000000

	// NullID is the permanently reserved "no object" id.
	NullID uint32 = 0

	maxClientSlots = ServerIDStart
	maxServerSlots = ^uint32(0) - ServerIDStart + 1
)

type slotState uint8

const (
	slotFree slotState = iota
	slotLive
	slotReserved
	slotSentinel
	// slotHeld is a deleted local id the peer may still reference. It
	// resolves to nothing and is not reused until Remove releases it.
	slotHeld
)

type entry[T any] struct {
	value T
	flags uint32
	state slotState
	// next links free slots; index+1, zero terminates.
	next uint32
}

type table[T any] struct {
	entries *pool.Array[entry[T]]
	free    uint32
	base    uint32
	limit   uint32
}

func (t *table[T]) count() uint32 { return uint32(t.entries.Len()) }

// Option configures a Map.
type Option func(*options)

type options struct {
	reuse bool
}

// WithReuse enables recycling of removed local ids through the free list.
// By default ids are consumed monotonically for the map's lifetime.
func WithReuse(on bool) Option {
	return func(o *options) { o.reuse = on }
}

// Map is the id table of one connection. It is not safe for concurrent use.
type Map[T any] struct {
	side   api.Side
	reuse  bool
	client table[T]
	server table[T]
	live   int
}

// New creates an empty map owned by side.
func New[T any](side api.Side, opts ...Option) *Map[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	m := &Map[T]{side: side, reuse: o.reuse}
	m.init()
	return m
}

func (m *Map[T]) init() {
	m.client = table[T]{entries: pool.NewArray[entry[T]](0), base: 0, limit: maxClientSlots}
	m.server = table[T]{entries: pool.NewArray[entry[T]](0), base: ServerIDStart, limit: maxServerSlots}
	m.client.entries.Add(1)[0].state = slotSentinel
	m.live = 0
}

// Side returns the owning side.
func (m *Map[T]) Side() api.Side { return m.side }

// Len returns the number of live entries.
func (m *Map[T]) Len() int { return m.live }

// IsServerID reports whether id lies in the server namespace.
func IsServerID(id uint32) bool { return id >= ServerIDStart }

// owns reports whether id lies in m's own allocation namespace.
func (m *Map[T]) owns(id uint32) bool {
	return IsServerID(id) == (m.side == api.SideServer)
}

func (m *Map[T]) local() *table[T] {
	if m.side == api.SideServer {
		return &m.server
	}
	return &m.client
}

func (m *Map[T]) split(id uint32) (*table[T], uint32) {
	if IsServerID(id) {
		return &m.server, id - ServerIDStart
	}
	return &m.client, id
}

// slot returns the entry for id, or nil when id is out of range.
func (m *Map[T]) slot(id uint32) *entry[T] {
	t, i := m.split(id)
	if i >= t.count() {
		return nil
	}
	return t.entries.At(int(i))
}

// InsertNew stores v under a freshly allocated id of the owning side.
func (m *Map[T]) InsertNew(v T, flags uint32) (uint32, error) {
	t := m.local()
	var i uint32
	if t.free != 0 {
		i = t.free - 1
		t.free = t.entries.At(int(i)).next
	} else {
		if t.count() >= t.limit {
			return NullID, fmt.Errorf("idmap: %s id space exhausted", m.side)
		}
		i = t.count()
		t.entries.Add(1)
	}
	e := t.entries.At(int(i))
	e.value, e.flags, e.state, e.next = v, flags, slotLive, 0
	m.live++
	return t.base + i, nil
}

// InsertAt stores v under an id chosen by the peer. The slot must be the
// next unused one, a reserved one, or a vacated one.
func (m *Map[T]) InsertAt(id uint32, v T, flags uint32) error {
	if m.owns(id) {
		return fmt.Errorf("idmap: insert at own id %d: %w", id, api.ErrWrongSide)
	}
	t, i := m.split(id)
	switch {
	case i > t.count():
		return fmt.Errorf("idmap: id %d beyond next slot %d: %w", id, t.base+t.count(), api.ErrInvalidArgument)
	case i == t.count():
		t.entries.Add(1)
	}
	e := t.entries.At(int(i))
	if e.state == slotLive || e.state == slotSentinel {
		return fmt.Errorf("idmap: id %d: %w", id, api.ErrAlreadyExists)
	}
	e.value, e.flags, e.state = v, flags, slotLive
	m.live++
	return nil
}

// Reserve marks a peer-namespace slot as assigned but not yet populated.
func (m *Map[T]) Reserve(id uint32) error {
	if m.owns(id) {
		return fmt.Errorf("idmap: reserve own id %d: %w", id, api.ErrWrongSide)
	}
	t, i := m.split(id)
	switch {
	case i > t.count():
		return fmt.Errorf("idmap: id %d beyond next slot %d: %w", id, t.base+t.count(), api.ErrInvalidArgument)
	case i == t.count():
		t.entries.Add(1)
	}
	e := t.entries.At(int(i))
	if e.state == slotLive || e.state == slotSentinel {
		return fmt.Errorf("idmap: id %d: %w", id, api.ErrAlreadyExists)
	}
	var zero T
	e.value, e.flags, e.state = zero, 0, slotReserved
	return nil
}

// Lookup returns the value stored under id.
func (m *Map[T]) Lookup(id uint32) (T, bool) {
	var zero T
	e := m.slot(id)
	if e == nil || e.state != slotLive {
		return zero, false
	}
	return e.value, true
}

// Hold drops the value stored under a local id but keeps the id out of
// circulation until Remove is called for it, typically once the peer has
// acknowledged the deletion. Peer ids are vacated as by Remove.
func (m *Map[T]) Hold(id uint32) {
	if !m.owns(id) {
		m.Remove(id)
		return
	}
	e := m.slot(id)
	if e == nil || e.state != slotLive {
		return
	}
	m.live--
	var zero T
	e.value, e.flags, e.state = zero, 0, slotHeld
}

// Held reports whether id is deleted but not yet released.
func (m *Map[T]) Held(id uint32) bool {
	e := m.slot(id)
	return e != nil && e.state == slotHeld
}

// Flags returns the flags stored with id, or 0 when id is not live.
func (m *Map[T]) Flags(id uint32) uint32 {
	e := m.slot(id)
	if e == nil || e.state != slotLive {
		return 0
	}
	return e.flags
}

// Remove vacates id, including a held one. Local ids go onto the free list
// only when reuse is enabled; peer ids become reservable again but are
// never reused locally.
func (m *Map[T]) Remove(id uint32) {
	e := m.slot(id)
	if e == nil || e.state == slotFree || e.state == slotSentinel {
		return
	}
	if e.state == slotLive {
		m.live--
	}
	var zero T
	e.value, e.flags, e.state = zero, 0, slotFree

	if m.reuse && m.owns(id) {
		t, i := m.split(id)
		e.next = t.free
		t.free = i + 1
	}
}

// ForEach visits live entries, client namespace first, until fn returns
// false.
func (m *Map[T]) ForEach(fn func(id uint32, v T) bool) {
	for _, t := range []*table[T]{&m.client, &m.server} {
		for i, e := range t.entries.Slice() {
			if e.state != slotLive {
				continue
			}
			if !fn(t.base+uint32(i), e.value) {
				return
			}
		}
	}
}

// Release drops every entry. The map may be reused afterwards.
func (m *Map[T]) Release() {
	m.client.entries.Release()
	m.server.entries.Release()
	m.init()
}
