// File: relay/table.go
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe session table. The reactor goroutine adds and
// removes sessions; probes and metrics read it from other goroutines.

package relay

import (
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
)

type tableShard struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// table maps session ids to sessions.
type table struct {
	shards []*tableShard
	mask   uint32
}

func newTable(shardCount int) *table {
	if shardCount <= 0 {
		shardCount = 16
	}
	n := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*tableShard, n)
	for i := range shards {
		shards[i] = &tableShard{sessions: make(map[uuid.UUID]*Session)}
	}
	return &table{shards: shards, mask: n - 1}
}

func (t *table) shard(id uuid.UUID) *tableShard {
	h := fnv.New32a()
	h.Write(id[:])
	return t.shards[h.Sum32()&t.mask]
}

func (t *table) add(s *Session) {
	sh := t.shard(s.ID())
	sh.mu.Lock()
	sh.sessions[s.ID()] = s
	sh.mu.Unlock()
}

func (t *table) get(id uuid.UUID) (*Session, bool) {
	sh := t.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

func (t *table) remove(id uuid.UUID) {
	sh := t.shard(id)
	sh.mu.Lock()
	delete(sh.sessions, id)
	sh.mu.Unlock()
}

// rangeAll calls fn for every session until fn returns false.
func (t *table) rangeAll(fn func(*Session) bool) {
	for _, sh := range t.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			if !fn(s) {
				sh.mu.RUnlock()
				return
			}
		}
		sh.mu.RUnlock()
	}
}

func (t *table) len() int {
	n := 0
	for _, sh := range t.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
