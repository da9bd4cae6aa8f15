// control/store.go
// Author: momentics <momentics@gmail.com>
//
// Reloadable configuration store. Readers take immutable snapshots;
// Reload swaps in a freshly validated file and notifies listeners.

package control

import (
	"sync"
)

// Store holds the current configuration and its source path.
type Store struct {
	mu        sync.RWMutex
	path      string
	cfg       *Config
	listeners []func(old, cur *Config)
}

// NewStore wraps an already loaded configuration. path may be empty, in
// which case Reload keeps the current values.
func NewStore(cfg *Config, path string) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{cfg: cfg, path: path}
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// OnReload registers a listener called after every successful Reload.
func (s *Store) OnReload(fn func(old, cur *Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload re-reads the file. On error the previous configuration stays in
// effect. Listeners run synchronously on the caller's goroutine.
func (s *Store) Reload() error {
	s.mu.RLock()
	path := s.path
	s.mu.RUnlock()
	if path == "" {
		return nil
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	listeners := append([]func(old, cur *Config){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(old, cfg)
	}
	return nil
}
