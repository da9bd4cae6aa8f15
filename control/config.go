// control/config.go
// Author: momentics <momentics@gmail.com>
//
// TOML configuration for hioload-wth processes, with defaults and
// validation.

package control

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/momentics/hioload-wth/api"
	"github.com/momentics/hioload-wth/internal/ring"
	"github.com/momentics/hioload-wth/protocol"
	"github.com/momentics/hioload-wth/transport"
	"github.com/momentics/hioload-wth/wire"
	"github.com/op/go-logging"
)

// RelayConfig describes the two ends of a relay.
type RelayConfig struct {
	Network         string `toml:"network"`
	Listen          string `toml:"listen"`
	UpstreamNetwork string `toml:"upstream_network"`
	Upstream        string `toml:"upstream"`
	// MaxBacklog caps the bytes queued toward one end before reading from
	// the other end is paused.
	MaxBacklog int `toml:"max_backlog"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP address for /metrics; empty disables it.
	Listen    string `toml:"listen"`
	Namespace string `toml:"namespace"`
}

// Config is the top-level configuration file.
type Config struct {
	RingCapacity   int           `toml:"ring_capacity"`
	ReuseObjectIDs bool          `toml:"reuse_object_ids"`
	LogLevel       string        `toml:"log_level"`
	Relay          RelayConfig   `toml:"relay"`
	Metrics        MetricsConfig `toml:"metrics"`
}

// ConnectionOptions returns the protocol.Connection options implied by the
// file, followed by extra.
func (c *Config) ConnectionOptions(extra ...protocol.Option) []protocol.Option {
	opts := []protocol.Option{
		protocol.WithRingCapacity(c.RingCapacity),
		protocol.WithIDReuse(c.ReuseObjectIDs),
	}
	return append(opts, extra...)
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		RingCapacity: ring.DefaultCapacity,
		LogLevel:     "INFO",
		Relay: RelayConfig{
			Network:         transport.NetworkTCP,
			Listen:          "127.0.0.1:7070",
			UpstreamNetwork: transport.NetworkTCP,
			MaxBacklog:      4 << 20,
		},
		Metrics: MetricsConfig{
			Namespace: "wth",
		},
	}
}

// LoadConfig reads path on top of DefaultConfig. Unknown keys are
// rejected so that typos do not silently fall back to defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return ParseConfig(string(data))
}

// ParseConfig decodes a TOML document on top of DefaultConfig.
func ParseConfig(doc string) (*Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(doc, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown keys %s: %w", strings.Join(keys, ", "), api.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validNetwork(n string) bool {
	switch n {
	case transport.NetworkTCP, "tcp4", "tcp6", transport.NetworkUnix, transport.NetworkAbstract:
		return true
	}
	return false
}

// Validate checks field ranges. It does not require the relay addresses;
// commands that need them check with ValidateRelay.
func (c *Config) Validate() error {
	if c.RingCapacity <= 2*wire.MaxMessageSize {
		return fmt.Errorf("ring_capacity %d must exceed twice the maximum message size (%d): %w",
			c.RingCapacity, 2*wire.MaxMessageSize, api.ErrInvalidArgument)
	}
	if _, err := logging.LogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level %q: %w", c.LogLevel, api.ErrInvalidArgument)
	}
	if !validNetwork(c.Relay.Network) {
		return fmt.Errorf("relay.network %q: %w", c.Relay.Network, api.ErrInvalidArgument)
	}
	if !validNetwork(c.Relay.UpstreamNetwork) {
		return fmt.Errorf("relay.upstream_network %q: %w", c.Relay.UpstreamNetwork, api.ErrInvalidArgument)
	}
	if c.Relay.MaxBacklog <= 0 {
		return fmt.Errorf("relay.max_backlog must be positive: %w", api.ErrInvalidArgument)
	}
	return nil
}

// ValidateRelay additionally requires both relay endpoints.
func (c *Config) ValidateRelay() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Relay.Listen == "" || c.Relay.Upstream == "" {
		return fmt.Errorf("relay.listen and relay.upstream are required: %w", api.ErrInvalidArgument)
	}
	return nil
}
