// Package config defines the pre-resolved configuration consumed by the node
// core. Loading from run-time-configuration files is a collaborator concern;
// callers hand the core a validated Config struct.
package config

import (
	"strings"
	"time"

	"github.com/plsm/assisi-go/errors"
)

// Default connection parameters for a local simulator: commands go
// downstream on one address, data comes upstream on another.
const (
	DefaultPubAddr = "nats://127.0.0.1:5556"
	DefaultSubAddr = "nats://127.0.0.1:5555"

	// DefaultMaxRange is the proximity sensor ceiling (cm) substituted for
	// near-zero readings when the reading itself doesn't carry one.
	DefaultMaxRange = 10.0

	// DefaultConnectTimeout bounds the construction handshake.
	DefaultConnectTimeout = 60 * time.Second

	// DefaultSettleTime is how long the node keeps accumulating readings
	// after the connect latch before construction returns.
	DefaultSettleTime = 500 * time.Millisecond

	// DefaultPollInterval is the handshake poll period.
	DefaultPollInterval = time.Second

	// DefaultInboxCapacity bounds the peer-mesh message inbox.
	DefaultInboxCapacity = 64
)

// Neighbor describes one topologically adjacent node: its physical name on
// the bus and the address its mesh traffic is reachable at.
type Neighbor struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Config is the complete configuration surface the core consumes.
type Config struct {
	// Name is this node's bus identity and subscription topic prefix.
	Name string `json:"name"`

	// PubAddr is the downstream command address; SubAddr the upstream data
	// address.
	PubAddr string `json:"pub_addr"`
	SubAddr string `json:"sub_addr"`

	// MsgAddr is the peer-mesh bus address. Empty disables the mesh.
	MsgAddr string `json:"msg_addr,omitempty"`

	// Neighbors maps logical directions to adjacent nodes. Empty disables
	// the mesh.
	Neighbors map[string]Neighbor `json:"neighbors,omitempty"`

	// Log enables the append-only activity log, written under LogDir.
	Log    bool   `json:"log"`
	LogDir string `json:"log_dir,omitempty"`

	// ConnectTimeout bounds the construction handshake; zero means wait
	// until the caller's context is cancelled.
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty"`

	// SettleTime is the post-connect wait before construction returns.
	SettleTime time.Duration `json:"settle_time,omitempty"`

	// InboxCapacity bounds the peer-mesh inbox ring.
	InboxCapacity int `json:"inbox_capacity,omitempty"`

	// MaxRange is the fallback proximity ceiling for range correction.
	MaxRange float64 `json:"max_range,omitempty"`
}

// Default returns a configuration with the standard local-simulator
// connection parameters for the named node.
func Default(name string) Config {
	return Config{
		Name:           name,
		PubAddr:        DefaultPubAddr,
		SubAddr:        DefaultSubAddr,
		LogDir:         ".",
		ConnectTimeout: DefaultConnectTimeout,
		SettleTime:     DefaultSettleTime,
		InboxCapacity:  DefaultInboxCapacity,
		MaxRange:       DefaultMaxRange,
	}
}

// MeshEnabled reports whether the peer-mesh subsystem is configured.
func (c Config) MeshEnabled() bool {
	return c.MsgAddr != "" && len(c.Neighbors) > 0
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "name is required")
	}
	// Names become subject tokens; separators would corrupt routing.
	if strings.ContainsAny(c.Name, ". *>") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"name must not contain subject separators or wildcards")
	}
	if c.PubAddr == "" || c.SubAddr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"pub_addr and sub_addr are required")
	}
	if len(c.Neighbors) > 0 && c.MsgAddr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"neighbors configured without msg_addr")
	}
	for direction, n := range c.Neighbors {
		if n.Name == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"neighbor "+direction+" has no physical name")
		}
		if strings.ContainsAny(n.Name, ". *>") {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				"neighbor "+direction+" name must not contain subject separators or wildcards")
		}
	}
	if c.Log && c.LogDir == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"logging enabled without log_dir")
	}
	if c.InboxCapacity < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"inbox_capacity cannot be negative")
	}
	if c.ConnectTimeout < 0 || c.SettleTime < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"timeouts cannot be negative")
	}
	if c.MaxRange < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_range cannot be negative")
	}
	return nil
}
