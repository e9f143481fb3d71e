package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grovetools/devlogs/errors"
	"github.com/mitchellh/mapstructure"
)

// Config is the root devlogs configuration loaded from devlogs.yml.
type Config struct {
	// Root is the storage root for all registry state and session logs.
	// Defaults to ~/.devlogs.
	Root string `yaml:"root"`

	// Listen configures the ingest daemon's network endpoints.
	Listen ListenConfig `yaml:"listen"`

	// Retention configures the sweeper and the archive-vs-delete policy.
	Retention RetentionConfig `yaml:"retention"`

	// Ingest configures the wire decoder and per-connection limits.
	Ingest IngestConfig `yaml:"ingest"`

	// Extensions holds tool-specific config sections (e.g. "logging")
	// decoded on demand via UnmarshalExtension.
	Extensions map[string]interface{} `yaml:"extensions"`
}

// ListenConfig holds the daemon's listener addresses.
type ListenConfig struct {
	// HTTPAddr serves /ws (producer page connections) and /api (consumer queries).
	HTTPAddr string `yaml:"http_addr"`
	// TCPAddr accepts raw length-prefixed byte-stream producers. Empty disables it.
	TCPAddr string `yaml:"tcp_addr"`
}

// RetentionConfig controls session lifetime bookkeeping.
type RetentionConfig struct {
	// Days is the archive retention window. 0 means delete on finalize
	// instead of archiving.
	Days int `yaml:"days"`
	// StalenessMinutes is the maximum age of an active session before the
	// sweeper force-finalizes it as a zombie.
	StalenessMinutes int `yaml:"staleness_minutes"`
	// SweepIntervalMinutes is how often the daemon re-runs the sweeper.
	// 0 disables the timer (the startup sweep still runs).
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// IngestConfig bounds the ingestion path.
type IngestConfig struct {
	// RateLimit is the maximum accepted events per second per connection.
	RateLimit int `yaml:"rate_limit"`
	// MaxFrameBytes rejects any declared frame length above this bound.
	MaxFrameBytes int `yaml:"max_frame_bytes"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			HTTPAddr: "127.0.0.1:4650",
			TCPAddr:  "127.0.0.1:4651",
		},
		Retention: RetentionConfig{
			Days:                 7,
			StalenessMinutes:     240,
			SweepIntervalMinutes: 30,
		},
		Ingest: IngestConfig{
			RateLimit:     500,
			MaxFrameBytes: 256 << 10,
		},
	}
}

// Validate performs semantic validation after parsing.
func (c *Config) Validate() error {
	if c.Retention.Days < 0 {
		return errors.ConfigInvalid("retention.days must be >= 0")
	}
	if c.Retention.StalenessMinutes < 0 {
		return errors.ConfigInvalid("retention.staleness_minutes must be >= 0")
	}
	if c.Ingest.RateLimit < 0 {
		return errors.ConfigInvalid("ingest.rate_limit must be >= 0")
	}
	if c.Ingest.MaxFrameBytes <= 0 {
		return errors.ConfigInvalid("ingest.max_frame_bytes must be > 0")
	}
	return nil
}

// StorageRoot resolves the storage root, expanding a leading tilde and
// falling back to ~/.devlogs when unset.
func (c *Config) StorageRoot() (string, error) {
	root := c.Root
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeConfigInvalid, "cannot resolve home directory for storage root")
		}
		return filepath.Join(home, ".devlogs"), nil
	}
	if root[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeConfigInvalid, "cannot expand storage root path")
		}
		root = filepath.Join(home, root[1:])
	}
	return filepath.Abs(root)
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded devlogs.yml into the provided target struct. The target must be a
// pointer. This provides a type-safe way for extensions to access their
// custom configuration sections.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		// The target struct will simply remain zero-valued.
		return nil
	}

	// Use mapstructure to decode the generic map[string]interface{}
	// into the strongly-typed target struct. We configure it to use
	// `yaml` tags for consistency.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
