// Package config handles configuration loading and validation for lxfeed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds the application configuration.
type Config struct {
	// Context is the owner id stamped on every feed event. Empty means one is
	// generated per run.
	Context string        `yaml:"context"`
	Store   StoreConfig   `yaml:"store"`
	Feed    FeedConfig    `yaml:"feed"`
	Profile ProfileConfig `yaml:"profile"`
	DataDir string        `yaml:"-"` // set by caller, not from config file
}

// StoreConfig holds graph store settings.
type StoreConfig struct {
	Driver       string        `yaml:"driver"`         // sqlite or memory
	MaxOpenConns int           `yaml:"max_open_conns"` // maximum open connections
	MaxIdleConns int           `yaml:"max_idle_conns"` // maximum idle connections
	BusyTimeout  int           `yaml:"busy_timeout"`   // busy timeout in milliseconds
	PollInterval time.Duration `yaml:"poll_interval"`  // fallback interval for picking up external writes
	Debounce     time.Duration `yaml:"debounce"`       // delay coalescing file change notifications
}

// FeedConfig holds feed settings.
type FeedConfig struct {
	EventBuffer int      `yaml:"event_buffer"` // event bus buffer size
	Allow       []string `yaml:"allow"`        // glob patterns of watchable package ids
	Packages    []string `yaml:"packages"`     // packages watched on start
	Topics      []string `yaml:"topics"`       // topics raised on start
}

// ProfileConfig holds the user profile settings.
type ProfileConfig struct {
	User string `yaml:"user"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Driver:       DriverSQLite,
			MaxOpenConns: 2,
			MaxIdleConns: 2,
			BusyTimeout:  5000,
			PollInterval: 2 * time.Second,
			Debounce:     50 * time.Millisecond,
		},
		Feed: FeedConfig{
			EventBuffer: 256,
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	// Apply defaults for zero values
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.Store.Driver == "" {
		c.Store.Driver = defaults.Store.Driver
	}
	if c.Store.MaxOpenConns == 0 {
		c.Store.MaxOpenConns = defaults.Store.MaxOpenConns
	}
	if c.Store.MaxIdleConns == 0 {
		c.Store.MaxIdleConns = defaults.Store.MaxIdleConns
	}
	if c.Store.BusyTimeout == 0 {
		c.Store.BusyTimeout = defaults.Store.BusyTimeout
	}
	if c.Store.PollInterval == 0 {
		c.Store.PollInterval = defaults.Store.PollInterval
	}
	if c.Store.Debounce == 0 {
		c.Store.Debounce = defaults.Store.Debounce
	}
	if c.Feed.EventBuffer == 0 {
		c.Feed.EventBuffer = defaults.Feed.EventBuffer
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	switch c.Store.Driver {
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Store.Driver)
	}

	if c.Store.MaxOpenConns < 1 {
		return fmt.Errorf("store.max_open_conns must be at least 1")
	}
	if c.Store.MaxIdleConns < 0 || c.Store.MaxIdleConns > c.Store.MaxOpenConns {
		return fmt.Errorf("store.max_idle_conns must be between 0 and store.max_open_conns")
	}
	if c.Store.BusyTimeout < 0 {
		return fmt.Errorf("store.busy_timeout cannot be negative")
	}
	if c.Store.PollInterval <= 0 {
		return fmt.Errorf("store.poll_interval must be positive")
	}
	if c.Store.Debounce < 0 {
		return fmt.Errorf("store.debounce cannot be negative")
	}
	if c.Feed.EventBuffer < 1 {
		return fmt.Errorf("feed.event_buffer must be at least 1")
	}

	return nil
}

// DatabaseFile returns the path to the SQLite graph database.
func (c *Config) DatabaseFile() string {
	return filepath.Join(c.DataDir, "graph.db")
}
