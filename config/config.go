package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultPort        = 3000
	DefaultTimeout     = 30 * time.Second
	DefaultMaxEntries  = 20
	DefaultRetries     = 3
	DefaultDatabase    = "feeds.db"
	DefaultMaxEntryAge = 30 * 24 * time.Hour
)

// TomlFeed represents a single feed in the registry
type TomlFeed struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// TomlServer holds HTTP server settings
type TomlServer struct {
	// Hostname is the address the server listens on, empty for all interfaces
	Hostname string `toml:"hostname,omitempty"`
	Port     int    `toml:"port,omitempty"`
}

// TomlLoader holds settings for fetching and rendering feeds
type TomlLoader struct {
	Timeout    Duration `toml:"timeout,omitempty"`
	MaxEntries int      `toml:"max_entries,omitempty"`
	Retries    int      `toml:"retries"`
	UserAgent  string   `toml:"user_agent,omitempty"`
}

// TomlDatabase holds the entry cache settings
type TomlDatabase struct {
	Path   string   `toml:"path,omitempty"`
	MaxAge Duration `toml:"max_age,omitempty"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Server   TomlServer   `toml:"server"`
	Loader   TomlLoader   `toml:"loader"`
	Database TomlDatabase `toml:"database"`
	Feeds    []TomlFeed   `toml:"feeds"`
}

// Duration wraps time.Duration so it can be written as "30s" in TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config TomlConfig
	meta, err := toml.Decode(string(data), &config)
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults(meta)

	return &config, nil
}

// SaveConfig writes the configuration back to path, replacing the file
func SaveConfig(path string, config *TomlConfig) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("error encoding config file: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// applyDefaults fills in unset values. An explicit retries = 0 turns retries off.
func (c *TomlConfig) applyDefaults(meta toml.MetaData) {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Loader.Timeout.Duration <= 0 {
		c.Loader.Timeout.Duration = DefaultTimeout
	}
	if c.Loader.MaxEntries <= 0 {
		c.Loader.MaxEntries = DefaultMaxEntries
	}
	if !meta.IsDefined("loader", "retries") || c.Loader.Retries < 0 {
		c.Loader.Retries = DefaultRetries
	}
	if c.Loader.UserAgent == "" {
		c.Loader.UserAgent = "feedreader/1.0"
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabase
	}
	if c.Database.MaxAge.Duration <= 0 {
		c.Database.MaxAge.Duration = DefaultMaxEntryAge
	}
}
