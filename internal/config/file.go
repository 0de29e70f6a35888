// Package config handles kickguard configuration from YAML files or SQLite.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level kickguard configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Pages   []PageConfig  `yaml:"pages"`
	Engine  EngineConfig  `yaml:"engine"`
	Store   StoreConfig   `yaml:"store"`
	Scan    ScanConfig    `yaml:"scan"`
	Sinks   []SinkConfig  `yaml:"sinks"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	Headful         bool          `yaml:"headful"`
	Stealth         *bool         `yaml:"stealth"`
	MemoryLimit     int64         `yaml:"memory_limit"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
}

// PageConfig defines a page to guard.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// EngineConfig tunes the suppression engine of every guarded page.
type EngineConfig struct {
	ContainerIDs   []string        `yaml:"container_ids"`
	Synchronous    bool            `yaml:"synchronous"`
	ReinjectDelays []time.Duration `yaml:"reinject_delays"`
	ButtonFlash    time.Duration   `yaml:"button_flash"`
	FrameFallback  time.Duration   `yaml:"frame_fallback"`
	// HideVideo adds a stylesheet rule hiding every <video> in addition to
	// per-element suppression.
	HideVideo bool `yaml:"hide_video"`
}

// StoreConfig selects where verified links live.
type StoreConfig struct {
	Backend string `yaml:"backend"` // page | sqlite | memory
	Key     string `yaml:"key"`
	Path    string `yaml:"path"` // sqlite database file
	// WatchPages reloads the guarded page list from the guard_pages table
	// of the sqlite database whenever it changes.
	WatchPages bool `yaml:"watch_pages"`
}

// ScanConfig controls the page scanner.
type ScanConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Fetch       string        `yaml:"fetch"` // http | browser | auto
	ExcludeHost string        `yaml:"exclude_host"`
	UserAgent   string        `yaml:"user_agent"`
}

// SinkConfig defines an output backend for sweep reports.
type SinkConfig struct {
	Type       string        `yaml:"type"` // stdout | webhook
	URL        string        `yaml:"url"`  // for webhook
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Engine.ButtonFlash <= 0 {
		c.Engine.ButtonFlash = 1500 * time.Millisecond
	}
	if c.Engine.FrameFallback <= 0 {
		c.Engine.FrameFallback = 100 * time.Millisecond
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "page"
	}
	if c.Store.Backend == "sqlite" && c.Store.Path == "" {
		c.Store.Path = "kickguard.db"
	}
	if c.Scan.Timeout <= 0 {
		c.Scan.Timeout = 8 * time.Second
	}
	if c.Scan.Fetch == "" {
		c.Scan.Fetch = "auto"
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
	for i := range c.Sinks {
		if c.Sinks[i].Timeout <= 0 {
			c.Sinks[i].Timeout = 10 * time.Second
		}
		if c.Sinks[i].MaxRetries <= 0 {
			c.Sinks[i].MaxRetries = 3
		}
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "page", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Store.WatchPages && c.Store.Backend != "sqlite" {
		return fmt.Errorf("config: store.watch_pages needs the sqlite backend")
	}
	switch c.Scan.Fetch {
	case "http", "browser", "auto":
	default:
		return fmt.Errorf("config: unknown scan fetch mode %q", c.Scan.Fetch)
	}
	for i, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: pages[%d] (%s) has no url", i, p.ID)
		}
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs a url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}
