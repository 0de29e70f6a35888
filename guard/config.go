package guard

import (
	"github.com/hazyhaar/kickguard/internal/config"
)

// Config is the top-level kickguard configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// PageConfig defines a page to guard.
type PageConfig = config.PageConfig

// EngineConfig tunes the suppression engines.
type EngineConfig = config.EngineConfig

// StoreConfig selects the verified-link backend.
type StoreConfig = config.StoreConfig

// ScanConfig controls the page scanner.
type ScanConfig = config.ScanConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig is the configuration used without a file.
func DefaultConfig() *Config {
	return config.Default()
}
