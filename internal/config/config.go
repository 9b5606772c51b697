package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Import   ImportConfig   `yaml:"import"`
	Store    StoreConfig    `yaml:"store"`
	Download DownloadConfig `yaml:"download"`
}

// SiteConfig describes the destination WordPress installation
type SiteConfig struct {
	Path        string `yaml:"path"`
	WPBinary    string `yaml:"wp_binary"`
	ConfigFile  string `yaml:"config_file"` // defaults to <path>/wp-config.php
	ContentDir  string `yaml:"content_dir"` // defaults to <path>/wp-content
	ManagedHost bool   `yaml:"managed_host"`
}

// ImportConfig holds import run settings
type ImportConfig struct {
	WorkDir           string  `yaml:"work_dir"`
	BackupDir         string  `yaml:"backup_dir"`
	SnapshotDir       string  `yaml:"snapshot_dir"`
	SpaceFactor       float64 `yaml:"space_factor"`
	MaxFileSize       string  `yaml:"max_file_size"`
	Preserve          bool    `yaml:"preserve"`
	SkipSearchReplace bool    `yaml:"skip_search_replace"`
	MaintenanceMode   bool    `yaml:"maintenance_mode"`
	KeepSandbox       bool    `yaml:"keep_sandbox"`
}

// StoreConfig holds run history settings
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// DownloadConfig holds settings for fetching remote archives
type DownloadConfig struct {
	RetryAttempts int    `yaml:"retry_attempts"`
	Timeout       string `yaml:"timeout"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Path:     "/var/www/html",
			WPBinary: "wp",
		},
		Import: ImportConfig{
			WorkDir:     "/var/lib/siteport/work",
			BackupDir:   "/var/lib/siteport/backups",
			SnapshotDir: "/var/lib/siteport/snapshots",
			SpaceFactor: 3,
			MaxFileSize: "10GB",
		},
		Store: StoreConfig{
			DBPath: "/var/lib/siteport/siteport.db",
		},
		Download: DownloadConfig{
			RetryAttempts: 3,
			Timeout:       "0s",
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught by YAML decoding
func (c *Config) Validate() error {
	if c.Site.Path == "" {
		return fmt.Errorf("site.path is required")
	}
	if c.Import.SpaceFactor < 1 {
		return fmt.Errorf("import.space_factor must be at least 1, got %v", c.Import.SpaceFactor)
	}
	if _, err := ParseSize(c.Import.MaxFileSize); err != nil {
		return fmt.Errorf("import.max_file_size: %w", err)
	}
	if c.Download.Timeout != "" {
		if _, err := time.ParseDuration(c.Download.Timeout); err != nil {
			return fmt.Errorf("download.timeout: %w", err)
		}
	}
	return nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"siteport.yaml",
		"/etc/siteport/siteport.yaml",
	}

	// Add user config path
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "siteport", "siteport.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// WPConfigPath returns the wp-config.php location for the site
func (c *Config) WPConfigPath() string {
	if c.Site.ConfigFile != "" {
		return c.Site.ConfigFile
	}
	return filepath.Join(c.Site.Path, "wp-config.php")
}

// ContentPath returns the destination wp-content directory
func (c *Config) ContentPath() string {
	if c.Site.ContentDir != "" {
		return c.Site.ContentDir
	}
	return filepath.Join(c.Site.Path, "wp-content")
}

// MaxFileSizeBytes returns the per-member extraction limit in bytes
func (c *Config) MaxFileSizeBytes() int64 {
	n, err := ParseSize(c.Import.MaxFileSize)
	if err != nil {
		return 0
	}
	return n
}

// DownloadTimeout returns the overall remote fetch timeout; zero means unbounded
func (c *Config) DownloadTimeout() time.Duration {
	if c.Download.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Download.Timeout)
	if err != nil {
		return 0
	}
	return d
}
