package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies that DefaultConfig returns sensible defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		getValue func(*Config) string
		want     string
	}{
		{"site path", func(c *Config) string { return c.Site.Path }, "/var/www/html"},
		{"wp binary", func(c *Config) string { return c.Site.WPBinary }, "wp"},
		{"work dir", func(c *Config) string { return c.Import.WorkDir }, "/var/lib/siteport/work"},
		{"backup dir", func(c *Config) string { return c.Import.BackupDir }, "/var/lib/siteport/backups"},
		{"snapshot dir", func(c *Config) string { return c.Import.SnapshotDir }, "/var/lib/siteport/snapshots"},
		{"max file size", func(c *Config) string { return c.Import.MaxFileSize }, "10GB"},
		{"db path", func(c *Config) string { return c.Store.DBPath }, "/var/lib/siteport/siteport.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.getValue(cfg)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if cfg.Import.SpaceFactor != 3 {
		t.Errorf("Import.SpaceFactor = %v, want 3", cfg.Import.SpaceFactor)
	}
	if cfg.Site.ManagedHost {
		t.Errorf("Site.ManagedHost = true, want false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

// TestLoad tests loading a valid config file
func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "siteport.yaml")

	configContent := `
site:
  path: "/srv/www/example"
  wp_binary: "/usr/local/bin/wp"
  managed_host: true
import:
  work_dir: "/tmp/siteport"
  space_factor: 4
  max_file_size: "2GB"
  preserve: true
  skip_search_replace: true
store:
  db_path: "/tmp/siteport/history.db"
download:
  retry_attempts: 5
  timeout: "30m"
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Site.Path != "/srv/www/example" {
		t.Errorf("Site.Path = %q, want %q", cfg.Site.Path, "/srv/www/example")
	}
	if cfg.Site.WPBinary != "/usr/local/bin/wp" {
		t.Errorf("Site.WPBinary = %q", cfg.Site.WPBinary)
	}
	if !cfg.Site.ManagedHost {
		t.Errorf("Site.ManagedHost = false, want true")
	}
	if cfg.Import.SpaceFactor != 4 {
		t.Errorf("Import.SpaceFactor = %v, want 4", cfg.Import.SpaceFactor)
	}
	if !cfg.Import.Preserve || !cfg.Import.SkipSearchReplace {
		t.Errorf("import flags not loaded: %+v", cfg.Import)
	}
	// Unset keys keep their defaults
	if cfg.Import.BackupDir != "/var/lib/siteport/backups" {
		t.Errorf("Import.BackupDir = %q, want default", cfg.Import.BackupDir)
	}
	if cfg.MaxFileSizeBytes() != 2*1000*1000*1000 {
		t.Errorf("MaxFileSizeBytes() = %d", cfg.MaxFileSizeBytes())
	}
	if cfg.DownloadTimeout() != 30*time.Minute {
		t.Errorf("DownloadTimeout() = %v, want 30m", cfg.DownloadTimeout())
	}
	if cfg.Download.RetryAttempts != 5 {
		t.Errorf("Download.RetryAttempts = %d, want 5", cfg.Download.RetryAttempts)
	}
}

// TestLoadInvalidYAML tests that Load returns an error for invalid YAML
func TestLoadInvalidYAML(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "invalid.yaml")

	invalidContent := `
site:
  path: "/var/www"
  invalid: [unclosed bracket
`

	if err := os.WriteFile(configFile, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configFile)
	if err == nil {
		t.Error("Load() succeeded, want error for invalid YAML")
	}
}

// TestLoadNonexistentFile tests that Load returns an error for missing files
func TestLoadNonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	if err == nil {
		t.Error("Load() succeeded, want error for nonexistent file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty site path", func(c *Config) { c.Site.Path = "" }},
		{"space factor below one", func(c *Config) { c.Import.SpaceFactor = 0.5 }},
		{"bad max file size", func(c *Config) { c.Import.MaxFileSize = "lots" }},
		{"bad timeout", func(c *Config) { c.Download.Timeout = "soon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}
}

func TestSitePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Site.Path = "/srv/site"

	if got := cfg.WPConfigPath(); got != filepath.Join("/srv/site", "wp-config.php") {
		t.Errorf("WPConfigPath() = %q", got)
	}
	if got := cfg.ContentPath(); got != filepath.Join("/srv/site", "wp-content") {
		t.Errorf("ContentPath() = %q", got)
	}

	cfg.Site.ConfigFile = "/srv/wp-config.php"
	cfg.Site.ContentDir = "/data/content"
	if got := cfg.WPConfigPath(); got != "/srv/wp-config.php" {
		t.Errorf("WPConfigPath() override = %q", got)
	}
	if got := cfg.ContentPath(); got != "/data/content" {
		t.Errorf("ContentPath() override = %q", got)
	}
}

// TestFindConfigFileFound tests that FindConfigFile returns the found config
func TestFindConfigFileFound(t *testing.T) {
	originalWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	tempDir := t.TempDir()
	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(originalWd); err != nil {
			t.Fatalf("failed to restore working directory: %v", err)
		}
	})

	configFile := filepath.Join(tempDir, "siteport.yaml")
	if err := os.WriteFile(configFile, []byte("site:\n  path: \"/var/www\""), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	found, err := FindConfigFile()
	if err != nil {
		t.Fatalf("FindConfigFile() failed: %v", err)
	}
	if found != "siteport.yaml" {
		t.Errorf("FindConfigFile() = %q, want siteport.yaml", found)
	}
}
