package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BadgerOps/siteport/internal/config"
	"github.com/BadgerOps/siteport/internal/store"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgPath   string
	logLevel  string
	logFormat string
	quiet     bool
	globalCfg *config.Config
	logger    *slog.Logger

	// Global components
	globalStore *store.Store
)

// Commands declare their need for the run history store through this
// annotation.
const (
	storeAnnotation = "siteport/store"
	storeRequired   = "required"
	storeOptional   = "optional"
)

// openStore opens the run history database, creating its directory.
func openStore() error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	dbPath := globalCfg.Store.DBPath
	if dbPath == "" {
		dbPath = config.DefaultConfig().Store.DBPath
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	st, err := store.New(dbPath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	globalStore = st
	return nil
}

// closeStore closes the global store connection
func closeStore() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
		globalStore = nil
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "siteport",
		Short: "Import WordPress backup archives into a live site",
		Long: `siteport imports a backup archive produced by a WordPress backup plugin
into a live installation, replacing its database and wp-content tree. It
detects the archive format, extracts it into a sandbox, backs the destination
up, and rolls the database back automatically if anything fails.

Supported formats: siteport native exports, Duplicator, Jetpack Backup,
and Solid Backups (legacy and nextgen).`,
		Example: `  siteport import /backups/site.zip --site /var/www/html
  siteport import https://example.com/exports/site.tar.gz --preserve
  siteport inspect /backups/site.zip
  siteport history --limit 5`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil {
					logger.Debug("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}
			logger.Debug("config loaded", "path", cfgPath, "site", globalCfg.Site.Path)

			switch cmd.Annotations[storeAnnotation] {
			case storeRequired:
				return openStore()
			case storeOptional:
				if err := openStore(); err != nil {
					logger.Warn("run history disabled", "error", err)
				}
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeStore()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	cmd.AddCommand(
		newImportCmd(),
		newInspectCmd(),
		newFormatsCmd(),
		newHistoryCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if quiet && level < slog.LevelError {
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":    true,
		"version": true,
		"formats": true,
	}
	return skipConfigCmds[cmdName]
}
