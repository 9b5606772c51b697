package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BadgerOps/siteport/internal/config"
	"github.com/BadgerOps/siteport/internal/download"
	"github.com/BadgerOps/siteport/internal/engine"
	"github.com/BadgerOps/siteport/internal/wpcli"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	importFormat      string
	importSite        string
	importSkipReplace bool
	importPreserve    bool
	importManaged     bool
	importMaintenance bool
	importKeepSandbox bool
	importSHA256      string
)

func newImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import ARCHIVE|URL",
		Short: "Replace a site with the contents of a backup archive",
		Long: `Import a backup archive into the destination site. The archive is
detected, validated and extracted into a sandbox before anything at the
destination changes. A compressed database export and a copy of wp-content
are written to the backup directory first; the database is then replaced
inside a snapshot-and-restore transaction.

A URL argument is downloaded into the work directory first.`,
		Example: `  siteport import /backups/site.zip
  siteport import site.tar.gz --site /srv/www/example --preserve
  siteport import https://example.com/site.zip --sha256 9f86d0...
  siteport import dup-archive.zip --format duplicator --maintenance`,
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{storeAnnotation: storeOptional},
		RunE:        importRun,
	}

	cmd.Flags().StringVar(&importFormat, "format", "", "force the archive format instead of detecting it")
	cmd.Flags().StringVar(&importSite, "site", "", "destination WordPress root (overrides site.path)")
	cmd.Flags().BoolVar(&importSkipReplace, "skip-search-replace", false, "only reset siteurl and home, skip bulk URL replacement")
	cmd.Flags().BoolVar(&importPreserve, "preserve", false, "keep destination plugins and themes missing from the archive")
	cmd.Flags().BoolVar(&importManaged, "managed-host", false, "leave the host's mu-plugins in place")
	cmd.Flags().BoolVar(&importMaintenance, "maintenance", false, "enable maintenance mode during the import")
	cmd.Flags().BoolVar(&importKeepSandbox, "keep-sandbox", false, "keep the extraction sandbox after a successful import")
	cmd.Flags().StringVar(&importSHA256, "sha256", "", "expected SHA256 of a downloaded archive")

	return cmd
}

// applyImportFlags copies explicitly set flags over the loaded config.
func applyImportFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("site") {
		cfg.Site.Path = importSite
	}
	if flags.Changed("skip-search-replace") {
		cfg.Import.SkipSearchReplace = importSkipReplace
	}
	if flags.Changed("preserve") {
		cfg.Import.Preserve = importPreserve
	}
	if flags.Changed("managed-host") {
		cfg.Site.ManagedHost = importManaged
	}
	if flags.Changed("maintenance") {
		cfg.Import.MaintenanceMode = importMaintenance
	}
	if flags.Changed("keep-sandbox") {
		cfg.Import.KeepSandbox = importKeepSandbox
	}
}

// engineOptions maps the config onto engine settings.
func engineOptions(cfg *config.Config) engine.Options {
	opts := engine.Options{
		SitePath:          cfg.Site.Path,
		ConfigPath:        cfg.WPConfigPath(),
		ContentPath:       cfg.ContentPath(),
		WorkDir:           cfg.Import.WorkDir,
		BackupDir:         cfg.Import.BackupDir,
		SnapshotDir:       cfg.Import.SnapshotDir,
		SpaceFactor:       cfg.Import.SpaceFactor,
		MaxFileSize:       cfg.MaxFileSizeBytes(),
		Format:            importFormat,
		Preserve:          cfg.Import.Preserve,
		SkipSearchReplace: cfg.Import.SkipSearchReplace,
		ManagedHost:       cfg.Site.ManagedHost,
		Maintenance:       cfg.Import.MaintenanceMode,
		KeepSandbox:       cfg.Import.KeepSandbox,
		Binaries:          map[string]string{"wp": cfg.Site.WPBinary},
		Logger:            logger,
	}
	if globalStore != nil {
		opts.Recorder = globalStore
	}
	return opts
}

func importRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	applyImportFlags(cmd, globalCfg)
	if err := globalCfg.Validate(); err != nil {
		return err
	}

	archivePath := args[0]
	if download.IsRemote(archivePath) {
		local, err := fetchArchive(cmd, archivePath)
		if err != nil {
			return err
		}
		archivePath = local
	}

	wp := wpcli.New(globalCfg.Site.Path,
		wpcli.WithBinary(globalCfg.Site.WPBinary),
		wpcli.WithLogger(logger),
	)
	eng := engine.New(wp, engineOptions(globalCfg))

	run, err := eng.Import(cmd.Context(), archivePath)
	if !quiet || err != nil {
		printRun(os.Stdout, run)
	}
	return err
}

// fetchArchive downloads a remote archive into the work directory.
func fetchArchive(cmd *cobra.Command, rawURL string) (string, error) {
	client := download.NewClient(logger, globalCfg.DownloadTimeout())
	if !quiet {
		fmt.Printf("Downloading %s...\n", rawURL)
	}
	opts := download.FetchOptions{
		URL:     rawURL,
		DestDir: globalCfg.Import.WorkDir,
		SHA256:  importSHA256,
		Retries: globalCfg.Download.RetryAttempts,
	}
	if !quiet {
		opts.OnProgress = downloadProgress(os.Stdout, 2*time.Second)
	}
	res, err := client.Fetch(cmd.Context(), opts)
	if err != nil {
		return "", fmt.Errorf("downloading archive: %w", err)
	}
	if !quiet {
		fmt.Printf("  %s in %s (sha256 %s)\n\n", humanize.Bytes(uint64(res.Size)), res.Duration.Round(time.Millisecond), res.SHA256)
	}
	return res.Path, nil
}

// downloadProgress prints a progress line at most once per interval, plus
// one when the last byte of a sized download arrives.
func downloadProgress(w io.Writer, interval time.Duration) download.ProgressFunc {
	var last time.Time
	return func(downloaded, total int64) {
		done := total > 0 && downloaded >= total
		if !done && time.Since(last) < interval {
			return
		}
		last = time.Now()
		if total > 0 {
			fmt.Fprintf(w, "  %s / %s (%d%%)\n", humanize.Bytes(uint64(downloaded)), humanize.Bytes(uint64(total)), downloaded*100/total)
			return
		}
		fmt.Fprintf(w, "  %s\n", humanize.Bytes(uint64(downloaded)))
	}
}
