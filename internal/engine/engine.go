// Package engine orchestrates one archive import: preflight, sandboxed
// extraction, database and content discovery, mandatory backups, and the
// transactional replacement of the destination site.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BadgerOps/siteport/internal/archive"
	"github.com/BadgerOps/siteport/internal/content"
	"github.com/BadgerOps/siteport/internal/dbtxn"
	"github.com/BadgerOps/siteport/internal/format"
	"github.com/BadgerOps/siteport/internal/importerr"
	"github.com/BadgerOps/siteport/internal/sqldump"
	"github.com/BadgerOps/siteport/internal/store"
	"github.com/BadgerOps/siteport/internal/urlalign"
	"github.com/BadgerOps/siteport/internal/wpcli"
	"github.com/dustin/go-humanize"
)

// Executor is everything the engine asks of the wp tool.
type Executor interface {
	dbtxn.Executor
	urlalign.Executor
	IsInstalled(ctx context.Context) (bool, error)
	IsMultisite(ctx context.Context) (bool, error)
	CacheFlush(ctx context.Context) error
	PluginDeactivate(ctx context.Context, names ...string) error
	MaintenanceMode(ctx context.Context, on bool) error
}

var _ Executor = (*wpcli.CLI)(nil)

// Recorder persists run history. *store.Store satisfies it.
type Recorder interface {
	CreateRun(run *store.ImportRun) error
	UpdateRun(run *store.ImportRun) error
	AddDiagnostic(d *store.Diagnostic) error
}

var _ Recorder = (*store.Store)(nil)

// Options configures an Engine.
type Options struct {
	SitePath    string
	ConfigPath  string
	ContentPath string
	WorkDir     string
	BackupDir   string
	SnapshotDir string

	SpaceFactor float64
	MaxFileSize int64

	// Format forces an adapter by name instead of detecting one.
	Format            string
	Preserve          bool
	SkipSearchReplace bool
	ManagedHost       bool
	Maintenance       bool
	KeepSandbox       bool

	// Binaries maps adapter dependency names to executables.
	Binaries map[string]string

	Registry  *format.Registry
	Recorder  Recorder
	LookPath  LookPathFunc
	FreeSpace FreeSpaceFunc
	Logger    *slog.Logger
}

// Engine imports archives into one destination site.
type Engine struct {
	exec     Executor
	opts     Options
	registry *format.Registry
	logger   *slog.Logger
}

// New creates an engine driving exec.
func New(exec Executor, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := opts.Registry
	if reg == nil {
		reg = format.Default()
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = filepath.Join(opts.SitePath, "wp-config.php")
	}
	if opts.ContentPath == "" {
		opts.ContentPath = filepath.Join(opts.SitePath, "wp-content")
	}
	if opts.SpaceFactor == 0 {
		opts.SpaceFactor = DefaultSpaceFactor
	}
	return &Engine{exec: exec, opts: opts, registry: reg, logger: logger}
}

// Registry returns the adapter registry in use.
func (e *Engine) Registry() *format.Registry { return e.registry }

func (e *Engine) rules() content.Rules {
	return content.Rules{ManagedHost: e.opts.ManagedHost}
}

// Import replaces the destination site with the contents of the archive at
// archivePath. The returned Run is never nil and describes how far the
// import got, even on error.
func (e *Engine) Import(ctx context.Context, archivePath string) (run *Run, err error) {
	run = newRun(archivePath)
	logger := e.logger.With("run", run.ID)
	logger.Info("import started", "archive", archivePath, "site", e.opts.SitePath)

	e.recordStart(run)
	defer func() {
		run.Err = err
		e.finish(ctx, run, logger)
	}()

	a, err := archive.Open(archivePath)
	if err != nil {
		return run, importerr.New(importerr.Extraction, "open archive", err)
	}
	run.Archive = a
	logger.Info("archive opened", "kind", a.Kind(), "members", len(a.RawPaths()), "size", humanize.Bytes(uint64(a.Size())))

	adapter, err := e.selectAdapter(run)
	if err != nil {
		return run, err
	}
	run.Adapter = adapter.Name()
	logger.Info("format selected", "format", adapter.Name())

	if err = e.preflight(ctx, run, adapter); err != nil {
		return run, err
	}

	if err = e.extract(ctx, run, adapter); err != nil {
		return run, err
	}

	if err = e.locate(run, adapter); err != nil {
		return run, err
	}

	dest, err := urlalign.Capture(ctx, e.exec)
	if err != nil {
		return run, importerr.New(importerr.Executor, "read destination URLs", err)
	}
	run.Destination = dest

	if e.opts.Preserve {
		set, err := content.ComputePreservation(run.ContentSource, e.opts.ContentPath)
		if err != nil {
			return run, importerr.New(importerr.Discovery, "compute preservation set", err)
		}
		run.Preservation = set
		logger.Info("preservation set computed", "plugins", len(set.Plugins), "themes", len(set.Themes))
	}

	if err = e.backup(ctx, run); err != nil {
		return run, err
	}

	if !run.Preservation.Empty() {
		run.Stash = filepath.Join(run.Sandbox, "preserved")
		if err = content.Preserve(run.Preservation, e.opts.ContentPath, run.Stash); err != nil {
			return run, importerr.New(importerr.Snapshot, "stash preserved extensions", err)
		}
	}

	if e.opts.Maintenance {
		if err = e.exec.MaintenanceMode(ctx, true); err != nil {
			return run, importerr.New(importerr.Executor, "enable maintenance mode", err)
		}
		defer func() {
			if derr := e.exec.MaintenanceMode(context.WithoutCancel(ctx), false); derr != nil {
				logger.Error("failed to disable maintenance mode", "error", derr)
				run.warn("maintenance", "maintenance mode left enabled: "+derr.Error())
			}
		}()
	}

	if err = e.replace(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// selectAdapter honors a forced format or runs detection.
func (e *Engine) selectAdapter(run *Run) (format.Adapter, error) {
	run.Tracker.SetPhase(PhaseDetecting, "")
	if e.opts.Format == "" {
		return e.registry.Detect(run.Archive, run.Diagnostics)
	}
	adapter, err := e.registry.Get(e.opts.Format)
	if err != nil {
		return nil, err
	}
	// A forced format skips detection. Signature mismatches are only
	// reported; the locate step fails if the layout is really wrong.
	for _, reason := range forcedMismatches(adapter, run.Archive) {
		run.warn("format", fmt.Sprintf("forced format %s: %s", adapter.Name(), reason))
	}
	return adapter, nil
}

// forcedMismatches lists the signature checks a forced adapter would have
// failed during detection.
func forcedMismatches(adapter format.Adapter, a *archive.Archive) []string {
	diag := &format.Diagnostics{}
	if adapter.Validate(a, diag) {
		return nil
	}
	var reasons []string
	for _, r := range diag.Rejections() {
		reasons = append(reasons, r.Reason)
	}
	return reasons
}

// extract creates the sandbox and unpacks the archive into it.
func (e *Engine) extract(ctx context.Context, run *Run, adapter format.Adapter) error {
	run.Tracker.SetPhase(PhaseExtracting, "")
	sandbox := filepath.Join(e.opts.WorkDir, "siteport-"+run.ID)
	if err := os.MkdirAll(sandbox, 0o700); err != nil {
		return importerr.New(importerr.Resource, "create sandbox", err)
	}
	run.Sandbox = sandbox

	report, err := adapter.Extract(ctx, run.Archive, sandbox, archive.ExtractOptions{
		MaxFileSize: e.opts.MaxFileSize,
		Logger:      e.logger,
	})
	if err != nil {
		return err
	}
	run.Extracted = report
	return nil
}

// locate finds the database payload and content tree inside the sandbox,
// consolidating per-table dumps into one file.
func (e *Engine) locate(run *Run, adapter format.Adapter) error {
	run.Tracker.SetPhase(PhaseLocating, "")

	loc, err := adapter.LocateDatabase(run.Sandbox)
	if err != nil {
		return err
	}
	run.Database = loc
	run.SQLFile = loc.File

	if loc.IsDirectory() {
		dest := filepath.Join(run.Sandbox, "consolidated.sql")
		res, err := sqldump.Consolidate(loc.Dir, loc.Pattern, loc.MinTables, dest)
		if err != nil {
			return err
		}
		run.SQLFile = res.Path
		run.Consolidated = true
		e.logger.Info("database dumps consolidated", "files", len(res.Files), "size", humanize.Bytes(uint64(res.Bytes)))
	}

	src, err := adapter.LocateContent(run.Sandbox)
	if err != nil {
		return err
	}
	run.ContentSource = src
	e.logger.Info("payload located", "database", run.SQLFile, "content", src)
	return nil
}

// replace runs the database transaction. URL alignment, content mirroring,
// preservation restore and cache flush run as hooks so that any failure
// among them rolls the database back.
func (e *Engine) replace(ctx context.Context, run *Run) error {
	run.Tracker.SetPhase(PhaseImporting, run.SQLFile)

	var contentTouched bool
	hooks := []dbtxn.Hook{
		{Name: "align urls", Run: func(ctx context.Context) error {
			src, err := urlalign.Capture(ctx, e.exec)
			if err != nil {
				return importerr.New(importerr.Import, "read imported URLs", err)
			}
			network, err := e.exec.IsMultisite(ctx)
			if err != nil {
				return importerr.New(importerr.Executor, "detect multisite", err)
			}
			run.Multisite = network
			if network {
				e.logger.Info("multisite network detected, replacing URLs across all sites")
			}
			res, err := urlalign.Align(ctx, e.exec, src, run.Destination, urlalign.Options{
				Reduced: e.opts.SkipSearchReplace,
				Network: network,
				Logger:  e.logger,
			})
			if err != nil {
				return importerr.New(importerr.Import, "align urls", err)
			}
			run.URLs = res
			if len(res.Skipped) > 0 {
				run.warn("urls", fmt.Sprintf("search-replace skipped, %d URL variant(s) left pointing at %s",
					len(res.Skipped), src.SiteURL))
			}
			return nil
		}},
		{Name: "replace content", Run: func(ctx context.Context) error {
			contentTouched = true
			report, err := content.Mirror(run.ContentSource, e.opts.ContentPath, e.rules())
			if err != nil {
				return importerr.New(importerr.Import, "replace content", err)
			}
			run.Content = report
			e.logger.Info("content replaced", "files", report.Copied, "deleted", report.Deleted,
				"size", humanize.Bytes(uint64(report.Bytes)), "excluded", report.Excluded)
			return nil
		}},
	}
	if !run.Preservation.Empty() {
		hooks = append(hooks, dbtxn.Hook{Name: "restore preserved extensions", Run: func(ctx context.Context) error {
			if err := content.Restore(run.Preservation, run.Stash, e.opts.ContentPath); err != nil {
				return importerr.New(importerr.Import, "restore preserved extensions", err)
			}
			if slugs := run.Preservation.PluginSlugs(); len(slugs) > 0 {
				if err := e.exec.PluginDeactivate(ctx, slugs...); err != nil {
					return importerr.New(importerr.Executor, "deactivate preserved plugins", err)
				}
			}
			return nil
		}})
	}
	hooks = append(hooks, dbtxn.Hook{Name: "flush cache", Run: func(ctx context.Context) error {
		if err := e.exec.CacheFlush(ctx); err != nil {
			e.logger.Warn("cache flush failed", "error", err)
			run.warn("cache", "cache flush failed: "+err.Error())
		}
		return nil
	}})

	ctrl := dbtxn.New(e.exec, dbtxn.Options{
		SnapshotDir: e.opts.SnapshotDir,
		ConfigPath:  e.opts.ConfigPath,
		Hooks:       hooks,
		Logger:      e.logger,
	})
	out, err := ctrl.Run(ctx, run.SQLFile)
	run.Outcome = out
	if out != nil && out.SnapshotSkipped {
		run.warn("snapshot", "emergency snapshot skipped: "+out.SnapshotError)
	}
	if err != nil {
		if contentTouched {
			if rerr := e.restoreContent(run); rerr != nil {
				e.logger.Error("content restore failed", "error", rerr)
				return fmt.Errorf("%w (content restore also failed: %v)", err, rerr)
			}
		}
		return err
	}
	return nil
}

// finish settles the sandbox and persists the run.
func (e *Engine) finish(ctx context.Context, run *Run, logger *slog.Logger) {
	run.EndTime = time.Now()

	switch {
	case run.Err == nil:
		run.Tracker.SetPhase(PhaseCleanup, "")
		if run.Sandbox != "" && !e.opts.KeepSandbox {
			if err := os.RemoveAll(run.Sandbox); err != nil {
				logger.Warn("failed to remove sandbox", "path", run.Sandbox, "error", err)
				run.warn("sandbox", "sandbox not removed: "+err.Error())
				run.SandboxRetained = true
			}
		} else if run.Sandbox != "" {
			run.SandboxRetained = true
		}
		run.Tracker.SetPhase(PhaseComplete, "")
		logger.Info("import committed", "format", run.Adapter, "duration", run.EndTime.Sub(run.StartTime))
	default:
		if run.Sandbox != "" {
			run.SandboxRetained = true
		}
		phase := PhaseFailed
		if errors.Is(run.Err, context.Canceled) || ctx.Err() != nil {
			phase = PhaseCancelled
		}
		run.Tracker.SetPhase(phase, run.Err.Error())
		logger.Error("import failed", "kind", errKind(run.Err), "error", run.Err, "sandbox", run.Sandbox)
	}

	e.recordFinish(run)
}

func (e *Engine) recordStart(run *Run) {
	if e.opts.Recorder == nil {
		return
	}
	if err := e.opts.Recorder.CreateRun(run.record(e.opts.SitePath)); err != nil {
		e.logger.Warn("failed to record run start", "run", run.ID, "error", err)
	}
}

func (e *Engine) recordFinish(run *Run) {
	if e.opts.Recorder == nil {
		return
	}
	if err := e.opts.Recorder.UpdateRun(run.record(e.opts.SitePath)); err != nil {
		e.logger.Warn("failed to record run result", "run", run.ID, "error", err)
		return
	}
	for _, d := range run.diagnostics() {
		if err := e.opts.Recorder.AddDiagnostic(&d); err != nil {
			e.logger.Warn("failed to record diagnostic", "run", run.ID, "error", err)
			return
		}
	}
}

// errKind classifies err for reporting; unclassified cancellations are
// reported as such.
func errKind(err error) importerr.Kind {
	if k := importerr.KindOf(err); k != "" {
		return k
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "internal"
}
