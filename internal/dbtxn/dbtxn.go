// Package dbtxn replaces a site database as a single all-or-nothing step by
// snapshotting it first and restoring the snapshot on any failure.
package dbtxn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BadgerOps/siteport/internal/importerr"
	"github.com/BadgerOps/siteport/internal/prefix"
	"github.com/BadgerOps/siteport/internal/wpcli"
	"github.com/BadgerOps/siteport/internal/wpconfig"
	"github.com/google/uuid"
)

// Executor is the subset of the wp tool the controller drives.
type Executor interface {
	DBExport(ctx context.Context, dest string) error
	DBImport(ctx context.Context, src string) error
	DBReset(ctx context.Context) error
	Tables(ctx context.Context) ([]string, error)
	Query(ctx context.Context, sql string) (string, error)
	ConfigGet(ctx context.Context, name string) (string, error)
	ConfigSet(ctx context.Context, name, value string) error
}

// State is a step of the import state machine.
type State string

const (
	StateIdle          State = "idle"
	StateSnapshotTaken State = "snapshot_taken"
	StateReset         State = "reset"
	StateImported      State = "imported"
	StateVerified      State = "verified"
	StatePrefixAligned State = "prefix_aligned"
	StateCommitted     State = "committed"
	StateFailed        State = "failed"
)

// Hook is work that must succeed before the import is committed. A failing
// hook rolls the database back like any other failure.
type Hook struct {
	Name string
	Run  func(ctx context.Context) error
}

// Options configures a Controller.
type Options struct {
	// SnapshotDir receives the emergency snapshot.
	SnapshotDir string
	// ConfigPath is wp-config.php, used for the direct-substitution fallback.
	ConfigPath string
	Resolver   prefix.Resolver
	Hooks      []Hook
	Logger     *slog.Logger
}

// Transition is one recorded state change.
type Transition struct {
	State State
	At    time.Time
}

// Outcome reports everything the controller did.
type Outcome struct {
	State           State
	History         []Transition
	SnapshotPath    string
	SnapshotSkipped bool
	SnapshotError   string
	TablesBefore    int
	TablesAfter     int
	Prefix          prefix.Resolution
	PreviousPrefix  string
	PrefixChanged   bool
	PrefixFallback  bool
	Restored        bool
	RestoreError    string
}

// Controller runs one database replacement. It is not reusable.
type Controller struct {
	exec    Executor
	opts    Options
	logger  *slog.Logger
	out     *Outcome
	cfgBack *wpconfig.Backup
}

// New returns a controller for exec.
func New(exec Executor, opts Options) *Controller {
	if opts.Resolver == nil {
		opts.Resolver = prefix.Heuristic{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{exec: exec, opts: opts, logger: logger}
}

func (c *Controller) transition(s State) {
	from := c.out.State
	c.out.State = s
	c.out.History = append(c.out.History, Transition{State: s, At: time.Now()})
	c.logger.Info("database import state", "from", from, "to", s)
}

// Run replaces the database with the contents of sqlFile.
func (c *Controller) Run(ctx context.Context, sqlFile string) (out *Outcome, err error) {
	c.out = &Outcome{State: StateIdle}
	out = c.out

	configured, err := c.exec.ConfigGet(ctx, "table_prefix")
	if err != nil {
		return out, importerr.New(importerr.Executor, "read table prefix", err)
	}
	c.out.PreviousPrefix = configured

	before, err := c.exec.Tables(ctx)
	if err != nil {
		return out, importerr.New(importerr.Executor, "count tables", err)
	}
	c.out.TablesBefore = len(before)

	c.takeSnapshot(ctx)
	c.transition(StateSnapshotTaken)

	defer func() {
		if err != nil {
			err = c.fail(ctx, err)
		}
	}()

	if err = c.reset(ctx); err != nil {
		return out, err
	}
	c.transition(StateReset)

	if err = c.exec.DBImport(ctx, sqlFile); err != nil {
		return out, importerr.New(importerr.Import, "import database", err)
	}
	c.transition(StateImported)

	after, err := c.exec.Tables(ctx)
	if err != nil {
		return out, importerr.New(importerr.Executor, "count tables", err)
	}
	if len(after) == 0 {
		return out, importerr.Newf(importerr.Import, "verify import",
			"import of %s produced zero tables", filepath.Base(sqlFile)).
			WithRemediation("the dump contains no CREATE TABLE statements; check the archive")
	}
	c.out.TablesAfter = len(after)
	c.transition(StateVerified)

	res, err := c.opts.Resolver.Resolve(ctx, c.exec, configured)
	if err != nil {
		return out, err
	}
	c.out.Prefix = res
	c.logger.Info("table prefix resolved", "prefix", res.Prefix, "method", res.Method, "configured", configured)

	if err = c.alignPrefix(ctx, res.Prefix, configured); err != nil {
		return out, err
	}

	for _, h := range c.opts.Hooks {
		if err = ctx.Err(); err != nil {
			return out, err
		}
		c.logger.Info("running post-import step", "step", h.Name)
		if err = h.Run(ctx); err != nil {
			return out, fmt.Errorf("%s: %w", h.Name, err)
		}
	}
	c.transition(StatePrefixAligned)

	c.discardSnapshot()
	c.transition(StateCommitted)
	return out, nil
}

func (c *Controller) takeSnapshot(ctx context.Context) {
	if c.opts.SnapshotDir == "" {
		c.recordSkipped(errors.New("no snapshot directory configured"))
		return
	}
	if err := os.MkdirAll(c.opts.SnapshotDir, 0o700); err != nil {
		c.recordSkipped(err)
		return
	}
	p := filepath.Join(c.opts.SnapshotDir, "snapshot-"+uuid.NewString()+".sql")
	if err := c.exec.DBExport(ctx, p); err != nil {
		_ = os.Remove(p)
		c.recordSkipped(err)
		return
	}
	c.out.SnapshotPath = p
	c.logger.Info("emergency snapshot taken", "path", p, "tables", c.out.TablesBefore)
}

func (c *Controller) recordSkipped(err error) {
	c.out.SnapshotSkipped = true
	c.out.SnapshotError = err.Error()
	c.logger.Warn("emergency snapshot failed, continuing without automatic rollback", "error", err)
}

func (c *Controller) discardSnapshot() {
	if c.out.SnapshotPath == "" {
		return
	}
	if err := os.Remove(c.out.SnapshotPath); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("failed to remove snapshot", "path", c.out.SnapshotPath, "error", err)
		return
	}
	c.out.SnapshotPath = ""
}

// reset empties the database and verifies it is empty, dropping leftover
// tables one at a time when the bulk reset did not.
func (c *Controller) reset(ctx context.Context) error {
	if err := c.exec.DBReset(ctx); err != nil {
		c.logger.Warn("db reset reported failure, verifying table count", "error", err)
	}
	remaining, err := c.exec.Tables(ctx)
	if err != nil {
		return importerr.New(importerr.Executor, "count tables", err)
	}
	if len(remaining) == 0 {
		return nil
	}

	c.logger.Warn("tables remain after reset, dropping individually", "count", len(remaining))
	for _, t := range remaining {
		ident, err := wpcli.QuoteIdent(t)
		if err != nil {
			c.logger.Warn("refusing to drop table with unsafe name", "table", t, "error", err)
			continue
		}
		if _, err := c.exec.Query(ctx, "DROP TABLE IF EXISTS "+ident); err != nil {
			c.logger.Warn("drop table failed", "table", t, "error", err)
		}
	}

	remaining, err = c.exec.Tables(ctx)
	if err != nil {
		return importerr.New(importerr.Executor, "count tables", err)
	}
	if len(remaining) > 0 {
		return importerr.Newf(importerr.Import, "reset database",
			"%d table(s) remain after reset", len(remaining)).
			WithReasons(remaining...)
	}
	return nil
}

// alignPrefix writes target to wp-config.php through the executor and reads
// it back. On mismatch it substitutes the assignment directly. If that also
// fails the file is put back as it was.
func (c *Controller) alignPrefix(ctx context.Context, target, configured string) error {
	if target == configured {
		return nil
	}

	if c.opts.ConfigPath != "" {
		b, err := wpconfig.Snapshot(c.opts.ConfigPath)
		if err != nil {
			return importerr.New(importerr.ConfigWrite, "align table prefix", err)
		}
		c.cfgBack = b
	}

	c.logger.Info("rewriting table prefix", "from", configured, "to", target)
	setErr := c.exec.ConfigSet(ctx, "table_prefix", target)
	if setErr == nil && c.readBack(ctx) == target {
		c.out.PrefixChanged = true
		return nil
	}
	c.logger.Warn("table prefix did not stick, falling back to direct substitution",
		"prefix", target, "error", setErr)

	var reasons []string
	if setErr != nil {
		reasons = append(reasons, "wp config set: "+setErr.Error())
	} else {
		reasons = append(reasons, "wp config set: value did not persist")
	}

	if c.opts.ConfigPath == "" {
		reasons = append(reasons, "direct substitution: no config file path")
	} else if err := wpconfig.SetPrefix(c.opts.ConfigPath, target); err != nil {
		reasons = append(reasons, "direct substitution: "+err.Error())
	} else if got := c.readBack(ctx); got != target {
		reasons = append(reasons, fmt.Sprintf("direct substitution: read back %q", got))
	} else {
		c.out.PrefixChanged = true
		c.out.PrefixFallback = true
		return nil
	}

	if c.cfgBack != nil {
		if err := c.cfgBack.Restore(); err != nil {
			reasons = append(reasons, "restoring config: "+err.Error())
		}
		c.cfgBack = nil
	}
	return importerr.Newf(importerr.ConfigWrite, "align table prefix",
		"could not set table_prefix to %q", target).
		WithReasons(reasons...).
		WithRemediation(fmt.Sprintf("set $table_prefix = '%s'; in wp-config.php by hand", target))
}

func (c *Controller) readBack(ctx context.Context) string {
	got, err := c.exec.ConfigGet(ctx, "table_prefix")
	if err != nil {
		c.logger.Warn("reading table prefix back failed", "error", err)
		return "\x00"
	}
	return got
}

// fail restores the snapshot once and annotates cause with the result.
func (c *Controller) fail(ctx context.Context, cause error) error {
	c.transition(StateFailed)
	// Restoration must finish even when the run was cancelled.
	rctx := context.WithoutCancel(ctx)

	if c.cfgBack != nil {
		if err := c.cfgBack.Restore(); err != nil {
			c.logger.Error("restoring wp-config.php failed", "path", c.cfgBack.Path(), "error", err)
		}
	}

	if c.out.SnapshotPath == "" {
		c.logger.Error("import failed with no snapshot to restore", "error", cause)
		return fmt.Errorf("%w (no emergency snapshot was available)", cause)
	}

	c.logger.Warn("import failed, restoring emergency snapshot", "path", c.out.SnapshotPath, "error", cause)
	err := c.reset(rctx)
	if err == nil {
		err = c.exec.DBImport(rctx, c.out.SnapshotPath)
	}
	if err != nil {
		c.out.RestoreError = err.Error()
		c.logger.Error("automatic restore failed", "snapshot", c.out.SnapshotPath, "error", err)
		return fmt.Errorf("%w (automatic restore failed: %v; snapshot kept at %s)", cause, err, c.out.SnapshotPath)
	}

	c.out.Restored = true
	if tables, err := c.exec.Tables(rctx); err == nil {
		c.out.TablesAfter = len(tables)
	}
	c.logger.Info("database restored from snapshot", "tables", c.out.TablesAfter, "snapshot", c.out.SnapshotPath)
	return fmt.Errorf("%w (database restored from snapshot %s)", cause, c.out.SnapshotPath)
}
