package engine

import (
	"time"

	"github.com/BadgerOps/siteport/internal/archive"
	"github.com/BadgerOps/siteport/internal/content"
	"github.com/BadgerOps/siteport/internal/dbtxn"
	"github.com/BadgerOps/siteport/internal/format"
	"github.com/BadgerOps/siteport/internal/store"
	"github.com/BadgerOps/siteport/internal/urlalign"
	"github.com/google/uuid"
)

// Warning is a non-fatal finding attached to a run.
type Warning struct {
	Source  string
	Message string
	At      time.Time
}

// Run carries everything one import discovers and produces. A Run is owned
// by a single Import call and never shared between runs.
type Run struct {
	ID          string
	ArchivePath string
	Archive     *archive.Archive
	Adapter     string
	Diagnostics *format.Diagnostics
	Warnings    []Warning
	Tracker     *Tracker

	Sandbox         string
	SandboxRetained bool
	Extracted       *archive.ExtractReport
	Database        format.DatabaseLocation
	SQLFile         string
	Consolidated    bool
	ContentSource   string
	Preservation    content.PreservationSet
	Stash           string
	Destination     urlalign.Canonical

	DBBackup      string
	ContentBackup string

	Outcome         *dbtxn.Outcome
	Multisite       bool // the site is a network; URLs were replaced across every site
	URLs            *urlalign.Result
	Content         *content.Report
	ContentRestored bool

	StartTime time.Time
	EndTime   time.Time
	Err       error
}

func newRun(archivePath string) *Run {
	id := uuid.NewString()
	return &Run{
		ID:          id,
		ArchivePath: archivePath,
		Diagnostics: &format.Diagnostics{},
		Tracker:     NewTracker(id),
		StartTime:   time.Now(),
	}
}

func (r *Run) warn(source, msg string) {
	r.Warnings = append(r.Warnings, Warning{Source: source, Message: msg, At: time.Now()})
}

// Committed reports whether the database transaction reached its commit.
func (r *Run) Committed() bool {
	return r.Outcome != nil && r.Outcome.State == dbtxn.StateCommitted
}

// record converts the run into its persisted form.
func (r *Run) record(sitePath string) *store.ImportRun {
	rec := &store.ImportRun{
		ID:                r.ID,
		Archive:           r.ArchivePath,
		SitePath:          sitePath,
		Format:            r.Adapter,
		State:             string(r.Tracker.Phase()),
		Status:            store.StatusRunning,
		DBBackupPath:      r.DBBackup,
		ContentBackupPath: r.ContentBackup,
		Multisite:         r.Multisite,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
	}
	if r.Extracted != nil {
		rec.FilesExtracted = r.Extracted.Files
	}
	if r.Archive != nil {
		rec.ArchiveSize = r.Archive.Size()
	}
	if r.SandboxRetained {
		rec.SandboxPath = r.Sandbox
	}
	if o := r.Outcome; o != nil {
		rec.State = string(o.State)
		rec.SnapshotPath = o.SnapshotPath
		rec.TablePrefix = o.Prefix.Prefix
		rec.TablesBefore = o.TablesBefore
		rec.TablesAfter = o.TablesAfter
		rec.RestoreAttempted = o.Restored || o.RestoreError != ""
		rec.RestoreError = o.RestoreError
	}
	switch {
	case r.Err != nil:
		rec.Status = store.StatusFailed
		rec.ErrorKind = string(errKind(r.Err))
		rec.ErrorMessage = r.Err.Error()
	case !r.EndTime.IsZero():
		rec.Status = store.StatusCommitted
	}
	return rec
}

// diagnostics lists the adapter rejections, warnings and phase events of the run.
func (r *Run) diagnostics() []store.Diagnostic {
	var out []store.Diagnostic
	for _, rej := range r.Diagnostics.Rejections() {
		out = append(out, store.Diagnostic{
			RunID: r.ID, Kind: store.DiagRejection, Source: rej.Adapter,
			Message: rej.Reason, CreatedAt: r.StartTime,
		})
	}
	for _, w := range r.Warnings {
		out = append(out, store.Diagnostic{
			RunID: r.ID, Kind: store.DiagWarning, Source: w.Source,
			Message: w.Message, CreatedAt: w.At,
		})
	}
	for _, ev := range r.Tracker.Snapshot().Events {
		msg := string(ev.Phase)
		if ev.Message != "" {
			msg += ": " + ev.Message
		}
		out = append(out, store.Diagnostic{
			RunID: r.ID, Kind: store.DiagPhase, Source: "engine",
			Message: msg, CreatedAt: ev.At,
		})
	}
	return out
}
