package store

import "time"

// Run statuses
const (
	StatusRunning   = "running"
	StatusCommitted = "committed"
	StatusFailed    = "failed"
)

// ImportRun records one import attempt
type ImportRun struct {
	ID                string
	Archive           string
	ArchiveSize       int64
	SitePath          string
	Format            string
	State             string // last controller or engine phase reached
	Status            string // "running", "committed", "failed"
	ErrorKind         string
	ErrorMessage      string
	SandboxPath       string
	SnapshotPath      string
	DBBackupPath      string
	ContentBackupPath string
	TablePrefix       string
	TablesBefore      int
	TablesAfter       int
	RestoreAttempted  bool
	RestoreError      string
	Multisite         bool
	FilesExtracted    int
	StartTime         time.Time
	EndTime           time.Time
}

// Duration returns how long the run took, or has taken so far.
func (r *ImportRun) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// Diagnostic kinds
const (
	DiagRejection = "rejection"
	DiagWarning   = "warning"
	DiagPhase     = "phase"
)

// Diagnostic is a note attached to a run: an adapter rejection, a warning
// or a phase transition
type Diagnostic struct {
	ID        int64
	RunID     string
	Kind      string
	Source    string
	Message   string
	CreatedAt time.Time
}
