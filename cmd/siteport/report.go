package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/BadgerOps/siteport/internal/engine"
	"github.com/BadgerOps/siteport/internal/importerr"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

var (
	headerColor = color.New(color.Bold)
	okColor     = color.New(color.FgGreen, color.Bold)
	failColor   = color.New(color.FgRed, color.Bold)
	warnColor   = color.New(color.FgYellow)
	dimColor    = color.New(color.Faint)
)

// Exit codes
const (
	exitFailure  = 1 // unclassified
	exitRejected = 2 // the archive was refused before anything changed
	exitResource = 3 // preflight resource check failed
	exitImport   = 4 // failure during or after the destructive phase
)

func exitCode(err error) int {
	switch importerr.KindOf(err) {
	case importerr.Validation, importerr.Security, importerr.Extraction,
		importerr.Discovery, importerr.Ambiguity:
		return exitRejected
	case importerr.Resource:
		return exitResource
	case importerr.Import, importerr.ConfigWrite, importerr.Snapshot, importerr.Executor:
		return exitImport
	}
	return exitFailure
}

// printFailure writes the error kind, every individual reason and the
// remediation advice.
func printFailure(w io.Writer, err error) {
	var ie *importerr.Error
	if !errors.As(err, &ie) {
		failColor.Fprintf(w, "Error: ")
		fmt.Fprintln(w, err)
		return
	}

	failColor.Fprintf(w, "Error (%s): ", ie.Kind)
	fmt.Fprintln(w, err)
	if len(ie.Reasons) > 0 {
		fmt.Fprintln(w, "Reasons:")
		for _, r := range ie.Reasons {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
	if ie.Remediation != "" {
		warnColor.Fprintf(w, "Hint: ")
		fmt.Fprintln(w, ie.Remediation)
	}
}

// printRun writes the report of an import run, committed or not.
func printRun(w io.Writer, run *engine.Run) {
	if run.Err == nil {
		okColor.Fprintln(w, "Import committed")
	} else {
		failColor.Fprintln(w, "Import failed")
	}

	field := func(name, format string, args ...any) {
		fmt.Fprintf(w, "  %-16s %s\n", name+":", fmt.Sprintf(format, args...))
	}

	field("Run", "%s", run.ID)
	if run.Archive != nil {
		field("Archive", "%s (%s, %s)", run.ArchivePath, run.Archive.Kind(), humanize.Bytes(uint64(run.Archive.Size())))
	} else {
		field("Archive", "%s", run.ArchivePath)
	}
	if run.Adapter != "" {
		field("Format", "%s", run.Adapter)
	}
	if x := run.Extracted; x != nil {
		field("Extracted", "%d file(s), %d dir(s), %s", x.Files, x.Dirs, humanize.Bytes(uint64(x.Bytes)))
	}
	if run.SQLFile != "" {
		db := filepath.Base(run.SQLFile)
		if run.Consolidated {
			db += " (consolidated from " + run.Database.Dir + ")"
		}
		field("Database", "%s", db)
	}

	if o := run.Outcome; o != nil {
		field("State", "%s", o.State)
		if o.Prefix.Prefix != "" {
			p := fmt.Sprintf("%s (%s)", o.Prefix.Prefix, o.Prefix.Method)
			if o.PrefixChanged {
				p += ", was " + o.PreviousPrefix
			}
			if o.PrefixFallback {
				p += ", written directly to wp-config.php"
			}
			field("Table prefix", "%s", p)
		}
		field("Tables", "%d before, %d after", o.TablesBefore, o.TablesAfter)
		switch {
		case o.Restored:
			field("Restore", "database restored from %s", o.SnapshotPath)
		case o.RestoreError != "":
			failColor.Fprintf(w, "  %-16s %s\n", "Restore:", "FAILED: "+o.RestoreError)
		}
	}

	if c := run.Content; c != nil {
		field("Content", "%d file(s) copied, %d removed, %s", c.Copied, c.Deleted, humanize.Bytes(uint64(c.Bytes)))
		if len(c.Excluded) > 0 {
			field("Left in place", "%s", strings.Join(c.Excluded, ", "))
		}
	}
	if run.ContentRestored {
		field("Content restore", "destination content restored from backup")
	}
	if run.Multisite {
		field("Network", "multisite, URLs replaced across all sites")
	}
	if u := run.URLs; u != nil {
		field("URLs", "%d replacement pair(s) applied", u.Applied)
	}
	if !run.Preservation.Empty() {
		field("Preserved", "%d plugin(s), %d theme(s)", len(run.Preservation.Plugins), len(run.Preservation.Themes))
	}
	if run.DBBackup != "" {
		field("DB backup", "%s", run.DBBackup)
	}
	if run.ContentBackup != "" {
		field("Content backup", "%s", run.ContentBackup)
	}
	if run.SandboxRetained {
		field("Sandbox", "%s (retained)", run.Sandbox)
	}
	field("Duration", "%s", run.EndTime.Sub(run.StartTime).Round(time.Millisecond))

	if len(run.Warnings) > 0 {
		warnColor.Fprintln(w, "Warnings:")
		for _, wn := range run.Warnings {
			fmt.Fprintf(w, "  - [%s] %s\n", wn.Source, wn.Message)
		}
	}

	printPhases(w, run.Tracker.Snapshot())
}

func printPhases(w io.Writer, p engine.Progress) {
	if len(p.Events) == 0 {
		return
	}
	dimColor.Fprintln(w, "Phases:")
	for _, ev := range p.Events {
		offset := ev.At.Sub(p.StartTime).Round(time.Millisecond)
		line := fmt.Sprintf("  +%-10s %s", offset, ev.Phase)
		if ev.Message != "" && ev.Phase != engine.PhaseFailed && ev.Phase != engine.PhaseCancelled {
			line += "  " + ev.Message
		}
		dimColor.Fprintln(w, line)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
