package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/BadgerOps/siteport/internal/store"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyStatus string
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past import runs",
		Long: `Show the import runs recorded in the history database, newest first.
Use "history show" with a run ID or a unique prefix of one for the full record
and every diagnostic the run produced.`,
		Example: `  siteport history
  siteport history --limit 5 --status failed
  siteport history show 3f2a9c1e`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{storeAnnotation: storeRequired},
		RunE:        historyRun,
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to show (0 for all)")
	cmd.Flags().StringVar(&historyStatus, "status", "", "only show runs with this status (running, committed, failed)")

	cmd.AddCommand(newHistoryShowCmd())

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "show RUN-ID",
		Short:       "Show one import run in detail",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{storeAnnotation: storeRequired},
		RunE:        historyShowRun,
	}

	return cmd
}

func historyRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("store not initialized")
	}
	switch historyStatus {
	case "", store.StatusRunning, store.StatusCommitted, store.StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", historyStatus)
	}

	runs, err := globalStore.ListRuns(historyStatus, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list import runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No import runs recorded.")
		return nil
	}

	fmt.Printf("%-10s %-20s %-10s %-14s %-28s %10s  %s\n",
		"Run", "Started", "Status", "Format", "Archive", "Duration", "Error")
	for _, r := range runs {
		format := r.Format
		if format == "" {
			format = "-"
		}
		duration := "-"
		if !r.EndTime.IsZero() {
			duration = r.Duration().Round(time.Second).String()
		}
		errKind := r.ErrorKind
		if errKind == "" {
			errKind = "-"
		}
		fmt.Printf("%-10s %-20s %s %-14s %-28s %10s  %s\n",
			shortID(r.ID),
			r.StartTime.Local().Format("2006-01-02 15:04:05"),
			statusColumn(r.Status),
			format,
			truncate(filepath.Base(r.Archive), 28),
			duration,
			errKind,
		)
	}
	return nil
}

func historyShowRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("store not initialized")
	}

	id, err := globalStore.ResolveRunID(args[0])
	if err != nil {
		return err
	}
	run, err := globalStore.GetRun(id)
	if err != nil {
		return err
	}
	diags, err := globalStore.ListDiagnostics(id)
	if err != nil {
		return fmt.Errorf("failed to list diagnostics: %w", err)
	}

	field := func(name, value string) {
		if value == "" {
			return
		}
		fmt.Printf("%-16s %s\n", name+":", value)
	}

	fmt.Println(headerColor.Sprintf("Run %s", run.ID))
	field("Status", statusColor(run.Status).Sprint(run.Status))
	field("State", run.State)
	field("Archive", fmt.Sprintf("%s (%s)", run.Archive, humanize.Bytes(uint64(run.ArchiveSize))))
	field("Site", run.SitePath)
	field("Format", run.Format)
	field("Table prefix", run.TablePrefix)
	if run.Multisite {
		field("Network", "multisite")
	}
	if run.FilesExtracted > 0 {
		field("Extracted", fmt.Sprintf("%d file(s)", run.FilesExtracted))
	}
	if run.TablesBefore > 0 || run.TablesAfter > 0 {
		field("Tables", fmt.Sprintf("%d before, %d after", run.TablesBefore, run.TablesAfter))
	}
	field("Started", run.StartTime.Local().Format(time.RFC3339))
	if !run.EndTime.IsZero() {
		field("Finished", run.EndTime.Local().Format(time.RFC3339))
		field("Duration", run.Duration().Round(time.Millisecond).String())
	}
	if run.ErrorKind != "" {
		field("Error", fmt.Sprintf("%s: %s", run.ErrorKind, run.ErrorMessage))
	}
	if run.RestoreAttempted {
		if run.RestoreError != "" {
			field("Restore", failColor.Sprint("FAILED: "+run.RestoreError))
		} else {
			field("Restore", okColor.Sprint("database restored"))
		}
	}
	field("Snapshot", run.SnapshotPath)
	field("DB backup", run.DBBackupPath)
	field("Content backup", run.ContentBackupPath)
	field("Sandbox", run.SandboxPath)

	if len(diags) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Println("Diagnostics:")
	for _, d := range diags {
		line := fmt.Sprintf("  %-10s %-22s %s", d.Kind, d.Source, d.Message)
		switch d.Kind {
		case store.DiagRejection:
			fmt.Println(line)
		case store.DiagWarning:
			fmt.Println(warnColor.Sprint(line))
		default:
			fmt.Println(dimColor.Sprint(line))
		}
	}
	return nil
}

// statusColumn pads before coloring so escape codes do not break alignment.
func statusColumn(status string) string {
	return statusColor(status).Sprintf("%-10s", status)
}

func statusColor(status string) *color.Color {
	switch status {
	case store.StatusCommitted:
		return okColor
	case store.StatusFailed:
		return failColor
	}
	return warnColor
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
