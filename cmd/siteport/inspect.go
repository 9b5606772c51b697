package main

import (
	"fmt"
	"os"

	"github.com/BadgerOps/siteport/internal/engine"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var inspectFormat string

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect ARCHIVE",
		Short: "Detect an archive's format without importing it",
		Long: `Inspect lists an archive, checks every member path and runs format
detection. Nothing is extracted and the destination site is not touched.
Every format's reason for declining the archive is shown.`,
		Example: `  siteport inspect /backups/site.zip
  siteport inspect backup.tar.gz --format jetpack`,
		Args: cobra.ExactArgs(1),
		RunE: inspectRun,
	}

	cmd.Flags().StringVar(&inspectFormat, "format", "", "validate against one format instead of detecting")

	return cmd
}

func inspectRun(cmd *cobra.Command, args []string) error {
	in, err := engine.Inspect(nil, args[0], inspectFormat)
	if err != nil {
		return err
	}

	a := in.Archive
	fmt.Println(headerColor.Sprintf("Archive: %s", a.Path()))
	fmt.Printf("  %-10s %s\n", "Kind:", a.Kind())
	fmt.Printf("  %-10s %s\n", "Size:", humanize.Bytes(uint64(a.Size())))
	fmt.Printf("  %-10s %d\n", "Members:", len(a.Members()))

	if in.Unsafe != nil {
		fmt.Printf("  %-10s %s\n", "Paths:", failColor.Sprint("UNSAFE"))
		printFailure(os.Stdout, in.Unsafe)
	} else {
		fmt.Printf("  %-10s %s\n", "Paths:", okColor.Sprint("ok"))
	}

	switch {
	case in.Adapter != nil && in.Forced:
		fmt.Printf("  %-10s %s (forced)\n", "Format:", okColor.Sprint(in.Adapter.Name()))
		for _, m := range in.Mismatches {
			fmt.Printf("  %-10s %s\n", "", warnColor.Sprint("signature: "+m))
		}
	case in.Adapter != nil:
		fmt.Printf("  %-10s %s\n", "Format:", okColor.Sprint(in.Adapter.Name()))
	default:
		fmt.Printf("  %-10s %s\n", "Format:", failColor.Sprint("not recognized"))
	}

	if len(in.Rejections) > 0 {
		fmt.Println()
		fmt.Println("Declined by:")
		for _, r := range in.Rejections {
			fmt.Printf("  %-14s %s\n", r.Adapter, dimColor.Sprint(r.Reason))
		}
	}

	if in.Unsafe != nil {
		return in.Unsafe
	}
	return in.DetectErr
}
