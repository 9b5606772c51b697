package main

import (
	"fmt"
	"strings"

	"github.com/BadgerOps/siteport/internal/format"
	"github.com/spf13/cobra"
)

func newFormatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List supported archive formats",
		Long: `List the archive formats siteport understands, in the order detection
tries them, with the external commands each one needs.`,
		Args: cobra.NoArgs,
		RunE: formatsRun,
	}

	return cmd
}

func formatsRun(cmd *cobra.Command, args []string) error {
	fmt.Printf("%-4s %-16s %s\n", "#", "Format", "Requires")
	for i, a := range format.Default().Adapters() {
		deps := strings.Join(a.Dependencies(), ", ")
		if deps == "" {
			deps = "-"
		}
		fmt.Printf("%-4d %-16s %s\n", i+1, a.Name(), deps)
	}
	return nil
}
