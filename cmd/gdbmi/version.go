package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set via ldflags during build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gdbmi version %s\n", Version)
			if Commit != "" && Commit != "unknown" {
				fmt.Fprintf(out, "commit: %s\n", Commit)
			}
			if BuildDate != "" && BuildDate != "unknown" {
				fmt.Fprintf(out, "built at: %s\n", BuildDate)
			}
			return nil
		},
	}
}
