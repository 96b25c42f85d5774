// Package cmd wires the imagededup command line.
package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"imagededup/cmd/dedup"
	"imagededup/cmd/initconfig"
	"imagededup/cmd/version"
)

// Version is set at build time with -ldflags "-X imagededup/cmd.Version=..."
var Version = "dev"

// Exit codes returned by ExitCode
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// RootCommand creates and returns the root command
func RootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "imagededup",
		Short:        "Partition image collections into unique images and duplicates",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		dedup.Command(),
		initconfig.Command(),
		version.Command(Version),
	)

	return rootCmd
}

// ExitCode maps the error returned by the root command to a process exit status.
// Item-level failures never reach here, so any error is fatal.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}
