package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Command creates a new cobra.Command that prints the build version.
func Command(v string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the imagededup version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "imagededup %s (%s, %s/%s)\n", v, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
