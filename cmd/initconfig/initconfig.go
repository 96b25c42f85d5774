package initconfig

import (
	"fmt"

	"github.com/spf13/cobra"

	"imagededup/config"
	"imagededup/utils"
)

// Command creates a new cobra.Command that writes the default configuration file.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a configuration file holding the default settings",
		Long:  "Write the default settings as YAML. Without a path the file is created next to the executable.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := utils.GetDefaultConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
}
