package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psychectl/psyche/internal/version"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the psychectl version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.Format == "json" {
				formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				return formatter.Success(map[string]string{"version": version.Version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "psychectl %s\n", version.Version)
			return nil
		},
	}
}
