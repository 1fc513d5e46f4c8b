package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gitgraft/pkg/version"
)

// NewRootCommand assembles the gitgraft command tree.
func NewRootCommand() (*cobra.Command, error) {
	opts := NewOptions()

	rootCmd := &cobra.Command{
		Use:   "gitgraft",
		Short: "Import a foreign git history under a directory of a native repository",
		Long: `gitgraft imports the history of a foreign git repository into the native
commit store, shifts it under a destination directory and merges it into a
destination bookmark. Progress is checkpointed to a recovery record.

Commands:
  init              write a recovery record for a new import
  recover-process   run or resume an import
  status            show import progress
  validate          check a recovery record`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	err := opts.Bind(rootCmd)
	if err != nil {
		return nil, err
	}

	rootCmd.AddCommand(
		NewInitCommand(),
		NewRecoverProcessCommand(opts),
		NewStatusCommand(),
		NewValidateCommand(),
		NewMCPCommand(opts),
		newVersionCommand(),
	)

	return rootCmd, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gitgraft %s\n", version.String())
		},
	}
}
