package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/gitgraft/pkg/recovery"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "validate <record>",
		Short:         "Check a recovery record against its schema and invariants",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			state, err := recovery.NewStore().Load(args[0])
			if err != nil {
				color.New(color.FgRed).Fprintf(out, "%s is invalid\n", args[0])

				return err
			}

			color.New(color.FgGreen).Fprintf(out, "%s is valid (stage %s)\n", args[0], state.ImportStage)

			return nil
		},
	}
}
