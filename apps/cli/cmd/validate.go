package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/descriptor"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate descriptor files without sending anything",
	Long: `Check descriptor files against the descriptor schema and resolve every
entry into a request without executing it.

Examples:
  knurl validate requests.yaml
  knurl validate smoke.yaml load.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	hasErrors := false
	for _, file := range args {
		if _, err := descriptor.Load(file); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
			hasErrors = true
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
		}
	}

	if hasErrors {
		return reported(apperror.New(apperror.BadRequest, "validation failed"))
	}
	return nil
}
