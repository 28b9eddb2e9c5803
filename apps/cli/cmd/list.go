package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/knurl/packages/descriptor"
)

var listCmd = &cobra.Command{
	Use:   "list <file>...",
	Short: "List the requests in descriptor files",
	Long: `List the requests defined in YAML or JSON descriptor files.

Examples:
  knurl list requests.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	var firstErr error
	for _, file := range args {
		reqs, err := descriptor.Load(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error parsing %s: %v\n", file, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n", file)
		for i, req := range reqs {
			fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s %s %s\n", i+1, req.ID, req.Method, req.URL)
		}
	}

	if firstErr != nil {
		return reported(firstErr)
	}
	return nil
}
