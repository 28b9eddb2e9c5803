package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/knurl/packages/logstore"
	"github.com/abdul-hamid-achik/knurl/packages/output"
)

var logsCmd = &cobra.Command{
	Use:   "logs [request-id]",
	Short: "Print telemetry stored in a log database",
	Long: `Print the telemetry events recorded for a request, or list the most
recent requests when no id is given.

Examples:
  knurl logs --log-db knurl.db
  knurl logs 5f1c2a9e-3b7d-4c1e-9a4f-0d2b6e8c7a11 --log-db knurl.db
  knurl logs create-user --log-db knurl.db -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: logsCommand,
}

var logsLimitFlag int

func init() {
	logsCmd.Flags().IntVarP(&logsLimitFlag, "limit", "n", 20, "Number of recent requests to list")
}

func logsCommand(cmd *cobra.Command, args []string) error {
	st, err := resolveSettings(cmd)
	if err != nil {
		return err
	}
	if st.logDB == "" {
		return usageError(fmt.Errorf("--log-db is required"))
	}
	cmd.SilenceUsage = true

	store, err := logstore.Open(st.logDB)
	if err != nil {
		return configError(err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	jsonOut := output.NewJSONFormatter(output.JSONWithWriter(cmd.OutOrStdout()))
	console := output.NewConsoleFormatter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithVerbose(st.verbose),
		output.WithNoColor(st.noColor),
	)

	if len(args) == 0 {
		summaries, err := store.Requests(ctx, logsLimitFlag)
		if err != nil {
			return err
		}
		if st.json() {
			return jsonOut.FormatRequests(summaries)
		}
		console.FormatRequests(summaries)
		return nil
	}

	events, err := store.Events(ctx, args[0])
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return &exitError{code: ExitRequestFailed, err: fmt.Errorf("no events recorded for request %q", args[0])}
	}
	if st.json() {
		return jsonOut.FormatEvents(args[0], events)
	}
	console.FormatEvents(args[0], events)
	return nil
}
