package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/knurl/packages/http"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag  string
	outputFlag  string
	logDBFlag   string
	noColorFlag bool
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "knurl",
	Short: "Send HTTP requests and see everything that happened on the wire.",
	Long: `knurl executes HTTP requests with fine-grained control over the
connection: IP and Host overrides, custom DNS servers, TLS trust, HTTP/2
with automatic HTTP/1.1 fallback, redirects and cookies. Every phase of a
request is recorded as a telemetry event that can be printed or stored.`,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verboseFlag {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	},
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	http.Version = v

	err := rootCmd.Execute()
	var exitErr *exitError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.reported) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", getEnvString("KNURL_CONFIG", ""), "Path to config file (env: KNURL_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", getEnvString("KNURL_OUTPUT", "console"), "Output format: console, json (env: KNURL_OUTPUT)")
	rootCmd.PersistentFlags().StringVar(&logDBFlag, "log-db", getEnvString("KNURL_LOG_DB", ""), "SQLite database receiving telemetry events (env: KNURL_LOG_DB)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", getEnvBool("KNURL_NO_COLOR", false), "Disable colored output (env: KNURL_NO_COLOR)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("KNURL_VERBOSE", false), "Print every telemetry event (env: KNURL_VERBOSE)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
}
