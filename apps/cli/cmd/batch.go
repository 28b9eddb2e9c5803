package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/knurl/packages/batch"
	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/descriptor"
	"github.com/abdul-hamid-achik/knurl/packages/http"
	"github.com/abdul-hamid-achik/knurl/packages/output"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Send every request in a descriptor file",
	Long: `Send every request in a YAML or JSON descriptor file concurrently and
print per-request results with a latency summary.

Examples:
  knurl batch requests.yaml
  knurl batch requests.yaml --concurrency 20 --rate 50
  knurl batch requests.yaml --log-db knurl.db --junit report.xml
  knurl batch requests.yaml --watch`,
	Args: cobra.ExactArgs(1),
	RunE: batchCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	concurrencyFlag int
	rateFlag        float64
	watchFlag       bool
	junitFlag       string
	batchFailFlag   bool
)

func init() {
	batchCmd.Flags().IntVar(&concurrencyFlag, "concurrency", getEnvInt("KNURL_CONCURRENCY", batch.DefaultConcurrency), "Requests in flight at once (env: KNURL_CONCURRENCY)")
	batchCmd.Flags().Float64Var(&rateFlag, "rate", getEnvFloat("KNURL_RATE", 0), "Requests started per second, 0 for unlimited (env: KNURL_RATE)")
	batchCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Re-run whenever the descriptor file changes")
	batchCmd.Flags().StringVar(&junitFlag, "junit", getEnvString("KNURL_JUNIT", ""), "Also write a JUnit XML report to this path (env: KNURL_JUNIT)")
	batchCmd.Flags().BoolVar(&batchFailFlag, "fail", getEnvBool("KNURL_FAIL", false), "Count responses with status 400 or above as failures (env: KNURL_FAIL)")
}

type batchJob struct {
	cmd         *cobra.Command
	st          *settings
	file        string
	engine      *http.Engine
	concurrency int
	rate        float64
}

func batchCommand(cmd *cobra.Command, args []string) error {
	st, err := resolveSettings(cmd)
	if err != nil {
		return err
	}

	job := &batchJob{
		cmd:         cmd,
		st:          st,
		file:        args[0],
		engine:      newEngine(st.cfg),
		concurrency: st.cfg.Concurrency,
		rate:        st.cfg.Rate,
	}
	if explicit(cmd, "concurrency", "KNURL_CONCURRENCY") {
		job.concurrency = concurrencyFlag
	}
	if explicit(cmd, "rate", "KNURL_RATE") {
		job.rate = rateFlag
	}
	if job.concurrency < 1 {
		return usageError(fmt.Errorf("--concurrency must be at least 1"))
	}
	if job.rate < 0 {
		return usageError(fmt.Errorf("--rate must not be negative"))
	}
	cmd.SilenceUsage = true

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !watchFlag {
		return job.run(ctx)
	}
	return job.watch(ctx)
}

// run loads the descriptor and sends every request once.
func (j *batchJob) run(ctx context.Context) error {
	reqs, err := descriptor.Load(j.file)
	if err != nil {
		j.reportError(err)
		return reported(err)
	}
	for _, req := range reqs {
		if err := applyConfig(req, j.st.cfg); err != nil {
			return err
		}
	}

	sink, closeSink, err := telemetrySink(j.st, j.cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeSink()

	reporter := batch.NewReporter(batch.WithWriter(j.cmd.OutOrStdout()), batch.WithNoColor(j.st.noColor))
	opts := []batch.RunnerOption{
		batch.WithConcurrency(j.concurrency),
		batch.WithRate(j.rate),
		batch.WithSink(sink),
	}
	if !j.st.json() {
		reporter.Header(j.file, len(reqs), j.concurrency, j.rate)
		var mu sync.Mutex
		opts = append(opts, batch.WithResultHandler(func(res batch.Result) {
			mu.Lock()
			defer mu.Unlock()
			reporter.Result(res)
		}))
	}

	results, summary := batch.NewRunner(j.engine, opts...).Run(ctx, reqs)

	if j.st.json() {
		if err := reporter.JSONSummary(results, summary); err != nil {
			return err
		}
	} else {
		reporter.Summary(summary)
	}

	if junitFlag != "" {
		if err := writeJUnit(junitFlag, j.file, results, summary); err != nil {
			slog.Warn("writing JUnit report", "path", junitFlag, "error", err)
		}
	}

	return batchOutcome(ctx, results, batchFailFlag)
}

// batchOutcome maps a finished run to an exit status.
func batchOutcome(ctx context.Context, results []batch.Result, failOnStatus bool) error {
	if ctx.Err() != nil {
		return &exitError{code: ExitCancelled, err: apperror.New(apperror.UserCancelled, "Batch cancelled"), reported: true}
	}
	failed := 0
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
		case failOnStatus && res.Response != nil && res.Response.StatusCode >= 400:
			failed++
		}
	}
	if failed > 0 {
		return &exitError{code: ExitRequestFailed, err: fmt.Errorf("%d of %d requests failed", failed, len(results)), reported: true}
	}
	return nil
}

func writeJUnit(path, file string, results []batch.Result, summary *batch.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create JUnit report: %w", err)
	}
	defer f.Close()
	return output.NewJUnitFormatter(output.JUnitWithWriter(f)).FormatBatch(file, results, summary)
}

func (j *batchJob) reportError(err error) {
	if j.st.json() {
		_ = output.NewJSONFormatter(output.JSONWithWriter(j.cmd.OutOrStdout())).FormatError(err)
		return
	}
	output.NewConsoleFormatter(
		output.WithWriter(j.cmd.ErrOrStderr()),
		output.WithVerbose(j.st.verbose),
		output.WithNoColor(j.st.noColor),
	).FormatError(err)
}

// watch runs the batch, then again after every change to the descriptor
// file until ctx is done.
func (j *batchJob) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(j.file)
	if err != nil {
		return err
	}
	// Editors often replace files, so watch the directory.
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	rerun := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		if err := j.run(ctx); err != nil && exitCode(err) == ExitConfigError {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(j.cmd.OutOrStdout(), "\nWatching %s for changes... (press Ctrl+C to stop)\n", j.file)

	wait:
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-rerun:
				fmt.Fprintf(j.cmd.OutOrStdout(), "\nFile changed: %s\nRe-running...\n\n", j.file)
				break wait
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if abs, err := filepath.Abs(event.Name); err != nil || abs != target {
					continue
				}
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
					select {
					case rerun <- struct{}{}:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				slog.Warn("watcher error", "error", err)
			}
		}
	}
}
