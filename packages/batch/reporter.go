package batch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Reporter prints batch progress and summaries.
type Reporter struct {
	writer  io.Writer
	noColor bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	bold   *color.Color
	dim    *color.Color
}

type ReporterOption func(*Reporter)

// WithWriter sets the output writer
func WithWriter(w io.Writer) ReporterOption {
	return func(r *Reporter) {
		r.writer = w
	}
}

// WithNoColor disables colored output
func WithNoColor(noColor bool) ReporterOption {
	return func(r *Reporter) {
		r.noColor = noColor
	}
}

func NewReporter(opts ...ReporterOption) *Reporter {
	r := &Reporter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.green = color.New(color.FgGreen)
	r.red = color.New(color.FgRed)
	r.yellow = color.New(color.FgYellow)
	r.bold = color.New(color.Bold)
	r.dim = color.New(color.Faint)
	if r.noColor {
		for _, c := range []*color.Color{r.green, r.red, r.yellow, r.bold, r.dim} {
			c.DisableColor()
		}
	}
	return r
}

// Header prints the run header
func (r *Reporter) Header(filename string, count, concurrency int, perSecond float64) {
	r.bold.Fprintf(r.writer, "knurl batch")
	fmt.Fprintf(r.writer, " %s\n", filename)
	pacing := "unlimited"
	if perSecond > 0 {
		pacing = fmt.Sprintf("%g req/s", perSecond)
	}
	r.dim.Fprintf(r.writer, "%d requests, concurrency %d, rate %s\n\n", count, concurrency, pacing)
}

// Result prints one line for a finished request
func (r *Reporter) Result(res Result) {
	switch {
	case res.Skipped:
		r.yellow.Fprint(r.writer, "  - ")
		fmt.Fprintf(r.writer, "%s skipped\n", res.RequestID)
	case res.Err != nil:
		r.red.Fprint(r.writer, "  ✗ ")
		fmt.Fprintf(r.writer, "%s %s", res.RequestID, res.Err)
		r.dim.Fprintf(r.writer, " (%s)\n", formatLatency(res.Duration))
	default:
		status := r.green
		if res.Response.StatusCode >= 400 {
			status = r.yellow
		}
		status.Fprint(r.writer, "  ✓ ")
		fmt.Fprintf(r.writer, "%s ", res.RequestID)
		status.Fprintf(r.writer, "%d", res.Response.StatusCode)
		r.dim.Fprintf(r.writer, " %s (%s)\n", formatBytes(res.Response.Size), formatLatency(res.Duration))
	}
}

// Summary prints the final summary
func (r *Reporter) Summary(summary *Summary) {
	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "BATCH SUMMARY")
	fmt.Fprintln(r.writer, strings.Repeat("─", 40))

	fmt.Fprintf(r.writer, "Duration:   %s\n", formatDuration(summary.Duration))
	fmt.Fprintf(r.writer, "Total:      ")
	r.bold.Fprintf(r.writer, "%d", summary.Total)
	fmt.Fprintln(r.writer, " requests")

	fmt.Fprintf(r.writer, "Succeeded:  ")
	r.green.Fprintf(r.writer, "%d\n", summary.Succeeded)

	fmt.Fprintf(r.writer, "Failed:     ")
	if summary.Failed > 0 {
		r.red.Fprintf(r.writer, "%d\n", summary.Failed)
	} else {
		fmt.Fprintf(r.writer, "%d\n", summary.Failed)
	}

	for _, kind := range failureKinds(summary.Outcomes) {
		fmt.Fprintf(r.writer, "  %-12s%d\n", kind+":", summary.Outcomes[kind])
	}

	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "LATENCY (ms)")
	fmt.Fprintf(r.writer, "  p50: %-6s | p95: %-6s | p99: %-6s | max: %s\n",
		formatLatencyMs(summary.P50),
		formatLatencyMs(summary.P95),
		formatLatencyMs(summary.P99),
		formatLatencyMs(summary.Max))
	fmt.Fprintln(r.writer)
}

// JSONSummary outputs the results and summary as JSON
func (r *Reporter) JSONSummary(results []Result, summary *Summary) error {
	items := make([]map[string]any, len(results))
	for i, res := range results {
		item := map[string]any{
			"index":      res.Index,
			"requestId":  res.RequestID,
			"outcome":    Outcome(res.Err),
			"durationMs": res.Duration.Milliseconds(),
		}
		if res.Skipped {
			item["outcome"] = OutcomeSkipped
		}
		if res.Err != nil {
			item["error"] = res.Err.Error()
		}
		if res.Response != nil {
			item["status"] = res.Response.StatusCode
			item["size"] = res.Response.Size
			if res.Response.FilePath != "" {
				item["filePath"] = res.Response.FilePath
			}
		}
		items[i] = item
	}

	output := map[string]any{
		"duration": summary.Duration.String(),
		"requests": map[string]any{
			"total":     summary.Total,
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
			"outcomes":  summary.Outcomes,
		},
		"latency": map[string]any{
			"p50":  summary.P50.Milliseconds(),
			"p95":  summary.P95.Milliseconds(),
			"p99":  summary.P99.Milliseconds(),
			"max":  summary.Max.Milliseconds(),
			"mean": summary.Mean.Milliseconds(),
		},
		"results": items,
	}

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func failureKinds(outcomes map[string]int64) []string {
	var kinds []string
	for k := range outcomes {
		if k != OutcomeSuccess {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	return kinds
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm %02ds", minutes, seconds)
}

// formatLatency formats latency for display
func formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dμs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// formatLatencyMs formats latency in milliseconds
func formatLatencyMs(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000
	if ms < 1 {
		return fmt.Sprintf("%.2f", ms)
	}
	if ms < 10 {
		return fmt.Sprintf("%.1f", ms)
	}
	return fmt.Sprintf("%.0f", ms)
}

func formatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%dB", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1fMB", float64(n)/(1024*1024))
	}
}
