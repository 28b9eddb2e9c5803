package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/http"
	"github.com/abdul-hamid-achik/knurl/packages/logstore"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type palette struct {
	green, red, yellow, cyan, bold, dim *color.Color
}

func newPalette(noColor bool) palette {
	p := palette{
		green:  color.New(color.FgGreen),
		red:    color.New(color.FgRed),
		yellow: color.New(color.FgYellow),
		cyan:   color.New(color.FgCyan),
		bold:   color.New(color.Bold),
		dim:    color.New(color.Faint),
	}
	if noColor {
		for _, c := range []*color.Color{p.green, p.red, p.yellow, p.cyan, p.bold, p.dim} {
			c.DisableColor()
		}
	}
	return p
}

// ConsoleFormatter prints responses and errors for people.
type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
	colors  palette
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.colors = newPalette(f.noColor)
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) statusColor(code int) *color.Color {
	switch {
	case code >= 500:
		return f.colors.red
	case code >= 400:
		return f.colors.yellow
	case code >= 300:
		return f.colors.cyan
	default:
		return f.colors.green
	}
}

// FormatResponse prints the status line, the headers when verbose, the
// body and any extracted values.
func (f *ConsoleFormatter) FormatResponse(resp *http.Response, extracted map[string]any) {
	c := f.colors
	f.statusColor(resp.StatusCode).Fprintf(f.writer, "%s %d %s", resp.Proto, resp.StatusCode, resp.Status)
	c.dim.Fprintf(f.writer, " (%dms, %s)\n", resp.DurationMs(), formatSize(resp.Size))

	if f.verbose {
		for _, h := range resp.Headers {
			c.cyan.Fprintf(f.writer, "%s", h.Name)
			fmt.Fprintf(f.writer, ": %s\n", h.Value)
		}
		for _, ck := range resp.Cookies {
			c.dim.Fprintf(f.writer, "cookie %s=%s\n", ck.Name, formatValue(ck.Value, 60))
		}
		fmt.Fprintln(f.writer)
	}

	switch {
	case resp.IsSpooled():
		c.dim.Fprintf(f.writer, "[body saved to %s (%s)]\n", resp.FilePath, formatSize(resp.Size))
	case len(resp.Body) == 0:
	case utf8.Valid(resp.Body):
		fmt.Fprint(f.writer, string(resp.Body))
		if !strings.HasSuffix(string(resp.Body), "\n") {
			fmt.Fprintln(f.writer)
		}
	default:
		c.dim.Fprintf(f.writer, "[binary body, %s]\n", formatSize(resp.Size))
	}

	if len(extracted) > 0 {
		fmt.Fprintln(f.writer)
		c.bold.Fprintln(f.writer, "Extracted:")
		names := make([]string, 0, len(extracted))
		for name := range extracted {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(f.writer, "  %s = %s\n", name, formatValue(extracted[name], 200))
		}
	}
}

// FormatError prints err with its kind and context.
func (f *ConsoleFormatter) FormatError(err error) {
	f.colors.red.Fprint(f.writer, "Error: ")
	fmt.Fprintln(f.writer, err)

	var appErr *apperror.Error
	if f.verbose && errors.As(err, &appErr) && len(appErr.Context) > 0 {
		f.colors.dim.Fprintf(f.writer, "  %s\n", appErr.ContextString())
	}
}

// FormatEvents prints stored events, one per line.
func (f *ConsoleFormatter) FormatEvents(requestID string, events []telemetry.Event) {
	c := f.colors
	c.bold.Fprintf(f.writer, "Request %s", requestID)
	c.dim.Fprintf(f.writer, " (%d events)\n", len(events))
	for _, e := range events {
		c.dim.Fprintf(f.writer, "%7s ", fmt.Sprintf("+%dms", e.ElapsedMs))
		levelColor(c, e.Level).Fprintf(f.writer, "%-7s ", e.Level)
		c.cyan.Fprintf(f.writer, "%s ", eventKey(e))
		fmt.Fprintln(f.writer, indentContinuation(e.Message, 8))
	}
}

// FormatRequests prints a listing of stored requests.
func (f *ConsoleFormatter) FormatRequests(summaries []logstore.RequestSummary) {
	for _, s := range summaries {
		fmt.Fprintf(f.writer, "%s  ", s.RequestID)
		f.colors.dim.Fprintf(f.writer, "%s  %d events\n", s.Last.Local().Format("2006-01-02 15:04:05"), s.Events)
	}
}

// ConsoleSink renders the telemetry stream curl-style: request lines with
// '>', response lines with '<', everything else with '*'. Without verbose
// only warnings and errors are shown.
type ConsoleSink struct {
	mu      sync.Mutex
	writer  io.Writer
	verbose bool
	colors  palette
}

func NewConsoleSink(w io.Writer, verbose, noColor bool) *ConsoleSink {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleSink{writer: w, verbose: verbose, colors: newPalette(noColor)}
}

func (s *ConsoleSink) Emit(e telemetry.Event) {
	if !s.verbose && e.Level != telemetry.LevelWarning && e.Level != telemetry.LevelError {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.colors
	switch {
	case e.Level == telemetry.LevelError:
		c.red.Fprintf(s.writer, "* %s\n", indentContinuation(e.Message, 2))
	case e.Level == telemetry.LevelWarning:
		c.yellow.Fprintf(s.writer, "* %s\n", indentContinuation(e.Message, 2))
	case strings.HasPrefix(e.Message, ">"):
		c.cyan.Fprintln(s.writer, e.Message)
	case strings.HasPrefix(e.Message, "<"):
		c.green.Fprintln(s.writer, e.Message)
	default:
		for _, line := range strings.Split(e.Message, "\n") {
			c.dim.Fprintf(s.writer, "* %s\n", line)
		}
	}
}

func levelColor(c palette, level telemetry.Level) *color.Color {
	switch level {
	case telemetry.LevelError:
		return c.red
	case telemetry.LevelWarning:
		return c.yellow
	case telemetry.LevelDebug:
		return c.dim
	default:
		return c.green
	}
}

func eventKey(e telemetry.Event) string {
	if e.Phase == "" {
		return e.Category
	}
	return e.Category + "/" + e.Phase
}

func indentContinuation(msg string, n int) string {
	return strings.ReplaceAll(msg, "\n", "\n"+strings.Repeat(" ", n))
}

func formatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
