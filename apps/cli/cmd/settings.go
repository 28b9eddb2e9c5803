package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/knurl/packages/core/config"
	"github.com/abdul-hamid-achik/knurl/packages/http"
	"github.com/abdul-hamid-achik/knurl/packages/logstore"
	"github.com/abdul-hamid-achik/knurl/packages/output"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

// settings are the persistent flags resolved against the config file.
type settings struct {
	cfg     *config.Config
	output  string
	logDB   string
	noColor bool
	verbose bool
}

func resolveSettings(cmd *cobra.Command) (*settings, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, configError(err)
	}

	s := &settings{
		cfg:     cfg,
		output:  cfg.Output,
		logDB:   cfg.LogDB,
		noColor: cfg.GetNoColor(),
		verbose: verboseFlag,
	}
	if explicit(cmd, "output", "KNURL_OUTPUT") {
		s.output = outputFlag
	}
	if explicit(cmd, "log-db", "KNURL_LOG_DB") {
		s.logDB = logDBFlag
	}
	if explicit(cmd, "no-color", "KNURL_NO_COLOR") {
		s.noColor = noColorFlag
	}

	s.output = strings.ToLower(s.output)
	switch s.output {
	case "", "console":
		s.output = "console"
	case "json":
	default:
		return nil, usageError(fmt.Errorf("unknown output format %q (use console or json)", s.output))
	}
	return s, nil
}

func (s *settings) json() bool { return s.output == "json" }

func newEngine(cfg *config.Config) *http.Engine {
	return http.NewEngine(
		http.WithUserAgent(cfg.UserAgent),
		http.WithSpoolDir(cfg.SpoolDir),
	)
}

// applyConfig fills the fields a request leaves unset from the config file.
func applyConfig(req *http.Request, cfg *config.Config) error {
	if req.Timeout <= 0 {
		req.Timeout = cfg.TimeoutDuration()
	}
	if req.MaxRedirects == 0 && cfg.GetFollowRedirects() {
		req.MaxRedirects = cfg.MaxRedirects
	}
	if req.Protocol == "" || req.Protocol == http.ProtocolAuto {
		p, err := http.ParseProtocol(cfg.HTTPVersion)
		if err != nil {
			return configError(err)
		}
		req.Protocol = p
	}
	if req.DNSServer == "" {
		req.DNSServer = cfg.DNSServer
	}
	if req.CAPath == "" {
		req.CAPath = cfg.CAPath
	}
	if req.SpoolThreshold <= 0 {
		req.SpoolThreshold = cfg.SpoolThreshold
	}
	req.Insecure = req.Insecure || cfg.GetInsecure()

	if req.Logging.MaxBytes <= 0 {
		req.Logging.MaxBytes = cfg.MaxLogBytes
	}
	req.Logging.Redact = req.Logging.Redact || cfg.GetRedact()
	if req.Logging.Bodies == nil {
		bodies := cfg.GetLogBodies()
		req.Logging.Bodies = &bodies
	}

	for _, name := range slices.Sorted(maps.Keys(cfg.Headers)) {
		if _, ok := req.HeaderValue(name); !ok {
			req.AddHeader(name, cfg.Headers[name])
		}
	}
	return nil
}

// telemetrySink assembles where request events go: the terminal, and the
// log store when one is configured. The returned func flushes and closes.
func telemetrySink(s *settings, stderr io.Writer) (telemetry.Sink, func(), error) {
	var sinks []telemetry.Sink
	if s.json() {
		if s.verbose {
			logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
			sinks = append(sinks, telemetry.NewSlogSink(logger))
		}
	} else {
		sinks = append(sinks, output.NewConsoleSink(stderr, s.verbose, s.noColor))
	}

	if s.logDB == "" {
		return telemetry.Multi(sinks...), func() {}, nil
	}

	store, err := logstore.Open(s.logDB)
	if err != nil {
		return nil, nil, configError(err)
	}
	async := telemetry.NewAsyncSink(store, 0)
	sinks = append(sinks, async)

	closeFn := func() {
		async.Close()
		if n := async.Dropped(); n > 0 {
			slog.Warn("telemetry events dropped before reaching the log store", "dropped", n, "db", s.logDB)
		}
		if n := store.Failures(); n > 0 {
			slog.Warn("telemetry events could not be stored", "failed", n, "db", s.logDB)
		}
		if err := store.Close(); err != nil {
			slog.Warn("closing log store", "db", s.logDB, "error", err)
		}
	}
	return telemetry.Multi(sinks...), closeFn, nil
}
