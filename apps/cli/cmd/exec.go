package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/knurl/packages/capture"
	"github.com/abdul-hamid-achik/knurl/packages/descriptor"
	"github.com/abdul-hamid-achik/knurl/packages/http"
	"github.com/abdul-hamid-achik/knurl/packages/output"
)

var execCmd = &cobra.Command{
	Use:   "exec [METHOD] <url>",
	Short: "Send a single HTTP request",
	Long: `Send a single HTTP request and print the response.

Examples:
  knurl exec https://api.example.com/health
  knurl exec POST https://api.example.com/users -H "Content-Type: application/json" -d '{"name":"ada"}'
  knurl exec https://api.example.com --resolve-ip 10.0.0.7 --host-override api.internal
  knurl exec PUT https://api.example.com/upload -F title=report -F doc=@report.pdf
  knurl exec https://api.example.com/token -o json --extract token=body.access_token
  knurl exec -f requests.yaml --request create-user -v`,
	Args: cobra.MaximumNArgs(2),
	RunE: execCommand,
}

var (
	headersFlag        []string
	dataFlag           string
	dataFileFlag       string
	formFlag           []string
	timeoutFlag        string
	httpVersionFlag    string
	maxRedirectsFlag   int
	followFlag         bool
	insecureFlag       bool
	cacertFlag         string
	resolveIPFlag      string
	hostOverrideFlag   string
	dnsServerFlag      string
	userAgentFlag      string
	maxLogBytesFlag    int
	redactFlag         bool
	noBodyLogFlag      bool
	spoolThresholdFlag int64
	extractFlag        []string
	failFlag           bool
	idFlag             string
	fileFlag           string
	requestFlag        string
)

func init() {
	// Request flags
	execCmd.Flags().StringArrayVarP(&headersFlag, "header", "H", nil, "Request header \"Name: value\" (repeatable)")
	execCmd.Flags().StringVarP(&dataFlag, "data", "d", "", "Request body")
	execCmd.Flags().StringVar(&dataFileFlag, "data-file", "", "Read the request body from a file")
	execCmd.Flags().StringArrayVarP(&formFlag, "form", "F", nil, "Multipart field name=value or name=@path[;type=...][;filename=...] (repeatable)")
	execCmd.Flags().StringVar(&idFlag, "id", "", "Request id used in telemetry and for cancellation (default: generated)")
	execCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Read the request from a descriptor file")
	execCmd.Flags().StringVar(&requestFlag, "request", "", "Descriptor entry to send, by id or 1-based position")

	// Connection flags
	execCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("KNURL_TIMEOUT", ""), "Per-attempt timeout (e.g., 30s, 1m) (env: KNURL_TIMEOUT)")
	execCmd.Flags().StringVar(&httpVersionFlag, "http-version", getEnvString("KNURL_HTTP_VERSION", "auto"), "HTTP version: auto, http1, http2 (env: KNURL_HTTP_VERSION)")
	execCmd.Flags().IntVar(&maxRedirectsFlag, "max-redirects", getEnvInt("KNURL_MAX_REDIRECTS", 0), "Redirects to follow, 0 disables (env: KNURL_MAX_REDIRECTS)")
	execCmd.Flags().BoolVarP(&followFlag, "location", "L", getEnvBool("KNURL_FOLLOW", false), "Follow redirects up to the configured maximum (env: KNURL_FOLLOW)")
	execCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("KNURL_INSECURE", false), "Disable TLS certificate validation (env: KNURL_INSECURE)")
	execCmd.Flags().StringVar(&cacertFlag, "cacert", getEnvString("KNURL_CACERT", ""), "PEM bundle of extra trusted CAs (env: KNURL_CACERT)")
	execCmd.Flags().StringVar(&resolveIPFlag, "resolve-ip", "", "Connect to this IP instead of resolving the URL host")
	execCmd.Flags().StringVar(&hostOverrideFlag, "host-override", "", "Host header and TLS server name to present")
	execCmd.Flags().StringVar(&dnsServerFlag, "dns-server", getEnvString("KNURL_DNS_SERVER", ""), "DNS server used to resolve the URL host (env: KNURL_DNS_SERVER)")
	execCmd.Flags().StringVar(&userAgentFlag, "user-agent", getEnvString("KNURL_USER_AGENT", ""), "User-Agent header (env: KNURL_USER_AGENT)")
	execCmd.Flags().Int64Var(&spoolThresholdFlag, "spool-threshold", int64(getEnvInt("KNURL_SPOOL_THRESHOLD", 0)), "Response size in bytes above which the body is written to a temp file (env: KNURL_SPOOL_THRESHOLD)")

	// Logging flags
	execCmd.Flags().IntVar(&maxLogBytesFlag, "max-log-bytes", getEnvInt("KNURL_MAX_LOG_BYTES", 0), "Body preview size in telemetry (env: KNURL_MAX_LOG_BYTES)")
	execCmd.Flags().BoolVar(&redactFlag, "redact", getEnvBool("KNURL_REDACT", false), "Redact credential headers in telemetry (env: KNURL_REDACT)")
	execCmd.Flags().BoolVar(&noBodyLogFlag, "no-body-log", getEnvBool("KNURL_NO_BODY_LOG", false), "Leave bodies out of telemetry (env: KNURL_NO_BODY_LOG)")

	// Output flags
	execCmd.Flags().StringArrayVar(&extractFlag, "extract", nil, "Extract a value: [name=]status|duration|size|header.X|cookie.x|body[.path] (repeatable)")
	execCmd.Flags().BoolVar(&failFlag, "fail", getEnvBool("KNURL_FAIL", false), "Exit with status 1 when the response status is 400 or above (env: KNURL_FAIL)")
}

func execCommand(cmd *cobra.Command, args []string) error {
	st, err := resolveSettings(cmd)
	if err != nil {
		return err
	}

	req, err := buildExecRequest(cmd, args)
	if err != nil {
		return err
	}
	if err := applyConfig(req, st.cfg); err != nil {
		return err
	}
	if err := applyExecFlags(cmd, req, st); err != nil {
		return err
	}

	captures := make([]*capture.Capture, 0, len(extractFlag))
	for _, spec := range extractFlag {
		c, err := capture.Parse(spec)
		if err != nil {
			return usageError(err)
		}
		captures = append(captures, c)
	}
	cmd.SilenceUsage = true

	sink, closeSink, err := telemetrySink(st, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeSink()

	engine := newEngine(st.cfg)

	done := make(chan struct{})
	defer close(done)
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)
	go func() {
		select {
		case <-interrupts:
			engine.Cancel(req.ID)
		case <-done:
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	resp, execErr := engine.Execute(ctx, req, sink)

	var extracted map[string]any
	if execErr == nil && len(captures) > 0 {
		extracted, execErr = capture.ExtractAll(resp, captures)
	}

	if st.json() {
		f := output.NewJSONFormatter(output.JSONWithWriter(cmd.OutOrStdout()))
		if execErr != nil {
			if err := f.FormatError(execErr); err != nil {
				return err
			}
			return reported(execErr)
		}
		if err := f.FormatResponse(resp, extracted); err != nil {
			return err
		}
	} else {
		if execErr != nil {
			output.NewConsoleFormatter(
				output.WithWriter(cmd.ErrOrStderr()),
				output.WithVerbose(st.verbose),
				output.WithNoColor(st.noColor),
			).FormatError(execErr)
			return reported(execErr)
		}
		output.NewConsoleFormatter(
			output.WithWriter(cmd.OutOrStdout()),
			output.WithVerbose(st.verbose),
			output.WithNoColor(st.noColor),
		).FormatResponse(resp, extracted)
	}

	if failFlag && resp.StatusCode >= 400 {
		return &exitError{code: ExitRequestFailed, err: fmt.Errorf("HTTP %d", resp.StatusCode), reported: true}
	}
	return nil
}

// buildExecRequest creates the request from a descriptor entry or from the
// positional METHOD and URL.
func buildExecRequest(cmd *cobra.Command, args []string) (*http.Request, error) {
	var req *http.Request
	if fileFlag != "" {
		if len(args) > 0 {
			return nil, usageError(fmt.Errorf("--file cannot be combined with a URL argument"))
		}
		reqs, err := descriptor.Load(fileFlag)
		if err != nil {
			return nil, err
		}
		req, err = selectRequest(reqs, requestFlag)
		if err != nil {
			return nil, err
		}
	} else {
		switch len(args) {
		case 0:
			return nil, usageError(fmt.Errorf("a URL or --file is required"))
		case 1:
			method := "GET"
			if cmd.Flags().Changed("data") || dataFileFlag != "" || len(formFlag) > 0 {
				method = "POST"
			}
			req = http.NewRequest(method, args[0])
		default:
			req = http.NewRequest(strings.ToUpper(args[0]), args[1])
		}
	}

	if idFlag != "" {
		req.ID = idFlag
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return req, nil
}

func selectRequest(reqs []*http.Request, selector string) (*http.Request, error) {
	if selector == "" {
		if len(reqs) == 1 {
			return reqs[0], nil
		}
		return nil, usageError(fmt.Errorf("descriptor has %d requests; choose one with --request", len(reqs)))
	}
	for _, r := range reqs {
		if r.ID == selector {
			return r, nil
		}
	}
	if n, err := strconv.Atoi(selector); err == nil && n >= 1 && n <= len(reqs) {
		return reqs[n-1], nil
	}
	return nil, usageError(fmt.Errorf("no request %q in %s", selector, fileFlag))
}

// applyExecFlags lets flags given on the command line or through KNURL_*
// variables override the descriptor and the config file.
func applyExecFlags(cmd *cobra.Command, req *http.Request, st *settings) error {
	for _, h := range headersFlag {
		name, value, err := parseHeader(h)
		if err != nil {
			return usageError(err)
		}
		req.AddHeader(name, value)
	}

	switch {
	case len(formFlag) > 0:
		parts := make([]http.MultipartPart, 0, len(formFlag))
		for _, f := range formFlag {
			part, err := parseFormField(f)
			if err != nil {
				return usageError(err)
			}
			parts = append(parts, part)
		}
		req.Multipart = parts
	case dataFileFlag != "":
		req.BodyFile = dataFileFlag
	case cmd.Flags().Changed("data"):
		req.SetBody([]byte(dataFlag))
	}

	if explicit(cmd, "timeout", "KNURL_TIMEOUT") {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil || d <= 0 {
			return usageError(fmt.Errorf("invalid timeout value %q (use format like 30s, 1m, 500ms)", timeoutFlag))
		}
		req.Timeout = d
	}
	if explicit(cmd, "http-version", "KNURL_HTTP_VERSION") {
		p, err := http.ParseProtocol(httpVersionFlag)
		if err != nil {
			return usageError(err)
		}
		req.Protocol = p
	}

	if explicit(cmd, "location", "KNURL_FOLLOW") {
		if followFlag {
			if req.MaxRedirects == 0 {
				req.MaxRedirects = st.cfg.MaxRedirects
			}
		} else {
			req.MaxRedirects = 0
		}
	}
	if explicit(cmd, "max-redirects", "KNURL_MAX_REDIRECTS") {
		if maxRedirectsFlag < 0 {
			return usageError(fmt.Errorf("--max-redirects must not be negative"))
		}
		req.MaxRedirects = maxRedirectsFlag
	}

	if explicit(cmd, "insecure", "KNURL_INSECURE") {
		req.Insecure = insecureFlag
	}
	if explicit(cmd, "cacert", "KNURL_CACERT") {
		req.CAPath = cacertFlag
	}
	if resolveIPFlag != "" {
		req.IPOverride = resolveIPFlag
	}
	if hostOverrideFlag != "" {
		req.HostOverride = hostOverrideFlag
	}
	if explicit(cmd, "dns-server", "KNURL_DNS_SERVER") {
		req.DNSServer = dnsServerFlag
	}
	if explicit(cmd, "user-agent", "KNURL_USER_AGENT") {
		req.UserAgent = userAgentFlag
	}
	if explicit(cmd, "spool-threshold", "KNURL_SPOOL_THRESHOLD") {
		req.SpoolThreshold = spoolThresholdFlag
	}

	if explicit(cmd, "max-log-bytes", "KNURL_MAX_LOG_BYTES") {
		req.Logging.MaxBytes = maxLogBytesFlag
	}
	if explicit(cmd, "redact", "KNURL_REDACT") {
		req.Logging.Redact = redactFlag
	}
	if explicit(cmd, "no-body-log", "KNURL_NO_BODY_LOG") {
		bodies := !noBodyLogFlag
		req.Logging.Bodies = &bodies
	}
	return nil
}

// parseHeader splits a curl-style "Name: value" header.
func parseHeader(s string) (string, string, error) {
	name, value, ok := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("invalid header %q (use \"Name: value\")", s)
	}
	return name, strings.TrimSpace(value), nil
}

// parseFormField parses name=value or name=@path with optional ;type= and
// ;filename= attributes on file fields.
func parseFormField(s string) (http.MultipartPart, error) {
	name, value, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return http.MultipartPart{}, fmt.Errorf("invalid form field %q (use name=value or name=@path)", s)
	}
	if !strings.HasPrefix(value, "@") {
		return http.TextPart(name, value), nil
	}

	attrs := strings.Split(value[1:], ";")
	part := http.FilePart(name, attrs[0])
	if part.Path == "" {
		return http.MultipartPart{}, fmt.Errorf("form field %q has no file path", name)
	}
	for _, attr := range attrs[1:] {
		key, val, _ := strings.Cut(attr, "=")
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "type":
			part.ContentType = val
		case "filename":
			part.Filename = val
		default:
			return http.MultipartPart{}, fmt.Errorf("unknown form attribute %q in %q", key, s)
		}
	}
	return part, nil
}
