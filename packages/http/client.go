package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/knurl/packages/cancel"
	"github.com/abdul-hamid-achik/knurl/packages/connector"
	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

const (
	// DefaultTimeout is the per-attempt deadline when a request sets none.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRedirects is what callers typically pass when following
	// redirects; a request's own MaxRedirects of 0 disables following.
	DefaultMaxRedirects = 10
	// EngineName identifies this engine in telemetry and error context.
	EngineName = "net/http"
)

// Version is reported in the default User-Agent.
var Version = "dev"

// errAttemptTimeout marks an attempt that hit its deadline.
var errAttemptTimeout = errors.New("request attempt timed out")

// transport is what the engine sends requests through. *connector.Connector
// implements it.
type transport interface {
	RoundTrip(*http.Request) (*http.Response, error)
	Close()
}

// Engine executes requests. It is safe for concurrent use; every execution
// builds its own connections.
type Engine struct {
	registry       *cancel.Registry
	userAgent      string
	spoolDir       string
	connectTimeout time.Duration

	newTransport func(connector.Options, *telemetry.Logger) (transport, error)
}

type EngineOption func(*Engine)

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		registry:  cancel.NewRegistry(),
		userAgent: "knurl/" + Version,
		spoolDir:  os.TempDir(),
	}
	e.newTransport = func(o connector.Options, log *telemetry.Logger) (transport, error) {
		return connector.New(o, log)
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithRegistry shares a cancellation registry between engines.
func WithRegistry(r *cancel.Registry) EngineOption {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithUserAgent sets the User-Agent used when a request names none.
func WithUserAgent(ua string) EngineOption {
	return func(e *Engine) {
		if ua != "" {
			e.userAgent = ua
		}
	}
}

// WithSpoolDir sets where large response bodies are written.
func WithSpoolDir(dir string) EngineOption {
	return func(e *Engine) {
		if dir != "" {
			e.spoolDir = dir
		}
	}
}

func WithConnectTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.connectTimeout = d
	}
}

func (e *Engine) Registry() *cancel.Registry {
	return e.registry
}

// Cancel signals the in-flight execution registered under id. It reports
// whether one was found.
func (e *Engine) Cancel(id string) bool {
	return e.registry.Cancel(id)
}

type result struct {
	resp *Response
	err  error
}

// Execute runs req to completion, racing it against cancellation by id
// and against ctx. A response that is already complete wins over a
// concurrent cancellation. Events go to sink, which may be nil.
func (e *Engine) Execute(ctx context.Context, req *Request, sink telemetry.Sink) (*Response, error) {
	if req == nil {
		return nil, apperror.New(apperror.BadRequest, "Request is required")
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	log := telemetry.NewLogger(sink, id, req.Logging.policy())

	handle := e.registry.Register(id)
	defer e.registry.Remove(id, handle)

	workCtx, stop := context.WithCancel(ctx)
	defer stop()

	done := make(chan result, 1)
	go func() {
		resp, err := e.run(workCtx, req, log)
		done <- result{resp, err}
	}()

	var cause error
	select {
	case r := <-done:
		return r.resp, r.err
	case <-handle.Done():
	case <-ctx.Done():
		cause = ctx.Err()
	}

	select {
	case r := <-done:
		return r.resp, r.err
	default:
	}

	stop()
	go discardResult(done)

	if errors.Is(cause, context.DeadlineExceeded) {
		log.Error("http", "timeout", "Request deadline exceeded", nil)
		return nil, apperror.Wrap(apperror.Timeout, cause, "Request timed out").
			WithContext(map[string]string{"requestId": id})
	}
	log.Warn("flow", "cancelled", "Request cancelled", nil)
	return nil, apperror.New(apperror.UserCancelled, "Request cancelled").
		WithContext(map[string]string{"requestId": id})
}

// discardResult waits for an abandoned execution and removes any spool
// file nobody will receive.
func discardResult(done <-chan result) {
	r := <-done
	if r.resp != nil && r.resp.FilePath != "" {
		os.Remove(r.resp.FilePath)
	}
}

func (e *Engine) run(ctx context.Context, req *Request, log *telemetry.Logger) (*Response, error) {
	target, err := ValidateURL(req.URL)
	if err != nil {
		return nil, err
	}
	method, err := validateMethod(req.Method)
	if err != nil {
		return nil, err
	}
	header, err := buildHeaders(req, e.userAgent)
	if err != nil {
		return nil, err
	}
	body, err := buildBody(req, header)
	if err != nil {
		return nil, err
	}
	protocol := req.protocol()
	timeout := req.timeout()

	log.Info("engine", "init", "Using "+EngineName+" engine", telemetry.Details{"engine": EngineName})
	log.Info("connect", "policy", "Connection reuse disabled (no pooling)", telemetry.Details{"poolMaxIdlePerHost": 0})
	log.Info("flow", "request_start", fmt.Sprintf("Starting request %s %s", method, target), nil)
	log.Info("http", "request", fmt.Sprintf("%s %s", method, target), telemetry.Details{
		"method": method,
		"uri":    target.String(),
	})
	log.Debug("http", "request_line", fmt.Sprintf("> %s %s HTTP/1.1", method, target), nil)
	log.Headers(header, "request_header", ">")
	log.Body("request_body", "body", "> body:", body)

	allowHost := protocol == ProtocolHTTP1 || req.HostOverride != ""
	if protocol.AllowsHTTP2() {
		sanitizeForHTTP2(header, allowHost)
	}

	first := &hop{url: target, method: method, body: body, header: header}
	if v := header.Get("Host"); v != "" {
		if !validHost(v) {
			return nil, apperror.Newf(apperror.BadRequest, "Invalid host header %q", v)
		}
		first.host = v
		header.Del("Host")
		log.Info("dns", "host_header", "Resolved host header: "+v, telemetry.Details{"host": v, "injected": false})
	} else {
		hostValue := hostHeaderValue(req.HostOverride, target)
		injected := allowHost
		if injected {
			if !validHost(hostValue) {
				return nil, apperror.Newf(apperror.BadRequest, "Invalid host header %q", hostValue)
			}
			first.host = hostValue
		}
		log.Info("dns", "host_header", "Resolved host header: "+hostValue, telemetry.Details{"host": hostValue, "injected": injected})
	}

	log.Info("http", "about_to_send", fmt.Sprintf("Sending request %s %s", method, target), telemetry.Details{
		"method":          method,
		"uri":             target.String(),
		"httpVersionPref": string(protocol),
	})

	opts := connector.Options{
		URL:            target,
		IPOverride:     req.IPOverride,
		DNSServer:      req.DNSServer,
		Insecure:       req.Insecure,
		CAPath:         req.CAPath,
		Protocol:       protocol,
		ConnectTimeout: e.connectTimeout,
	}
	conn, err := e.newTransport(opts, log)
	if err != nil {
		return nil, err
	}
	defer func() { conn.Close() }()

	errContext := func(fallback bool) map[string]string {
		c := requestContext(req, method, target, timeout)
		if fallback {
			c["httpVersion"] = string(ProtocolHTTP1)
			c["fallback"] = "true"
		}
		return c
	}

	start := time.Now()
	cur := first
	remaining := req.MaxRedirects
	fellBack := false

	for {
		resp, err := e.send(ctx, conn, cur, timeout)
		if err != nil && !fellBack && protocol.AllowsHTTP2() && !errors.Is(err, errAttemptTimeout) && isHTTP2ProtocolError(err) {
			log.Warn("http2", "fallback", "HTTP/2 PROTOCOL_ERROR detected; retrying with HTTP/1.1", telemetry.Details{
				"error":  err.Error(),
				"method": cur.method,
				"uri":    cur.url.String(),
			})
			fbOpts := opts
			fbOpts.Protocol = ProtocolHTTP1
			fb, ferr := e.newTransport(fbOpts, log)
			if ferr != nil {
				return nil, ferr
			}
			conn.Close()
			conn = fb
			fellBack = true

			resp, err = e.send(ctx, conn, cur, timeout)
			if err != nil {
				return nil, e.sendError(err, log, timeout, errContext(true))
			}
			log.Info("http2", "fallback_ok", "Fallback to HTTP/1.1 succeeded", nil)
		} else if err != nil {
			return nil, e.sendError(err, log, timeout, errContext(fellBack))
		}
		log.Debug("http", "sent", "Request completely sent off", nil)

		next, err := nextHop(cur, resp, remaining, log)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		if next == nil {
			return e.captureResponse(resp, req, cur, log, start)
		}
		drain(resp.Body)
		cur = next
		remaining--
	}
}

// send performs one attempt under its own deadline. On success the
// attempt context stays alive until the response body is closed.
func (e *Engine) send(ctx context.Context, rt transport, h *hop, timeout time.Duration) (*http.Response, error) {
	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	httpReq, err := h.request(attemptCtx)
	if err != nil {
		cancelAttempt()
		return nil, err
	}

	ch := make(chan roundTrip, 1)
	go func() {
		resp, err := rt.RoundTrip(httpReq)
		ch <- roundTrip{resp, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			cancelAttempt()
			return nil, r.err
		}
		r.resp.Body = &cancelOnClose{ReadCloser: r.resp.Body, cancel: cancelAttempt}
		return r.resp, nil
	case <-timer.C:
		cancelAttempt()
		go closeLate(ch)
		return nil, errAttemptTimeout
	case <-ctx.Done():
		cancelAttempt()
		go closeLate(ch)
		return nil, ctx.Err()
	}
}

type roundTrip struct {
	resp *http.Response
	err  error
}

// closeLate releases a response that arrives after its attempt gave up.
func closeLate(ch <-chan roundTrip) {
	if r := <-ch; r.resp != nil {
		r.resp.Body.Close()
	}
}

// sendError converts a failed attempt into an engine error, logging it.
func (e *Engine) sendError(err error, log *telemetry.Logger, timeout time.Duration, ctx map[string]string) error {
	secs := strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)
	if errors.Is(err, errAttemptTimeout) {
		msg := fmt.Sprintf("Request timed out after %ss", secs)
		if ctx["fallback"] == "true" {
			msg += " (fallback)"
		}
		log.Error("http", "timeout", msg, telemetry.Details{"timeoutSeconds": timeout.Seconds(), "fallback": ctx["fallback"] == "true"})
		return apperror.New(apperror.Timeout, "Request timed out").WithContext(ctx)
	}

	log.Error("http", "error", "Request failed: "+err.Error(), telemetry.Details{
		"error":    err.Error(),
		"fallback": ctx["fallback"] == "true",
	})
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr.WithContext(ctx)
	}
	return apperror.Wrap(apperror.HttpError, err, "").WithContext(ctx)
}

func requestContext(req *Request, method string, target *url.URL, timeout time.Duration) map[string]string {
	c := map[string]string{
		"method":      method,
		"uri":         target.String(),
		"timeoutSecs": strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64),
		"engine":      EngineName,
		"disableSsl":  strconv.FormatBool(req.Insecure),
	}
	if req.HostOverride != "" {
		c["hostOverride"] = req.HostOverride
	}
	if req.IPOverride != "" {
		c["ipOverride"] = req.IPOverride
	}
	if req.CAPath != "" {
		c["caPath"] = req.CAPath
	}
	if req.UserAgent != "" {
		c["userAgent"] = req.UserAgent
	}
	return c
}

// cancelOnClose releases an attempt's context once its body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// drain discards a bounded amount of an unused body so the connection can
// be reused for the next hop.
func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64*1024))
	body.Close()
}
