package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

const (
	// DefaultSpoolThreshold is the body size above which responses are
	// written to a temporary file.
	DefaultSpoolThreshold int64 = 20 * 1024 * 1024
	// readChunkSize is the size of each body read.
	readChunkSize = 32 * 1024
	spoolPattern  = "knurl-*"
)

// captureResponse streams resp into memory or a spool file and builds the
// Response. resp.Body is always closed.
func (e *Engine) captureResponse(resp *http.Response, req *Request, final *hop, log *telemetry.Logger, start time.Time) (*Response, error) {
	defer resp.Body.Close()

	reason := http.StatusText(resp.StatusCode)
	if reason == "" {
		reason = strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	}
	log.Info("http", "response", fmt.Sprintf("< %s %d %s", resp.Proto, resp.StatusCode, reason), telemetry.Details{
		"status":  resp.StatusCode,
		"reason":  reason,
		"version": resp.Proto,
	})
	log.Headers(resp.Header, "response_header", "<")

	body, filePath, size, err := e.readBody(resp, req.spoolThreshold(), log)
	if err != nil {
		return nil, err
	}

	cookies := parseCookies(resp.Header.Values("Set-Cookie"))
	for _, c := range cookies {
		logCookie(log, c, final.url.Hostname())
	}

	duration := time.Since(start)
	log.Debug("metrics", "duration", fmt.Sprintf("Request completed in %d ms", duration.Milliseconds()), telemetry.Details{
		"durationMs": duration.Milliseconds(),
	})
	log.Debug("connect", "shutdown", "Shutting down connection", nil)

	return &Response{
		RequestID:  log.RequestID(),
		StatusCode: resp.StatusCode,
		Status:     reason,
		Proto:      resp.Proto,
		Headers:    sortedHeaders(resp.Header),
		Cookies:    cookies,
		Body:       body,
		FilePath:   filePath,
		Size:       size,
		Duration:   duration,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// readBody reads chunks in arrival order. Bytes stay in memory until the
// running size or the declared Content-Length exceeds threshold; from then
// on everything goes to a temp file.
func (e *Engine) readBody(resp *http.Response, threshold int64, log *telemetry.Logger) ([]byte, string, int64, error) {
	var (
		buf      bytes.Buffer
		file     *os.File
		size     int64
		chunk    = make([]byte, readChunkSize)
		spooling = resp.ContentLength > threshold
	)

	fail := func(err *apperror.Error) ([]byte, string, int64, error) {
		if file != nil {
			file.Close()
			os.Remove(file.Name())
		}
		return nil, "", 0, err
	}

	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			data := chunk[:n]
			log.Body("response_body", "body", "< body:", data)
			size += int64(n)

			if spooling || size > threshold {
				if file == nil {
					f, err := os.CreateTemp(e.spoolDir, spoolPattern)
					if err != nil {
						return fail(apperror.Wrap(apperror.IoError, err, "Failed to create spool file"))
					}
					file = f
					if _, err := file.Write(buf.Bytes()); err != nil {
						return fail(apperror.Wrap(apperror.IoError, err, "Failed to write spool file"))
					}
					buf = bytes.Buffer{}
					spooling = true
					log.Debug("response_body", "spool", "Streaming response body to "+file.Name(), telemetry.Details{
						"path":          file.Name(),
						"threshold":     threshold,
						"contentLength": resp.ContentLength,
					})
				}
				if _, err := file.Write(data); err != nil {
					return fail(apperror.Wrap(apperror.IoError, err, "Failed to write spool file"))
				}
			} else {
				buf.Write(data)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			log.Error("http", "error", "Body error: "+rerr.Error(), telemetry.Details{"error": rerr.Error()})
			return fail(apperror.Wrap(apperror.HttpError, rerr, "Body error"))
		}
	}

	if file == nil {
		return buf.Bytes(), "", size, nil
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return nil, "", 0, apperror.Wrap(apperror.IoError, err, "Failed to close spool file")
	}
	return nil, file.Name(), size, nil
}

func logCookie(log *telemetry.Logger, c Cookie, requestHost string) {
	domain := c.Domain
	if domain == "" {
		domain = requestHost
	}
	if domain == "" {
		domain = "<unspecified>"
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	expiry := c.Expires
	if expiry == "" && c.MaxAge != nil {
		expiry = strconv.FormatInt(*c.MaxAge, 10)
	}
	if expiry == "" {
		expiry = "0"
	}
	log.Debug("cookie", "set", fmt.Sprintf("Added cookie %s=%q for domain %s, path %s, expire %s", c.Name, c.Value, domain, path, expiry), telemetry.Details{
		"name":            c.Name,
		"value":           c.Value,
		"domain":          c.Domain,
		"effectiveDomain": domain,
		"path":            path,
		"expires":         c.Expires,
		"maxAge":          c.MaxAge,
		"secure":          c.Secure,
		"httpOnly":        c.HttpOnly,
		"sameSite":        c.SameSite,
	})
}

// sortedHeaders flattens h ordered by name, keeping each name's values in
// received order.
func sortedHeaders(h http.Header) []Header {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Header, 0, len(h))
	for _, name := range names {
		for _, v := range h[name] {
			out = append(out, Header{Name: name, Value: v})
		}
	}
	return out
}
