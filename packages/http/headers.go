package http

import (
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
)

// connection-specific headers that HTTP/2 forbids
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Upgrade",
	"Transfer-Encoding",
}

// sensitive headers dropped on cross-origin redirects
var credentialHeaders = []string{
	"Authorization",
	"Proxy-Authorization",
	"Cookie",
}

func validateMethod(method string) (string, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return "", apperror.New(apperror.BadRequest, "Invalid HTTP method: empty")
	}
	for _, r := range method {
		if !httpguts.IsTokenRune(r) {
			return "", apperror.Newf(apperror.BadRequest, "Invalid HTTP method %q", method)
		}
	}
	return method, nil
}

// buildHeaders validates the request's header lines and applies the
// User-Agent: the request's UserAgent field wins, then a caller header,
// then defaultUA.
func buildHeaders(req *Request, defaultUA string) (http.Header, error) {
	h := make(http.Header, len(req.Headers)+1)
	for _, line := range req.Headers {
		if !httpguts.ValidHeaderFieldName(line.Name) {
			return nil, apperror.Newf(apperror.BadRequest, "Invalid header name %q", line.Name)
		}
		if !httpguts.ValidHeaderFieldValue(line.Value) {
			return nil, apperror.Newf(apperror.BadRequest, "Invalid header value for %q", line.Name)
		}
		h.Add(line.Name, line.Value)
	}

	if ua := strings.TrimSpace(req.UserAgent); ua != "" {
		if !httpguts.ValidHeaderFieldValue(ua) {
			return nil, apperror.New(apperror.BadRequest, "Invalid User-Agent header")
		}
		h.Set("User-Agent", ua)
	} else if h.Get("User-Agent") == "" {
		h.Set("User-Agent", defaultUA)
	}
	return h, nil
}

// sanitizeForHTTP2 removes connection-specific headers, and the Host
// header unless allowHost is set.
func sanitizeForHTTP2(h http.Header, allowHost bool) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
	if !allowHost {
		h.Del("Host")
	}
}

func stripCredentials(h http.Header) bool {
	stripped := false
	for _, name := range credentialHeaders {
		if _, ok := h[name]; ok {
			h.Del(name)
			stripped = true
		}
	}
	return stripped
}

// sanitizeHostToken drops a trailing port from a Host override while
// keeping bracketed IPv6 literals intact.
func sanitizeHostToken(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	if strings.HasPrefix(v, "[") {
		if end := strings.IndexByte(v, ']'); end >= 0 {
			return v[:end+1]
		}
	}
	if host, port, ok := cutLast(v, ":"); ok && port != "" && isDigits(port) {
		return host
	}
	return v
}

func cutLast(s, sep string) (string, string, bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// hostHeaderValue is the Host value for u: the sanitized override when
// set, else the URL authority.
func hostHeaderValue(override string, u *url.URL) string {
	if h := sanitizeHostToken(override); h != "" {
		return h
	}
	return u.Host
}

// sameOrigin compares scheme, host and effective port.
func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}

func validHost(v string) bool {
	return httpguts.ValidHostHeader(v)
}
