package http

import (
	"net/url"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/knurl/packages/connector"
	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

// Protocol is the HTTP version preference of a request.
type Protocol = connector.Protocol

const (
	ProtocolAuto  = connector.ProtocolAuto
	ProtocolHTTP1 = connector.ProtocolHTTP1
	ProtocolHTTP2 = connector.ProtocolHTTP2
)

// ParseProtocol accepts auto, http1 and http2 and their common aliases.
func ParseProtocol(s string) (Protocol, error) {
	return connector.ParseProtocol(s)
}

// Header is a single request header line. Requests keep headers as an
// ordered list so repeated names survive.
type Header struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// PartKind tells text and file multipart parts apart.
type PartKind int

const (
	PartText PartKind = iota
	PartFile
)

// MultipartPart is one multipart/form-data field.
type MultipartPart struct {
	Kind        PartKind
	Name        string
	Value       string
	Path        string
	Filename    string
	ContentType string
}

func TextPart(name, value string) MultipartPart {
	return MultipartPart{Kind: PartText, Name: name, Value: value}
}

func FilePart(name, path string) MultipartPart {
	return MultipartPart{Kind: PartFile, Name: name, Path: path}
}

// Logging is the per-request telemetry policy.
type Logging struct {
	MaxBytes int
	Redact   bool
	// Bodies defaults to true when nil.
	Bodies *bool
}

func (l Logging) policy() telemetry.Policy {
	bodies := true
	if l.Bodies != nil {
		bodies = *l.Bodies
	}
	return telemetry.Policy{MaxBytes: l.MaxBytes, Redact: l.Redact, Bodies: bodies}
}

// Request is a fully resolved request. Body sources are checked in the
// order Multipart, BodyFile, Body.
type Request struct {
	ID      string
	Method  string
	URL     string
	Headers []Header

	Body      []byte
	BodyFile  string
	Multipart []MultipartPart

	Timeout        time.Duration
	UserAgent      string
	HostOverride   string
	IPOverride     string
	DNSServer      string
	Insecure       bool
	CAPath         string
	Protocol       Protocol
	MaxRedirects   int
	SpoolThreshold int64
	Logging        Logging
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method: method,
		URL:    requestURL,
	}
}

// AddHeader appends a header line, keeping any existing ones.
func (r *Request) AddHeader(name, value string) *Request {
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
	return r
}

func (r *Request) SetBody(body []byte) *Request {
	r.Body = body
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// HeaderValue returns the first value of name, compared case-insensitively.
func (r *Request) HeaderValue(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

func (r *Request) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

func (r *Request) protocol() Protocol {
	if r.Protocol == "" {
		return ProtocolAuto
	}
	return r.Protocol
}

func (r *Request) spoolThreshold() int64 {
	if r.SpoolThreshold <= 0 {
		return DefaultSpoolThreshold
	}
	return r.SpoolThreshold
}

// ValidateURL checks that a URL is well-formed, uses http or https and
// names a host.
func ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, apperror.Wrap(apperror.BadRequest, err, "Invalid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apperror.Newf(apperror.BadRequest, "Unsupported URL scheme %q (only http and https are allowed)", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, apperror.New(apperror.BadRequest, "URL missing host")
	}
	return u, nil
}
