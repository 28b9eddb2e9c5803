package output

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"
	"unicode/utf8"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/http"
	"github.com/abdul-hamid-achik/knurl/packages/logstore"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

// JSONResponse is the JSON rendering of a response
type JSONResponse struct {
	RequestID  string         `json:"requestId"`
	StatusCode int            `json:"status"`
	Status     string         `json:"statusText"`
	Proto      string         `json:"proto"`
	Headers    []http.Header  `json:"headers"`
	Cookies    []http.Cookie  `json:"cookies"`
	Body       *string        `json:"body,omitempty"`
	BodyBase64 string         `json:"bodyBase64,omitempty"`
	FilePath   string         `json:"filePath,omitempty"`
	Size       int64          `json:"size"`
	Duration   float64        `json:"duration"` // milliseconds
	Timestamp  string         `json:"timestamp"`
	Extracted  map[string]any `json:"extracted,omitempty"`
}

// JSONError is the JSON rendering of a failed execution
type JSONError struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

// JSONRequestLog is the JSON rendering of a stored request's events
type JSONRequestLog struct {
	RequestID string            `json:"requestId"`
	Events    []telemetry.Event `json:"events"`
}

// JSONFormatter writes machine-readable output, one document per call.
type JSONFormatter struct {
	writer io.Writer
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

// NewJSONResponse converts resp. Text bodies are inlined, binary bodies are
// base64 encoded and spooled bodies are referenced by path.
func NewJSONResponse(resp *http.Response, extracted map[string]any) JSONResponse {
	out := JSONResponse{
		RequestID:  resp.RequestID,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Proto:      resp.Proto,
		Headers:    resp.Headers,
		Cookies:    resp.Cookies,
		FilePath:   resp.FilePath,
		Size:       resp.Size,
		Duration:   float64(resp.Duration.Microseconds()) / 1000,
		Timestamp:  resp.Timestamp.Format(time.RFC3339Nano),
		Extracted:  extracted,
	}
	if out.Headers == nil {
		out.Headers = []http.Header{}
	}
	if out.Cookies == nil {
		out.Cookies = []http.Cookie{}
	}
	if !resp.IsSpooled() {
		if utf8.Valid(resp.Body) {
			body := string(resp.Body)
			out.Body = &body
		} else {
			out.BodyBase64 = base64.StdEncoding.EncodeToString(resp.Body)
		}
	}
	return out
}

func (f *JSONFormatter) FormatResponse(resp *http.Response, extracted map[string]any) error {
	return f.encode(NewJSONResponse(resp, extracted))
}

// NewJSONError converts err, keeping the kind and context of engine errors.
func NewJSONError(err error) JSONError {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return JSONError{Kind: string(appErr.Kind), Message: appErr.Message, Context: appErr.Context}
	}
	return JSONError{Kind: "Error", Message: err.Error()}
}

func (f *JSONFormatter) FormatError(err error) error {
	return f.encode(map[string]JSONError{"error": NewJSONError(err)})
}

func (f *JSONFormatter) FormatEvents(requestID string, events []telemetry.Event) error {
	if events == nil {
		events = []telemetry.Event{}
	}
	return f.encode(JSONRequestLog{RequestID: requestID, Events: events})
}

func (f *JSONFormatter) FormatRequests(summaries []logstore.RequestSummary) error {
	type listing struct {
		RequestID string `json:"requestId"`
		Events    int    `json:"events"`
		First     string `json:"first"`
		Last      string `json:"last"`
	}
	out := make([]listing, len(summaries))
	for i, s := range summaries {
		out[i] = listing{
			RequestID: s.RequestID,
			Events:    s.Events,
			First:     s.First.Format(time.RFC3339Nano),
			Last:      s.Last.Format(time.RFC3339Nano),
		}
	}
	return f.encode(out)
}

func (f *JSONFormatter) encode(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
