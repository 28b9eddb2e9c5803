package capture

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/http"
)

// Source is the part of a response a capture reads.
type Source string

const (
	SourceStatus   Source = "status"
	SourceDuration Source = "duration"
	SourceSize     Source = "size"
	SourceHeader   Source = "header"
	SourceCookie   Source = "cookie"
	SourceBody     Source = "body"
)

// Capture names one value to extract.
type Capture struct {
	Name   string
	Source Source
	Path   string
}

// Parse reads "name=expr" or a bare "expr", where expr is status,
// duration, size, header.<Name>, cookie.<name>, body or body.<gjson path>.
// A bare expression is its own name.
func Parse(spec string) (*Capture, error) {
	spec = strings.TrimSpace(spec)
	name, expr, ok := strings.Cut(spec, "=")
	if !ok {
		name, expr = spec, spec
	}
	name, expr = strings.TrimSpace(name), strings.TrimSpace(expr)
	if name == "" || expr == "" {
		return nil, apperror.Newf(apperror.BadRequest, "Invalid capture %q", spec)
	}

	source, path, _ := strings.Cut(expr, ".")
	c := &Capture{Name: name, Source: Source(source), Path: path}
	switch c.Source {
	case SourceStatus, SourceDuration, SourceSize:
		if path != "" {
			return nil, apperror.Newf(apperror.BadRequest, "Capture %q takes no path", source)
		}
	case SourceHeader, SourceCookie:
		if path == "" {
			return nil, apperror.Newf(apperror.BadRequest, "Capture %q needs a name, e.g. %s.X", source, source)
		}
	case SourceBody:
	default:
		return nil, apperror.Newf(apperror.BadRequest, "Unknown capture source %q", source)
	}
	return c, nil
}

type Extractor struct {
	response *http.Response
	loaded   bool
	body     []byte
	bodyErr  error
	bodyJSON gjson.Result
}

func NewExtractor(resp *http.Response) *Extractor {
	return &Extractor{
		response: resp,
	}
}

// loadBody reads the payload once, from the spool file if needed.
func (e *Extractor) loadBody() error {
	if e.loaded {
		return e.bodyErr
	}
	e.loaded = true
	e.body, e.bodyErr = e.response.ReadBody()
	if e.bodyErr != nil {
		e.bodyErr = apperror.Wrap(apperror.IoError, e.bodyErr, "Failed to read response body")
		return e.bodyErr
	}
	if gjson.ValidBytes(e.body) {
		e.bodyJSON = gjson.ParseBytes(e.body)
	}
	return nil
}

// Extract returns the captured value and whether it was present.
func (e *Extractor) Extract(capture *Capture) (any, bool, error) {
	switch capture.Source {
	case SourceBody:
		return e.extractFromBody(capture.Path)
	case SourceHeader:
		return e.extractFromHeader(capture.Path)
	case SourceCookie:
		c, ok := e.response.Cookie(capture.Path)
		if !ok {
			return nil, false, nil
		}
		return c.Value, true, nil
	case SourceStatus:
		return e.response.StatusCode, true, nil
	case SourceDuration:
		return e.response.DurationMs(), true, nil
	case SourceSize:
		return e.response.Size, true, nil
	default:
		return nil, false, nil
	}
}

func (e *Extractor) extractFromBody(path string) (any, bool, error) {
	if err := e.loadBody(); err != nil {
		return nil, false, err
	}
	if !e.bodyJSON.Exists() {
		if path == "" {
			return string(e.body), true, nil
		}
		return nil, false, nil
	}

	if path == "" {
		return e.bodyJSON.Value(), true, nil
	}

	result := e.bodyJSON.Get(path)
	if !result.Exists() {
		return nil, false, nil
	}
	return result.Value(), true, nil
}

func (e *Extractor) extractFromHeader(name string) (any, bool, error) {
	values := e.response.HeaderValues(name)
	switch len(values) {
	case 0:
		return nil, false, nil
	case 1:
		return values[0], true, nil
	default:
		return values, true, nil
	}
}

// ExtractAll runs every capture; missing values are left out.
func ExtractAll(resp *http.Response, captures []*Capture) (map[string]any, error) {
	extractor := NewExtractor(resp)
	results := make(map[string]any)

	for _, c := range captures {
		value, ok, err := extractor.Extract(c)
		if err != nil {
			return nil, err
		}
		if ok {
			results[c.Name] = value
		}
	}

	return results, nil
}
