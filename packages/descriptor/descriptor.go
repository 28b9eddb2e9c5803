package descriptor

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/http"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// File is a descriptor document.
type File struct {
	Requests []Entry `yaml:"requests"`
}

// Entry describes one request as written in a descriptor file.
type Entry struct {
	ID             string        `yaml:"id"`
	Method         string        `yaml:"method"`
	URL            string        `yaml:"url"`
	Headers        []http.Header `yaml:"headers"`
	Body           *string       `yaml:"body"`
	BodyFile       string        `yaml:"bodyFile"`
	Multipart      []Part        `yaml:"multipart"`
	Timeout        string        `yaml:"timeout"`
	UserAgent      string        `yaml:"userAgent"`
	HostOverride   string        `yaml:"hostOverride"`
	IPOverride     string        `yaml:"ipOverride"`
	DNSServer      string        `yaml:"dnsServer"`
	Insecure       bool          `yaml:"insecure"`
	CAPath         string        `yaml:"caPath"`
	HTTPVersion    string        `yaml:"httpVersion"`
	MaxRedirects   int           `yaml:"maxRedirects"`
	SpoolThreshold int64         `yaml:"spoolThreshold"`
	Logging        *Logging      `yaml:"logging"`
}

type Part struct {
	Type        string `yaml:"type"`
	Name        string `yaml:"name"`
	Value       string `yaml:"value"`
	Path        string `yaml:"path"`
	Filename    string `yaml:"filename"`
	ContentType string `yaml:"contentType"`
}

type Logging struct {
	MaxBytes int   `yaml:"maxBytes"`
	Redact   bool  `yaml:"redact"`
	Bodies   *bool `yaml:"bodies"`
}

// Load reads a YAML or JSON descriptor file. Relative paths inside it are
// resolved against the file's directory.
func Load(path string) ([]*http.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperror.Wrap(apperror.IoError, err, fmt.Sprintf("Failed to read descriptor '%s'", path))
	}
	reqs, err := Parse(data, filepath.Dir(path))
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			appErr.WithContext(map[string]string{"file": path})
		}
		return nil, err
	}
	return reqs, nil
}

// Parse validates data against the descriptor schema and converts every
// entry into a request.
func Parse(data []byte, baseDir string) ([]*http.Request, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperror.Wrap(apperror.BadRequest, err, "Invalid descriptor syntax")
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, apperror.Wrap(apperror.BadRequest, err, "Invalid descriptor")
	}

	reqs := make([]*http.Request, 0, len(file.Requests))
	for i, entry := range file.Requests {
		req, err := entry.Request(baseDir)
		if err != nil {
			var appErr *apperror.Error
			if errors.As(err, &appErr) {
				appErr.WithContext(map[string]string{"index": strconv.Itoa(i)})
			}
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Validate checks a decoded document against the embedded schema and
// reports every violation in one BadRequest error.
func Validate(doc any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return apperror.Wrap(apperror.BadRequest, err, "Descriptor schema validation error")
	}
	if result.Valid() {
		return nil
	}

	var violations []string
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return apperror.Newf(apperror.BadRequest, "Descriptor validation failed: %s", strings.Join(violations, "; "))
}

// Request converts the entry. A missing id is generated and a missing
// method defaults to GET.
func (e Entry) Request(baseDir string) (*http.Request, error) {
	method := e.Method
	if method == "" {
		method = "GET"
	}
	req := http.NewRequest(strings.ToUpper(method), e.URL)

	req.ID = e.ID
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Headers = append(req.Headers, e.Headers...)
	if e.Body != nil {
		req.Body = []byte(*e.Body)
	}
	req.BodyFile = resolve(baseDir, e.BodyFile)

	for _, p := range e.Multipart {
		switch p.Type {
		case "file":
			if p.Path == "" {
				return nil, apperror.Newf(apperror.BadRequest, "Multipart file part '%s' has no path", p.Name)
			}
			req.Multipart = append(req.Multipart, http.MultipartPart{
				Kind:        http.PartFile,
				Name:        p.Name,
				Path:        resolve(baseDir, p.Path),
				Filename:    p.Filename,
				ContentType: p.ContentType,
			})
		default:
			req.Multipart = append(req.Multipart, http.TextPart(p.Name, p.Value))
		}
	}

	if e.Timeout != "" {
		d, err := time.ParseDuration(e.Timeout)
		if err != nil || d <= 0 {
			return nil, apperror.Newf(apperror.BadRequest, "Invalid timeout %q", e.Timeout)
		}
		req.Timeout = d
	}

	if e.HTTPVersion != "" {
		protocol, err := http.ParseProtocol(e.HTTPVersion)
		if err != nil {
			return nil, err
		}
		req.Protocol = protocol
	}

	req.UserAgent = e.UserAgent
	req.HostOverride = e.HostOverride
	req.IPOverride = e.IPOverride
	req.DNSServer = e.DNSServer
	req.Insecure = e.Insecure
	req.CAPath = resolve(baseDir, e.CAPath)
	req.MaxRedirects = e.MaxRedirects
	req.SpoolThreshold = e.SpoolThreshold
	if e.Logging != nil {
		req.Logging = http.Logging{
			MaxBytes: e.Logging.MaxBytes,
			Redact:   e.Logging.Redact,
			Bodies:   e.Logging.Bodies,
		}
	}
	return req, nil
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
