package descriptor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/http"
)

const sample = `
requests:
  - id: create-user
    method: post
    url: https://api.example.com/users
    headers:
      - name: Content-Type
        value: application/json
      - name: X-Tag
        value: a
      - name: X-Tag
        value: b
    body: '{"name": "knurl"}'
    timeout: 5s
    httpVersion: http2
    maxRedirects: 3
    hostOverride: api.internal:8443
    ipOverride: 10.0.0.1
    insecure: true
    caPath: certs/ca.pem
    logging:
      maxBytes: 1024
      redact: true
      bodies: false
  - url: https://api.example.com/upload
    method: PUT
    multipart:
      - type: text
        name: title
        value: report
      - type: file
        name: doc
        path: files/report.pdf
        contentType: application/pdf
`

func TestParse(t *testing.T) {
	reqs, err := Parse([]byte(sample), "/base")
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	first := reqs[0]
	assert.Equal(t, "create-user", first.ID)
	assert.Equal(t, "POST", first.Method)
	assert.Equal(t, "https://api.example.com/users", first.URL)
	assert.Equal(t, []http.Header{
		{Name: "Content-Type", Value: "application/json"},
		{Name: "X-Tag", Value: "a"},
		{Name: "X-Tag", Value: "b"},
	}, first.Headers)
	assert.Equal(t, `{"name": "knurl"}`, string(first.Body))
	assert.Equal(t, 5*time.Second, first.Timeout)
	assert.Equal(t, http.ProtocolHTTP2, first.Protocol)
	assert.Equal(t, 3, first.MaxRedirects)
	assert.Equal(t, "api.internal:8443", first.HostOverride)
	assert.Equal(t, "10.0.0.1", first.IPOverride)
	assert.True(t, first.Insecure)
	assert.Equal(t, filepath.Join("/base", "certs/ca.pem"), first.CAPath)
	assert.Equal(t, 1024, first.Logging.MaxBytes)
	assert.True(t, first.Logging.Redact)
	require.NotNil(t, first.Logging.Bodies)
	assert.False(t, *first.Logging.Bodies)

	second := reqs[1]
	assert.NotEmpty(t, second.ID)
	assert.Equal(t, "PUT", second.Method)
	require.Len(t, second.Multipart, 2)
	assert.Equal(t, http.TextPart("title", "report"), second.Multipart[0])
	assert.Equal(t, http.PartFile, second.Multipart[1].Kind)
	assert.Equal(t, filepath.Join("/base", "files/report.pdf"), second.Multipart[1].Path)
	assert.Equal(t, "application/pdf", second.Multipart[1].ContentType)
}

func TestParse_JSON(t *testing.T) {
	reqs, err := Parse([]byte(`{"requests": [{"url": "http://localhost:8080/health"}]}`), "")
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "GET", reqs[0].Method)
	assert.Nil(t, reqs[0].Body)
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{"no requests", `requests: []`, "requests"},
		{"missing url", "requests:\n  - method: GET\n", "url"},
		{"unknown field", "requests:\n  - url: http://a.test\n    retries: 3\n", "retries"},
		{"bad http version", "requests:\n  - url: http://a.test\n    httpVersion: http3\n", "httpVersion"},
		{"negative redirects", "requests:\n  - url: http://a.test\n    maxRedirects: -1\n", "maxRedirects"},
		{"bad part type", "requests:\n  - url: http://a.test\n    multipart:\n      - type: blob\n        name: x\n", "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input), "")
			require.Error(t, err)
			assert.True(t, apperror.IsKind(err, apperror.BadRequest))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParse_EntryErrors(t *testing.T) {
	_, err := Parse([]byte("requests:\n  - url: http://a.test\n    timeout: soon\n"), "")
	assert.True(t, apperror.IsKind(err, apperror.BadRequest))

	_, err = Parse([]byte("requests:\n  - url: http://a.test\n    multipart:\n      - type: file\n        name: doc\n"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no path")

	_, err = Parse([]byte("requests: [\n"), "")
	assert.True(t, apperror.IsKind(err, apperror.BadRequest))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requests.yaml")
	require.NoError(t, os.WriteFile(path, []byte("requests:\n  - url: http://a.test\n    bodyFile: body.json\n"), 0o644))

	reqs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, filepath.Join(dir, "body.json"), reqs[0].BodyFile)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.True(t, apperror.IsKind(err, apperror.IoError))
}
