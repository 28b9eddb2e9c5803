package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/knurl/packages/batch"
	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/http"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

func sampleResponse() *http.Response {
	return &http.Response{
		RequestID:  "req-1",
		StatusCode: 200,
		Status:     "OK",
		Proto:      "HTTP/1.1",
		Headers:    []http.Header{{Name: "Content-Type", Value: "application/json"}},
		Cookies:    []http.Cookie{{Name: "sid", Value: "abc"}},
		Body:       []byte(`{"ok":true}`),
		Size:       11,
		Duration:   42 * time.Millisecond,
		Timestamp:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestConsoleFormatter_Response(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithVerbose(true), WithNoColor(true))

	f.FormatResponse(sampleResponse(), map[string]any{"token": "xyz", "items": []any{1, 2}})

	out := buf.String()
	assert.Contains(t, out, "HTTP/1.1 200 OK (42ms, 11 B)")
	assert.Contains(t, out, "Content-Type: application/json")
	assert.Contains(t, out, "cookie sid=abc")
	assert.Contains(t, out, `{"ok":true}`)
	assert.Contains(t, out, "items = [array with 2 items]")
	assert.Contains(t, out, "token = xyz")
}

func TestConsoleFormatter_SpooledAndBinary(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true))

	resp := sampleResponse()
	resp.Body = nil
	resp.FilePath = "/tmp/knurl-123"
	resp.Size = 3 * 1024 * 1024
	f.FormatResponse(resp, nil)
	assert.Contains(t, buf.String(), "[body saved to /tmp/knurl-123 (3.0 MB)]")
	assert.NotContains(t, buf.String(), "Content-Type")

	buf.Reset()
	resp = sampleResponse()
	resp.Body = []byte{0xff, 0xfe, 0x00}
	resp.Size = 3
	f.FormatResponse(resp, nil)
	assert.Contains(t, buf.String(), "[binary body, 3 B]")
}

func TestConsoleFormatter_Error(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithVerbose(true), WithNoColor(true))

	err := apperror.New(apperror.Timeout, "Request timed out").WithContext(map[string]string{"timeoutSecs": "1"})
	f.FormatError(err)

	assert.Contains(t, buf.String(), "Error: Timeout: Request timed out")
	assert.Contains(t, buf.String(), "timeoutSecs=1")
}

func TestConsoleFormatter_Events(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true))

	f.FormatEvents("req-1", []telemetry.Event{
		{Level: telemetry.LevelInfo, Category: "http", Phase: "request", Message: "GET http://a.test", ElapsedMs: 1},
		{Level: telemetry.LevelDebug, Category: "tls", Phase: "certificate", Message: "Certificate:\nSubject: CN=a", ElapsedMs: 12},
	})

	out := buf.String()
	assert.Contains(t, out, "Request req-1 (2 events)")
	assert.Contains(t, out, "http/request GET http://a.test")
	assert.Contains(t, out, "\n        Subject: CN=a")
}

func TestConsoleSink(t *testing.T) {
	events := []telemetry.Event{
		{Level: telemetry.LevelDebug, Category: "http", Phase: "request_line", Message: "> GET / HTTP/1.1"},
		{Level: telemetry.LevelInfo, Category: "http", Phase: "response", Message: "< HTTP/1.1 200 OK"},
		{Level: telemetry.LevelInfo, Category: "dns", Phase: "resolved", Message: "Resolved a.test"},
		{Level: telemetry.LevelWarning, Category: "http2", Phase: "fallback", Message: "retrying with HTTP/1.1"},
	}

	var verbose bytes.Buffer
	sink := NewConsoleSink(&verbose, true, true)
	for _, e := range events {
		sink.Emit(e)
	}
	assert.Equal(t, "> GET / HTTP/1.1\n< HTTP/1.1 200 OK\n* Resolved a.test\n* retrying with HTTP/1.1\n", verbose.String())

	var quiet bytes.Buffer
	sink = NewConsoleSink(&quiet, false, true)
	for _, e := range events {
		sink.Emit(e)
	}
	assert.Equal(t, "* retrying with HTTP/1.1\n", quiet.String())
}

func TestJSONFormatter_Response(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(JSONWithWriter(&buf))

	require.NoError(t, f.FormatResponse(sampleResponse(), map[string]any{"ok": true}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "req-1", decoded["requestId"])
	assert.EqualValues(t, 200, decoded["status"])
	assert.Equal(t, `{"ok":true}`, decoded["body"])
	assert.EqualValues(t, 42, decoded["duration"])
	assert.Equal(t, true, decoded["extracted"].(map[string]any)["ok"])
}

func TestJSONFormatter_BinaryAndSpooled(t *testing.T) {
	resp := sampleResponse()
	resp.Body = []byte{0xff, 0x00}
	out := NewJSONResponse(resp, nil)
	assert.Nil(t, out.Body)
	assert.Equal(t, "/wA=", out.BodyBase64)

	resp = sampleResponse()
	resp.Body = nil
	resp.FilePath = "/tmp/knurl-1"
	out = NewJSONResponse(resp, nil)
	assert.Nil(t, out.Body)
	assert.Empty(t, out.BodyBase64)
	assert.Equal(t, "/tmp/knurl-1", out.FilePath)
}

func TestJSONFormatter_Error(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(JSONWithWriter(&buf))

	err := apperror.New(apperror.BadRequest, "Invalid URL").WithContext(map[string]string{"uri": "x"})
	require.NoError(t, f.FormatError(err))

	var decoded map[string]JSONError
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, JSONError{Kind: "BadRequest", Message: "Invalid URL", Context: map[string]string{"uri": "x"}}, decoded["error"])

	assert.Equal(t, JSONError{Kind: "Error", Message: "plain"}, NewJSONError(errors.New("plain")))
}

func TestJUnitFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewJUnitFormatter(JUnitWithWriter(&buf))

	results := []batch.Result{
		{RequestID: "ok", Response: &http.Response{StatusCode: 200, Status: "OK", Proto: "HTTP/1.1"}, Duration: time.Millisecond},
		{RequestID: "missing", Response: &http.Response{StatusCode: 404, Status: "Not Found", Proto: "HTTP/1.1"}},
		{RequestID: "slow", Err: apperror.New(apperror.Timeout, "Request timed out")},
		{RequestID: "later", Err: apperror.New(apperror.UserCancelled, "stopped"), Skipped: true},
	}
	require.NoError(t, f.FormatBatch("requests.yaml", results, &batch.Summary{Duration: time.Second}))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "<?xml"))

	var suites JUnitTestSuites
	require.NoError(t, xml.Unmarshal([]byte(out[strings.Index(out, "\n")+1:]), &suites))
	assert.Equal(t, 4, suites.Tests)
	assert.Equal(t, 1, suites.Failures)
	assert.Equal(t, 1, suites.Errors)
	assert.Equal(t, 1, suites.Skipped)
	require.Len(t, suites.TestSuites, 1)
	cases := suites.TestSuites[0].TestCases
	require.Len(t, cases, 4)
	assert.Nil(t, cases[0].Failure)
	assert.Equal(t, "HTTP 404 Not Found", cases[1].Failure.Message)
	assert.Equal(t, "Timeout", cases[2].Error.Type)
	assert.NotNil(t, cases[3].Skipped)
}
