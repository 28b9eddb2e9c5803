package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/knurl/packages/batch"
	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/core/config"
	"github.com/abdul-hamid-achik/knurl/packages/http"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"bad request", apperror.New(apperror.BadRequest, "x"), ExitBadRequest},
		{"io", apperror.New(apperror.IoError, "x"), ExitNetworkError},
		{"http", apperror.New(apperror.HttpError, "x"), ExitNetworkError},
		{"timeout", apperror.New(apperror.Timeout, "x"), ExitTimeout},
		{"cancelled", apperror.New(apperror.UserCancelled, "x"), ExitCancelled},
		{"config", configError(apperror.New(apperror.BadRequest, "x")), ExitConfigError},
		{"usage", usageError(errors.New("x")), ExitUsageError},
		{"cobra", errors.New(`unknown flag: --nope`), ExitUsageError},
		{"reported keeps kind", reported(apperror.New(apperror.Timeout, "x")), ExitTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestParseHeader(t *testing.T) {
	name, value, err := parseHeader("X-Trace:  abc:def ")
	require.NoError(t, err)
	assert.Equal(t, "X-Trace", name)
	assert.Equal(t, "abc:def", value)

	name, value, err = parseHeader("X-Empty:")
	require.NoError(t, err)
	assert.Equal(t, "X-Empty", name)
	assert.Empty(t, value)

	for _, bad := range []string{"no-colon", ": value"} {
		_, _, err := parseHeader(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseFormField(t *testing.T) {
	part, err := parseFormField("title=hello=world")
	require.NoError(t, err)
	assert.Equal(t, http.TextPart("title", "hello=world"), part)

	part, err = parseFormField("doc=@files/report.pdf;type=application/pdf;filename=r.pdf")
	require.NoError(t, err)
	assert.Equal(t, http.PartFile, part.Kind)
	assert.Equal(t, "doc", part.Name)
	assert.Equal(t, "files/report.pdf", part.Path)
	assert.Equal(t, "application/pdf", part.ContentType)
	assert.Equal(t, "r.pdf", part.Filename)

	for _, bad := range []string{"novalue", "=x", "doc=@", "doc=@a.txt;size=3"} {
		_, err := parseFormField(bad)
		assert.Error(t, err, bad)
	}
}

func TestSelectRequest(t *testing.T) {
	a := http.NewRequest("GET", "http://a.test")
	a.ID = "first"
	b := http.NewRequest("GET", "http://b.test")
	b.ID = "second"

	got, err := selectRequest([]*http.Request{a}, "")
	require.NoError(t, err)
	assert.Same(t, a, got)

	got, err = selectRequest([]*http.Request{a, b}, "second")
	require.NoError(t, err)
	assert.Same(t, b, got)

	got, err = selectRequest([]*http.Request{a, b}, "2")
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = selectRequest([]*http.Request{a, b}, "")
	assert.Equal(t, ExitUsageError, exitCode(err))

	_, err = selectRequest([]*http.Request{a, b}, "3")
	assert.Equal(t, ExitUsageError, exitCode(err))
}

func TestApplyConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.FollowRedirects = config.BoolPtr(true)
	cfg.MaxRedirects = 4
	cfg.HTTPVersion = "http1"
	cfg.DNSServer = "1.1.1.1"
	cfg.Redact = config.BoolPtr(true)
	cfg.Headers = map[string]string{"X-Default": "1", "Accept": "*/*"}

	req := http.NewRequest("GET", "http://a.test").AddHeader("accept", "application/json")
	require.NoError(t, applyConfig(req, cfg))

	assert.Equal(t, 30*time.Second, req.Timeout)
	assert.Equal(t, 4, req.MaxRedirects)
	assert.Equal(t, http.ProtocolHTTP1, req.Protocol)
	assert.Equal(t, "1.1.1.1", req.DNSServer)
	assert.EqualValues(t, 20*1024*1024, req.SpoolThreshold)
	assert.True(t, req.Logging.Redact)
	require.NotNil(t, req.Logging.Bodies)
	assert.True(t, *req.Logging.Bodies)
	assert.Equal(t, []http.Header{
		{Name: "accept", Value: "application/json"},
		{Name: "X-Default", Value: "1"},
	}, req.Headers)

	explicitReq := http.NewRequest("GET", "http://a.test")
	explicitReq.Timeout = time.Second
	explicitReq.Protocol = http.ProtocolHTTP2
	explicitReq.MaxRedirects = 1
	require.NoError(t, applyConfig(explicitReq, cfg))
	assert.Equal(t, time.Second, explicitReq.Timeout)
	assert.Equal(t, http.ProtocolHTTP2, explicitReq.Protocol)
	assert.Equal(t, 1, explicitReq.MaxRedirects)
}

func TestBatchOutcome(t *testing.T) {
	ok := batch.Result{Response: &http.Response{StatusCode: 200}}
	notFound := batch.Result{Response: &http.Response{StatusCode: 404}}
	failed := batch.Result{Err: apperror.New(apperror.HttpError, "refused")}

	assert.NoError(t, batchOutcome(context.Background(), []batch.Result{ok, notFound}, false))
	assert.Equal(t, ExitRequestFailed, exitCode(batchOutcome(context.Background(), []batch.Result{ok, notFound}, true)))
	assert.Equal(t, ExitRequestFailed, exitCode(batchOutcome(context.Background(), []batch.Result{ok, failed}, false)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, ExitCancelled, exitCode(batchOutcome(ctx, []batch.Result{ok}, false)))
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()
	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestCLI_ExecBatchLogs(t *testing.T) {
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Echo", r.Header.Get("X-Test"))
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/missing" {
			w.WriteHeader(nethttp.StatusNotFound)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"method": r.Method, "body": string(body)})
	}))
	defer server.Close()

	dir := t.TempDir()
	db := filepath.Join(dir, "knurl.db")

	t.Run("exec", func(t *testing.T) {
		out, err := runCLI(t, "exec", "POST", server.URL+"/users",
			"-H", "X-Test: 1", "-d", "hello",
			"--extract", "status", "--extract", "echo=header.X-Echo", "--extract", "method=body.method",
			"-o", "json", "--log-db", db, "--id", "exec-1")
		require.NoError(t, err)

		var resp map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "exec-1", resp["requestId"])
		assert.EqualValues(t, 200, resp["status"])
		extracted := resp["extracted"].(map[string]any)
		assert.EqualValues(t, 200, extracted["status"])
		assert.Equal(t, "1", extracted["echo"])
		assert.Equal(t, "POST", extracted["method"])
	})

	t.Run("batch", func(t *testing.T) {
		file := filepath.Join(dir, "requests.yaml")
		require.NoError(t, os.WriteFile(file, []byte(`
requests:
  - id: ok
    url: `+server.URL+`/ok
  - id: missing
    url: `+server.URL+`/missing
`), 0o644))

		out, err := runCLI(t, "batch", file, "-o", "json", "--log-db", db, "--fail")
		assert.Equal(t, ExitRequestFailed, exitCode(err))

		var summary map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &summary))
		results := summary["results"].([]any)
		require.Len(t, results, 2)
		assert.EqualValues(t, 404, results[1].(map[string]any)["status"])
	})

	t.Run("logs", func(t *testing.T) {
		out, err := runCLI(t, "logs", "exec-1", "-o", "json", "--log-db", db)
		require.NoError(t, err)

		var log struct {
			RequestID string `json:"requestId"`
			Events    []struct {
				Category string `json:"category"`
				Phase    string `json:"phase"`
			} `json:"events"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &log))
		assert.Equal(t, "exec-1", log.RequestID)
		assert.NotEmpty(t, log.Events)

		out, err = runCLI(t, "logs", "-o", "json", "--log-db", db)
		require.NoError(t, err)
		var listing []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &listing))
		assert.Len(t, listing, 3)

		_, err = runCLI(t, "logs", "nobody", "-o", "json", "--log-db", db)
		assert.Equal(t, ExitRequestFailed, exitCode(err))
	})
}
