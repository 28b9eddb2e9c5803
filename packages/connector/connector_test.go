package connector

import (
	"context"
	"crypto/tls"
	"encoding/pem"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

func newTestLogger() (*telemetry.Logger, *telemetry.Recorder) {
	rec := &telemetry.Recorder{}
	return telemetry.NewLogger(rec, "test", telemetry.Policy{Bodies: true}), rec
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    Protocol
		wantErr bool
	}{
		{"", ProtocolAuto, false},
		{"auto", ProtocolAuto, false},
		{"HTTP1", ProtocolHTTP1, false},
		{"http/1.1", ProtocolHTTP1, false},
		{"h2", ProtocolHTTP2, false},
		{"http3", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProtocol(tt.in)
			if tt.wantErr {
				assert.True(t, apperror.IsKind(err, apperror.BadRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProtocol_ALPN(t *testing.T) {
	assert.Equal(t, []string{"h2", "http/1.1"}, ProtocolAuto.ALPN())
	assert.Equal(t, []string{"http/1.1"}, ProtocolHTTP1.ALPN())
	assert.Equal(t, []string{"h2"}, ProtocolHTTP2.ALPN())
	assert.True(t, ProtocolAuto.AllowsHTTP2())
	assert.False(t, ProtocolHTTP1.AllowsHTTP2())
}

func TestDefaultPort(t *testing.T) {
	assert.Equal(t, "443", DefaultPort(mustParse(t, "https://example.com/")))
	assert.Equal(t, "80", DefaultPort(mustParse(t, "http://example.com/")))
	assert.Equal(t, "8443", DefaultPort(mustParse(t, "https://example.com:8443/")))
}

func TestParseIPOverride(t *testing.T) {
	addr, err := ParseIPOverride("  ")
	require.NoError(t, err)
	assert.False(t, addr.IsValid())

	addr, err = ParseIPOverride("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", addr.String())

	addr, err = ParseIPOverride("[::1]")
	require.NoError(t, err)
	assert.Equal(t, "::1", addr.String())

	_, err = ParseIPOverride("not-an-ip")
	assert.True(t, apperror.IsKind(err, apperror.BadRequest))
}

func TestResolver_OverrideMatchesTargetHostOnly(t *testing.T) {
	log, rec := newTestLogger()
	r, err := NewResolver("Example.COM", "127.0.0.1", "", log)
	require.NoError(t, err)

	addrs, err := r.Resolve(context.Background(), "example.com")
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "127.0.0.1", addrs[0].String())
	assert.Len(t, rec.Phase("dns", "override"), 1)
	assert.Len(t, rec.Phase("dns", "override_hit"), 1)

	addrs, err = r.Resolve(context.Background(), "127.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.2", addrs[0].String())
	assert.Len(t, rec.Phase("dns", "override_hit"), 1)
}

func TestResolver_CustomServer(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(req)
			q := req.Question[0]
			if q.Qtype == dns.TypeA {
				rr, _ := dns.NewRR(q.Name + " 60 IN A 10.1.2.3")
				m.Answer = append(m.Answer, rr)
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	defer func() { _ = srv.Shutdown() }()

	log, rec := newTestLogger()
	r, err := NewResolver("api.internal", "", pc.LocalAddr().String(), log)
	require.NoError(t, err)

	addrs, err := r.Resolve(context.Background(), "api.internal")
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "10.1.2.3", addrs[0].String())
	assert.Len(t, rec.Phase("dns", "resolved"), 1)
	assert.Len(t, rec.Phase("dns", "ipv4"), 1)
	assert.Empty(t, rec.Phase("dns", "ipv6"))
}

func TestResolver_CustomServerFailure(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			m := new(dns.Msg)
			m.SetRcode(req, dns.RcodeNameError)
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	defer func() { _ = srv.Shutdown() }()

	log, rec := newTestLogger()
	r, err := NewResolver("missing.internal", "", pc.LocalAddr().String(), log)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "missing.internal")
	assert.True(t, apperror.IsKind(err, apperror.IoError))
	assert.Len(t, rec.Phase("dns", "error"), 1)
}

func TestNew_Validation(t *testing.T) {
	log, _ := newTestLogger()

	_, err := New(Options{URL: mustParse(t, "http:///path")}, log)
	assert.True(t, apperror.IsKind(err, apperror.BadRequest))

	_, err = New(Options{URL: mustParse(t, "http://example.com"), IPOverride: "999.1.1.1"}, log)
	assert.True(t, apperror.IsKind(err, apperror.BadRequest))
}

func TestBuildTLSConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing bundle", func(t *testing.T) {
		log, _ := newTestLogger()
		_, err := BuildTLSConfig(ProtocolAuto, false, filepath.Join(dir, "nope.pem"), log)
		assert.True(t, apperror.IsKind(err, apperror.IoError))
	})

	t.Run("bundle without certificates", func(t *testing.T) {
		path := filepath.Join(dir, "empty.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))
		log, _ := newTestLogger()
		_, err := BuildTLSConfig(ProtocolAuto, false, path, log)
		assert.True(t, apperror.IsKind(err, apperror.BadRequest))
	})

	t.Run("insecure warns", func(t *testing.T) {
		log, rec := newTestLogger()
		cfg, err := BuildTLSConfig(ProtocolHTTP1, true, "", log)
		require.NoError(t, err)
		assert.True(t, cfg.InsecureSkipVerify)
		assert.Equal(t, []string{"http/1.1"}, cfg.NextProtos)

		events := rec.Phase("tls", "config")
		require.Len(t, events, 1)
		assert.Equal(t, telemetry.LevelWarning, events[0].Level)
		assert.Len(t, rec.Phase("tls", "alpn_offer"), 1)
	})
}

func writeServerCA(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ca.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestConnector_PlainWithOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "knurl.test", hostOnly(r.Host))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, port, _ := net.SplitHostPort(srv.Listener.Addr().String())
	target := mustParse(t, "http://knurl.test:"+port+"/")

	log, rec := newTestLogger()
	c, err := New(Options{URL: target, IPOverride: "127.0.0.1", Protocol: ProtocolHTTP1}, log)
	require.NoError(t, err)
	defer c.Close()

	req, _ := http.NewRequest(http.MethodGet, target.String(), nil)
	resp, err := c.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Len(t, rec.Phase("dns", "override_hit"), 1)
	assert.Len(t, rec.Phase("connect", "tcp"), 1)
}

func hostOnly(hostport string) string {
	h, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return h
}

func TestConnector_TLSWithCustomCA(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer srv.Close()

	_, port, _ := net.SplitHostPort(srv.Listener.Addr().String())
	target := mustParse(t, "https://example.com:"+port+"/")

	log, rec := newTestLogger()
	c, err := New(Options{
		URL:        target,
		IPOverride: "127.0.0.1",
		CAPath:     writeServerCA(t, srv),
		Protocol:   ProtocolAuto,
	}, log)
	require.NoError(t, err)
	defer c.Close()

	req, _ := http.NewRequest(http.MethodGet, target.String(), nil)
	resp, err := c.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, rec.Phase("tls", "ca_bundle"), 1)
	require.Len(t, rec.Phase("tls", "handshake"), 1)
	certs := rec.Phase("tls", "certificate")
	require.NotEmpty(t, certs)
	assert.Contains(t, certs[0].Message, "Certificate #0:")
}

func TestConnector_TLSUntrusted(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, port, _ := net.SplitHostPort(srv.Listener.Addr().String())
	target := mustParse(t, "https://example.com:"+port+"/")

	log, _ := newTestLogger()
	c, err := New(Options{URL: target, IPOverride: "127.0.0.1", Protocol: ProtocolHTTP1}, log)
	require.NoError(t, err)
	defer c.Close()

	req, _ := http.NewRequest(http.MethodGet, target.String(), nil)
	_, err = c.RoundTrip(req)
	assert.Error(t, err)

	insecure, err := New(Options{URL: target, IPOverride: "127.0.0.1", Protocol: ProtocolHTTP1, Insecure: true}, log)
	require.NoError(t, err)
	defer insecure.Close()

	resp, err := insecure.RoundTrip(req.Clone(context.Background()))
	require.NoError(t, err)
	resp.Body.Close()
}

func TestConnector_HTTP2(t *testing.T) {
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Proto))
	}))
	srv.EnableHTTP2 = true
	srv.StartTLS()
	defer srv.Close()

	_, port, _ := net.SplitHostPort(srv.Listener.Addr().String())
	target := mustParse(t, "https://example.com:"+port+"/")

	log, _ := newTestLogger()
	c, err := New(Options{URL: target, IPOverride: "127.0.0.1", Insecure: true, Protocol: ProtocolHTTP2}, log)
	require.NoError(t, err)
	defer c.Close()

	req, _ := http.NewRequest(http.MethodGet, target.String(), nil)
	resp, err := c.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 2, resp.ProtoMajor)
}

func TestConnector_HTTP2OnlyWithoutALPN(t *testing.T) {
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.TLS = &tls.Config{NextProtos: []string{}}
	srv.StartTLS()
	defer srv.Close()

	_, port, _ := net.SplitHostPort(srv.Listener.Addr().String())
	target := mustParse(t, "https://example.com:"+port+"/")

	log, _ := newTestLogger()
	c, err := New(Options{URL: target, IPOverride: "127.0.0.1", Insecure: true, Protocol: ProtocolHTTP2}, log)
	require.NoError(t, err)
	defer c.Close()

	req, _ := http.NewRequest(http.MethodGet, target.String(), nil)
	_, err = c.RoundTrip(req)
	require.Error(t, err)

	var ce http2.ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, http2.ErrCodeProtocol, http2.ErrCode(ce))
}
