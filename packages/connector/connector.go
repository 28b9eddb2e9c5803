package connector

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

// DefaultConnectTimeout bounds each TCP connect attempt.
const DefaultConnectTimeout = 10 * time.Second

// Protocol is the HTTP version preference of a request.
type Protocol string

const (
	ProtocolAuto  Protocol = "auto"
	ProtocolHTTP1 Protocol = "http1"
	ProtocolHTTP2 Protocol = "http2"
)

// ParseProtocol accepts auto, http1 and http2 along with a few common
// spellings. Empty input is auto.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ProtocolAuto, nil
	case "http1", "http/1.1", "1.1", "h1":
		return ProtocolHTTP1, nil
	case "http2", "http/2", "2", "h2":
		return ProtocolHTTP2, nil
	}
	return "", apperror.Newf(apperror.BadRequest, "Unsupported HTTP version %q", s)
}

// ALPN returns the protocols offered during the TLS handshake.
func (p Protocol) ALPN() []string {
	switch p {
	case ProtocolHTTP1:
		return []string{"http/1.1"}
	case ProtocolHTTP2:
		return []string{http2.NextProtoTLS}
	default:
		return []string{http2.NextProtoTLS, "http/1.1"}
	}
}

// AllowsHTTP2 reports whether HTTP/2 may be negotiated.
func (p Protocol) AllowsHTTP2() bool {
	return p != ProtocolHTTP1
}

// Options describes the connection a request needs.
type Options struct {
	URL            *url.URL
	IPOverride     string
	DNSServer      string
	Insecure       bool
	CAPath         string
	Protocol       Protocol
	ConnectTimeout time.Duration
}

// Connector is the per-execution transport. It owns its connections and
// never shares them with other executions.
type Connector struct {
	host     string
	port     string
	protocol Protocol
	resolver *Resolver
	dialer   *Dialer

	http1 *http.Transport
	h2    *http2.Transport
	h2c   *http2.Transport
}

// New validates opts and builds a connector for them.
func New(opts Options, log *telemetry.Logger) (*Connector, error) {
	if log == nil {
		log = telemetry.NewLogger(nil, "", telemetry.Policy{})
	}
	if opts.URL == nil || opts.URL.Hostname() == "" {
		return nil, apperror.New(apperror.BadRequest, "URL missing host")
	}
	if opts.Protocol == "" {
		opts.Protocol = ProtocolAuto
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	host := opts.URL.Hostname()
	port := DefaultPort(opts.URL)

	resolver, err := NewResolver(host, opts.IPOverride, opts.DNSServer, log)
	if err != nil {
		return nil, err
	}
	tlsConfig, err := BuildTLSConfig(opts.Protocol, opts.Insecure, opts.CAPath, log)
	if err != nil {
		return nil, err
	}

	d := &Dialer{
		resolver: resolver,
		tls:      tlsConfig,
		protocol: opts.Protocol,
		net:      net.Dialer{Timeout: opts.ConnectTimeout},
		log:      log,
	}
	c := &Connector{
		host:     host,
		port:     port,
		protocol: opts.Protocol,
		resolver: resolver,
		dialer:   d,
	}

	switch opts.Protocol {
	case ProtocolHTTP2:
		c.h2 = &http2.Transport{
			DialTLSContext:     d.dialH2,
			TLSClientConfig:    tlsConfig,
			DisableCompression: true,
		}
		c.h2c = &http2.Transport{
			AllowHTTP:          true,
			DialTLSContext:     d.dialH2C,
			DisableCompression: true,
		}
	case ProtocolHTTP1:
		c.http1 = newHTTP1Transport(d, tlsConfig)
		c.http1.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	default:
		c.http1 = newHTTP1Transport(d, tlsConfig)
		if _, err := http2.ConfigureTransports(c.http1); err != nil {
			return nil, apperror.Wrap(apperror.HttpError, err, "Failed to configure HTTP/2 transport")
		}
	}

	log.Debug("connect", "connector", fmt.Sprintf("Connector ready for %s (%s)", c.Addr(), opts.Protocol), telemetry.Details{
		"address":  c.Addr(),
		"protocol": string(opts.Protocol),
	})
	return c, nil
}

func newHTTP1Transport(d *Dialer, tlsConfig *tls.Config) *http.Transport {
	return &http.Transport{
		DialContext:         d.DialContext,
		DialTLSContext:      d.DialTLSContext,
		TLSClientConfig:     tlsConfig,
		DisableCompression:  true,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     30 * time.Second,
	}
}

// DefaultPort returns the explicit port of u, else the scheme default.
func DefaultPort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	if strings.EqualFold(u.Scheme, "https") {
		return "443"
	}
	return "80"
}

// Addr is the target host:port.
func (c *Connector) Addr() string {
	return net.JoinHostPort(c.host, c.port)
}

func (c *Connector) Protocol() Protocol {
	return c.protocol
}

func (c *Connector) Resolver() *Resolver {
	return c.resolver
}

// RoundTrip sends req over the transport matching the protocol
// preference and the URL scheme.
func (c *Connector) RoundTrip(req *http.Request) (*http.Response, error) {
	if c.protocol == ProtocolHTTP2 {
		if strings.EqualFold(req.URL.Scheme, "https") {
			return c.h2.RoundTrip(req)
		}
		return c.h2c.RoundTrip(req)
	}
	return c.http1.RoundTrip(req)
}

// Close releases idle connections.
func (c *Connector) Close() {
	if c.http1 != nil {
		c.http1.CloseIdleConnections()
	}
	if c.h2 != nil {
		c.h2.CloseIdleConnections()
	}
	if c.h2c != nil {
		c.h2c.CloseIdleConnections()
	}
}
