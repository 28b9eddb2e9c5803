package connector

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/net/http2"

	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

// Dialer opens TCP and TLS connections through a Resolver, trying each
// resolved address in order.
type Dialer struct {
	resolver *Resolver
	tls      *tls.Config
	protocol Protocol
	net      net.Dialer
	log      *telemetry.Logger
}

// DialContext resolves the host part of addr and connects to the first
// address that accepts.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	addrs, err := d.resolver.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, ip := range addrs {
		target := netip.AddrPortFrom(ip, uint16(port)).String()
		d.log.Debug("connect", "trying", "Trying "+target+"...", telemetry.Details{"address": target})

		conn, err := d.net.DialContext(ctx, "tcp", target)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		d.log.Info("connect", "tcp", fmt.Sprintf("Connected to %s (%s) port %d", host, ip, port), telemetry.Details{
			"local":  conn.LocalAddr().String(),
			"remote": conn.RemoteAddr().String(),
		})
		return conn, nil
	}
	return nil, fmt.Errorf("connect to %s: %w", addr, errors.Join(errs...))
}

// DialTLSContext dials addr and performs the TLS handshake, then records
// the negotiated session. In HTTP/2-only mode a server that does not
// select h2 fails the dial with a PROTOCOL_ERROR connection error.
func (d *Dialer) DialTLSContext(ctx context.Context, network, addr string) (net.Conn, error) {
	raw, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)

	cfg := d.tls.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	conn := tls.Client(raw, cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		d.log.Error("tls", "handshake", "TLS handshake failed: "+err.Error(), telemetry.Details{"error": err.Error()})
		return nil, err
	}

	state := conn.ConnectionState()
	Report(d.log, InspectState(state))

	if d.protocol == ProtocolHTTP2 && state.NegotiatedProtocol != http2.NextProtoTLS {
		conn.Close()
		return nil, fmt.Errorf("server negotiated %q instead of h2: %w",
			state.NegotiatedProtocol, http2.ConnectionError(http2.ErrCodeProtocol))
	}
	return conn, nil
}

// dialH2 adapts DialTLSContext to the x/net/http2 Transport signature.
func (d *Dialer) dialH2(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
	return d.DialTLSContext(ctx, network, addr)
}

// dialH2C dials cleartext connections for prior-knowledge HTTP/2.
func (d *Dialer) dialH2C(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
	return d.DialContext(ctx, network, addr)
}
