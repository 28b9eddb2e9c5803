package connector

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

// DefaultDNSTimeout bounds each query sent to a custom DNS server.
const DefaultDNSTimeout = 5 * time.Second

// Resolver maps host names to addresses. Lookups of the target host are
// short-circuited to the IP override when one is configured.
type Resolver struct {
	host     string
	override netip.Addr
	server   string
	system   *net.Resolver
	client   *dns.Client
	log      *telemetry.Logger
}

// ParseIPOverride parses an override address. Empty or blank input means
// no override.
func ParseIPOverride(raw string) (netip.Addr, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return netip.Addr{}, nil
	}
	addr, err := netip.ParseAddr(strings.Trim(raw, "[]"))
	if err != nil {
		return netip.Addr{}, apperror.Newf(apperror.BadRequest, "Invalid IP override %q", raw)
	}
	return addr.Unmap(), nil
}

// NewResolver builds a resolver for targetHost. dnsServer, when set, is a
// host or host:port queried directly instead of the system resolver.
func NewResolver(targetHost, ipOverride, dnsServer string, log *telemetry.Logger) (*Resolver, error) {
	override, err := ParseIPOverride(ipOverride)
	if err != nil {
		return nil, err
	}
	r := &Resolver{
		host:     strings.ToLower(strings.Trim(targetHost, "[]")),
		override: override,
		system:   net.DefaultResolver,
		log:      log,
	}
	if override.IsValid() {
		log.Info("dns", "override", fmt.Sprintf("Using IP override %s for %s", override, targetHost), telemetry.Details{
			"host": targetHost,
			"ip":   override.String(),
		})
	}
	if server := strings.TrimSpace(dnsServer); server != "" {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(strings.Trim(server, "[]"), "53")
		}
		r.server = server
		r.client = &dns.Client{Timeout: DefaultDNSTimeout}
		log.Debug("dns", "server", "Using DNS server "+server, telemetry.Details{"server": server})
	}
	return r, nil
}

// Override returns the configured override, if any.
func (r *Resolver) Override() (netip.Addr, bool) {
	return r.override, r.override.IsValid()
}

// Resolve returns the addresses for host in preference order.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	name := strings.ToLower(strings.Trim(host, "[]"))
	if r.override.IsValid() && name == r.host {
		r.log.Info("dns", "override_hit", fmt.Sprintf("Resolved %s to override %s", host, r.override), telemetry.Details{
			"host": host,
			"ip":   r.override.String(),
		})
		return []netip.Addr{r.override}, nil
	}
	if addr, err := netip.ParseAddr(name); err == nil {
		return []netip.Addr{addr.Unmap()}, nil
	}

	var (
		addrs []netip.Addr
		err   error
	)
	if r.client != nil {
		addrs, err = r.exchange(ctx, name)
	} else {
		addrs, err = r.system.LookupNetIP(ctx, "ip", name)
	}
	if err == nil && len(addrs) == 0 {
		err = fmt.Errorf("no addresses found for %s", host)
	}
	if err != nil {
		r.log.Error("dns", "error", fmt.Sprintf("DNS resolution failed for %s: %v", host, err), telemetry.Details{
			"host":  host,
			"error": err.Error(),
		})
		return nil, apperror.Wrap(apperror.IoError, err, fmt.Sprintf("Failed to resolve %s", host))
	}

	for i := range addrs {
		addrs[i] = addrs[i].Unmap()
	}
	r.logResolved(host, addrs)
	return addrs, nil
}

func (r *Resolver) exchange(ctx context.Context, name string) ([]netip.Addr, error) {
	var (
		out     []netip.Addr
		lastErr error
	)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(name), qtype)
		m.RecursionDesired = true

		resp, _, err := r.client.ExchangeContext(ctx, m, r.server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("%s query for %s: %s", dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
			continue
		}
		for _, rr := range resp.Answer {
			switch v := rr.(type) {
			case *dns.A:
				if a, ok := netip.AddrFromSlice(v.A); ok {
					out = append(out, a.Unmap())
				}
			case *dns.AAAA:
				if a, ok := netip.AddrFromSlice(v.AAAA); ok {
					out = append(out, a)
				}
			}
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func (r *Resolver) logResolved(host string, addrs []netip.Addr) {
	var v4, v6, all []string
	for _, a := range addrs {
		all = append(all, a.String())
		if a.Is4() {
			v4 = append(v4, a.String())
		} else {
			v6 = append(v6, a.String())
		}
	}
	r.log.Debug("dns", "resolved", fmt.Sprintf("Resolved %s to %s", host, strings.Join(all, ", ")), telemetry.Details{
		"host":      host,
		"addresses": all,
	})
	if len(v6) > 0 {
		r.log.Debug("dns", "ipv6", "IPv6: "+strings.Join(v6, ", "), telemetry.Details{"addresses": v6})
	}
	if len(v4) > 0 {
		r.log.Debug("dns", "ipv4", "IPv4: "+strings.Join(v4, ", "), telemetry.Details{"addresses": v4})
	}
}
