package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
	"github.com/abdul-hamid-achik/knurl/packages/telemetry"
)

// hop is the state of one attempt in the redirect chain.
type hop struct {
	url    *url.URL
	method string
	body   []byte
	header http.Header
	// host is the Host value to send, or "" for the URL authority.
	host string
}

func (h *hop) request(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, h.method, h.url.String(), bodyReader(h.body))
	if err != nil {
		return nil, apperror.Wrap(apperror.BadRequest, err, "Failed to build request")
	}
	req.Header = h.header.Clone()
	if h.host != "" {
		req.Host = h.host
	}
	return req, nil
}

func bodyReader(b []byte) io.Reader {
	if len(b) == 0 {
		return nil
	}
	return bytes.NewReader(b)
}

// redirectMethod applies the method rules for a redirect status.
func redirectMethod(status int, method string) string {
	switch status {
	case http.StatusSeeOther:
		return http.MethodGet
	case http.StatusMovedPermanently, http.StatusFound:
		if method == http.MethodGet || method == http.MethodHead {
			return method
		}
		return http.MethodGet
	default:
		return method
	}
}

// nextHop decides whether resp is followed. It returns nil when the chain
// ends here.
func nextHop(cur *hop, resp *http.Response, remaining int, log *telemetry.Logger) (*hop, error) {
	if remaining <= 0 || resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return nil, nil
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return nil, nil
	}
	ref, err := url.Parse(location)
	if err != nil {
		log.Warn("http", "redirect", fmt.Sprintf("Ignoring unparseable Location %q", location), telemetry.Details{
			"location": location,
			"error":    err.Error(),
		})
		return nil, nil
	}

	target := cur.url.ResolveReference(ref)
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, apperror.Newf(apperror.BadRequest, "Unsupported redirect target %q", target.String()).
			WithContext(map[string]string{"from": cur.url.String(), "location": location})
	}
	if target.Hostname() == "" {
		return nil, apperror.Newf(apperror.BadRequest, "Redirect target %q has no host", target.String())
	}

	next := &hop{
		url:    target,
		method: redirectMethod(resp.StatusCode, cur.method),
		body:   cur.body,
		header: cur.header.Clone(),
		host:   cur.host,
	}
	if next.method == http.MethodGet || next.method == http.MethodHead {
		next.body = nil
	}
	if !sameOrigin(cur.url, target) {
		next.host = ""
		stripped := stripCredentials(next.header)
		log.Info("http", "redirect_headers", "Stripped Authorization/Cookie headers due to cross-origin redirect", telemetry.Details{
			"from":     cur.url.String(),
			"to":       target.String(),
			"stripped": stripped,
		})
	}

	log.Info("http", "redirect", fmt.Sprintf("%s -> %s", cur.url, target), telemetry.Details{
		"status":    resp.StatusCode,
		"method":    next.method,
		"remaining": remaining - 1,
	})
	return next, nil
}
