// Package connector builds the per-request transport: address resolution
// with an optional IP override or DNS server, TCP and TLS dialing, ALPN
// selection and the HTTP/1.1, HTTP/2 and h2c round trippers.
//
// It also decodes the peer certificate chain of every TLS connection it
// opens and reports it through the request's telemetry logger.
package connector
