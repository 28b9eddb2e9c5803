// Package http is the knurl request engine. It executes one fully described
// HTTP request at a time over connections it builds itself, follows
// redirects under its own rules, retries once over HTTP/1.1 when an HTTP/2
// exchange fails with a protocol error, and streams large response bodies
// to disk. Every step is reported as telemetry events scoped to the
// request id.
package http
