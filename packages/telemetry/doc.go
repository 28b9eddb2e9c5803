// Package telemetry defines the diagnostic event stream produced while a
// request executes and the sinks that consume it.
//
// Every event carries the request id, a UTC timestamp, a level, a
// category/phase pair such as "dns"/"override_hit" and the milliseconds
// elapsed since the request started. Body previews are capped by the
// request's logging policy and credential headers can be redacted.
//
// Sinks are best effort. Emit never returns an error and a failing sink
// never fails the request.
package telemetry
