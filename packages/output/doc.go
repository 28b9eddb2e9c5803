// Package output renders engine results.
//
// Supported output formats:
//   - Console: colored, human-readable responses, errors and telemetry
//   - JSON: machine-readable responses, errors and stored events
//   - JUnit: batch results as JUnit XML for CI integration
//
// ConsoleSink is a telemetry.Sink that prints the event stream curl-style.
package output
