// Package cmd implements the knurl CLI commands using Cobra.
//
// Available commands:
//   - exec: Send a single request built from flags or a descriptor entry
//   - batch: Send every request in a descriptor file concurrently
//   - logs: Print telemetry stored in a SQLite log database
//   - validate: Check descriptor files without sending anything
//   - list: Display the requests defined in descriptor files
//   - version: Show knurl version information
//
// Flags take precedence over KNURL_* environment variables, which take
// precedence over the config file.
package cmd
