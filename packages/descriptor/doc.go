// Package descriptor loads request descriptor files.
//
// A descriptor is a YAML (or JSON) document with a top-level requests list.
// Documents are validated against an embedded JSON schema before they are
// converted into engine requests.
package descriptor
