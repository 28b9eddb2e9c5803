// Package capture extracts values from responses.
//
// It supports capturing values from:
//   - Response body (whole, or a gjson path into JSON bodies)
//   - Response headers and cookies
//   - Response status code, duration and size
//
// Spooled bodies are read back from their file.
package capture
