// Package config loads the optional knurl configuration file.
//
// It provides functionality for:
//   - Locating .knurl.config.json, knurl.config.json, .knurlrc or .knurlrc.json
//   - Default values for timeouts, redirects, TLS, spooling and logging
//   - Merging file values over defaults
//
// Configuration is read-only; knurl never writes settings.
package config
