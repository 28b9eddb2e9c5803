package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
)

// Config holds the defaults applied to requests started from the CLI.
// Files are only ever read.
type Config struct {
	Timeout         int               `json:"timeout,omitempty"` // milliseconds
	FollowRedirects *bool             `json:"followRedirects,omitempty"`
	MaxRedirects    int               `json:"maxRedirects,omitempty"`
	HTTPVersion     string            `json:"httpVersion,omitempty"`
	UserAgent       string            `json:"userAgent,omitempty"`
	Insecure        *bool             `json:"insecure,omitempty"`
	CAPath          string            `json:"caPath,omitempty"`
	DNSServer       string            `json:"dnsServer,omitempty"`
	SpoolThreshold  int64             `json:"spoolThreshold,omitempty"` // bytes
	SpoolDir        string            `json:"spoolDir,omitempty"`
	MaxLogBytes     int               `json:"maxLogBytes,omitempty"`
	Redact          *bool             `json:"redact,omitempty"`
	LogBodies       *bool             `json:"logBodies,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"` // Default headers for all requests
	Output          string            `json:"output,omitempty"`  // console or json
	LogDB           string            `json:"logDb,omitempty"`
	Concurrency     int               `json:"concurrency,omitempty"` // batch workers
	Rate            float64           `json:"rate,omitempty"`        // batch requests per second
	NoColor         *bool             `json:"noColor,omitempty"`
}

func boolPtr(b bool) *bool {
	return &b
}

// BoolPtr is exported version of boolPtr for external use
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to false
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, false)
}

// GetInsecure returns whether certificate validation is skipped, defaulting to false
func (c *Config) GetInsecure() bool {
	return getBool(c.Insecure, false)
}

func (c *Config) GetRedact() bool {
	return getBool(c.Redact, false)
}

// GetLogBodies returns whether bodies are logged, defaulting to true
func (c *Config) GetLogBodies() bool {
	return getBool(c.LogBodies, true)
}

func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// TimeoutDuration converts Timeout to a duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".knurl.config.json",
	"knurl.config.json",
	".knurlrc",
	".knurlrc.json",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperror.Wrap(apperror.IoError, err, fmt.Sprintf("Failed to read config file '%s'", path))
	}

	var file Config
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, apperror.Wrap(apperror.BadRequest, err, fmt.Sprintf("Invalid config file '%s'", path))
	}
	if err := file.validate(); err != nil {
		return nil, err
	}

	return DefaultConfig().Merge(&file), nil
}

func (c *Config) validate() error {
	switch {
	case c.Timeout < 0:
		return apperror.Newf(apperror.BadRequest, "timeout must not be negative, got %d", c.Timeout)
	case c.MaxRedirects < 0:
		return apperror.Newf(apperror.BadRequest, "maxRedirects must not be negative, got %d", c.MaxRedirects)
	case c.SpoolThreshold < 0:
		return apperror.Newf(apperror.BadRequest, "spoolThreshold must not be negative, got %d", c.SpoolThreshold)
	case c.Concurrency < 0:
		return apperror.Newf(apperror.BadRequest, "concurrency must not be negative, got %d", c.Concurrency)
	case c.Rate < 0:
		return apperror.Newf(apperror.BadRequest, "rate must not be negative, got %g", c.Rate)
	}
	switch c.Output {
	case "", "console", "json":
	default:
		return apperror.Newf(apperror.BadRequest, "output must be console or json, got %q", c.Output)
	}
	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.HTTPVersion != "" {
		result.HTTPVersion = other.HTTPVersion
	}
	if other.UserAgent != "" {
		result.UserAgent = other.UserAgent
	}
	if other.CAPath != "" {
		result.CAPath = other.CAPath
	}
	if other.DNSServer != "" {
		result.DNSServer = other.DNSServer
	}
	if other.SpoolThreshold > 0 {
		result.SpoolThreshold = other.SpoolThreshold
	}
	if other.SpoolDir != "" {
		result.SpoolDir = other.SpoolDir
	}
	if other.MaxLogBytes > 0 {
		result.MaxLogBytes = other.MaxLogBytes
	}
	if other.Output != "" {
		result.Output = other.Output
	}
	if other.LogDB != "" {
		result.LogDB = other.LogDB
	}
	if other.Concurrency > 0 {
		result.Concurrency = other.Concurrency
	}
	if other.Rate > 0 {
		result.Rate = other.Rate
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.Insecure != nil {
		result.Insecure = other.Insecure
	}
	if other.Redact != nil {
		result.Redact = other.Redact
	}
	if other.LogBodies != nil {
		result.LogBodies = other.LogBodies
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if len(other.Headers) > 0 {
		headers := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			headers[k] = v
		}
		for k, v := range other.Headers {
			headers[k] = v
		}
		result.Headers = headers
	}

	return &result
}
