package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:         30000, // 30 seconds
		FollowRedirects: boolPtr(false),
		MaxRedirects:    10,
		HTTPVersion:     "auto",
		Insecure:        boolPtr(false),
		SpoolThreshold:  20 * 1024 * 1024,
		MaxLogBytes:     128 * 1024,
		Redact:          boolPtr(false),
		LogBodies:       boolPtr(true),
		Output:          "console",
		Concurrency:     5,
		NoColor:         boolPtr(false),
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	d := DefaultConfig()
	return c.Timeout == d.Timeout &&
		c.GetFollowRedirects() == d.GetFollowRedirects() &&
		c.MaxRedirects == d.MaxRedirects &&
		c.HTTPVersion == d.HTTPVersion &&
		c.UserAgent == d.UserAgent &&
		c.GetInsecure() == d.GetInsecure() &&
		c.CAPath == d.CAPath &&
		c.DNSServer == d.DNSServer &&
		c.SpoolThreshold == d.SpoolThreshold &&
		c.SpoolDir == d.SpoolDir &&
		c.MaxLogBytes == d.MaxLogBytes &&
		c.GetRedact() == d.GetRedact() &&
		c.GetLogBodies() == d.GetLogBodies() &&
		len(c.Headers) == 0 &&
		c.Output == d.Output &&
		c.LogDB == d.LogDB &&
		c.Concurrency == d.Concurrency &&
		c.Rate == d.Rate &&
		c.GetNoColor() == d.GetNoColor()
}
