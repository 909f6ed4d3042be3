package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Timeout:      30000, // 30 seconds
		MaxRedirects: 20,
		DialTimeout:  10000,
		Compression:  BoolPtr(true),
		Insecure:     BoolPtr(false),
		UserAgent:    "hitfetch",
		DNSCacheSize: 4096,
		HistoryPath:  ".hitfetch/history.db",
		NoColor:      BoolPtr(false),
		Verbose:      BoolPtr(false),
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.Timeout == defaults.Timeout &&
		c.MaxSize == defaults.MaxSize &&
		c.MaxRedirects == defaults.MaxRedirects &&
		c.DialTimeout == defaults.DialTimeout &&
		c.GetCompression() == defaults.GetCompression() &&
		c.GetInsecure() == defaults.GetInsecure() &&
		c.UserAgent == defaults.UserAgent &&
		len(c.Headers) == 0 &&
		c.DNSCacheSize == defaults.DNSCacheSize &&
		c.DNSMinTTL == defaults.DNSMinTTL &&
		len(c.DNSServers) == 0 &&
		c.EnvFile == defaults.EnvFile &&
		c.HistoryPath == defaults.HistoryPath &&
		c.GetNoColor() == defaults.GetNoColor() &&
		c.GetVerbose() == defaults.GetVerbose()
}
