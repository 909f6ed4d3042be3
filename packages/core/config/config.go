package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Config represents the hitfetch configuration
type Config struct {
	Timeout      int64             `json:"timeout,omitempty" validate:"gte=0"`      // milliseconds, 0 means none
	MaxSize      int64             `json:"maxSize,omitempty" validate:"gte=0"`      // bytes, 0 means unlimited
	MaxRedirects int               `json:"maxRedirects,omitempty" validate:"gte=0,lte=100"`
	DialTimeout  int64             `json:"dialTimeout,omitempty" validate:"gte=0"`  // milliseconds
	Compression  *bool             `json:"compression,omitempty"`
	Insecure     *bool             `json:"insecure,omitempty"`
	UserAgent    string            `json:"userAgent,omitempty"`
	Headers      map[string]string `json:"headers,omitempty" validate:"dive,keys,required,endkeys"` // Default headers for all requests

	DNSCacheSize int      `json:"dnsCacheSize,omitempty" validate:"gte=0"`
	DNSMinTTL    int64    `json:"dnsMinTTL,omitempty" validate:"gte=0"` // milliseconds
	DNSServers   []string `json:"dnsServers,omitempty" validate:"dive,hostname_port|ip"`

	EnvFile     string `json:"envFile,omitempty"`
	HistoryPath string `json:"historyPath,omitempty"`
	NoColor     *bool  `json:"noColor,omitempty"`
	Verbose     *bool  `json:"verbose,omitempty"`
}

// BoolPtr returns a pointer to b.
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

// GetCompression returns the compression setting, defaulting to true
func (c *Config) GetCompression() bool {
	return getBool(c.Compression, true)
}

// GetInsecure returns whether certificate validation is skipped, defaulting to false
func (c *Config) GetInsecure() bool {
	return getBool(c.Insecure, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".hitfetch.json",
	"hitfetch.config.json",
	".hitfetchrc",
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

	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}

	return config, nil
}

var validate = validator.New()

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "gte":
			msgs = append(msgs, fmt.Sprintf("field '%s' must be greater than or equal to %s", e.Field(), e.Param()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("field '%s' must be less than or equal to %s", e.Field(), e.Param()))
		case "required":
			msgs = append(msgs, fmt.Sprintf("field '%s' must not be empty", e.Field()))
		case "hostname_port|ip":
			msgs = append(msgs, fmt.Sprintf("field '%s' must be an IP or host:port, got %q", e.Field(), e.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("field '%s' failed on the '%s' tag", e.Field(), e.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, ", "))
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c

	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.MaxSize > 0 {
		result.MaxSize = other.MaxSize
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.DialTimeout > 0 {
		result.DialTimeout = other.DialTimeout
	}
	if other.UserAgent != "" {
		result.UserAgent = other.UserAgent
	}
	if other.DNSCacheSize > 0 {
		result.DNSCacheSize = other.DNSCacheSize
	}
	if other.DNSMinTTL > 0 {
		result.DNSMinTTL = other.DNSMinTTL
	}
	if len(other.DNSServers) > 0 {
		result.DNSServers = other.DNSServers
	}
	if other.EnvFile != "" {
		result.EnvFile = other.EnvFile
	}
	if other.HistoryPath != "" {
		result.HistoryPath = other.HistoryPath
	}

	// Boolean flags - only override if explicitly set in other config
	if other.Compression != nil {
		result.Compression = other.Compression
	}
	if other.Insecure != nil {
		result.Insecure = other.Insecure
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}

	if len(other.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(other.Headers))
		for k, v := range result.Headers {
			merged[k] = v
		}
		for k, v := range other.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}

	return &result
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
