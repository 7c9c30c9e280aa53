// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "BUREAU_UIA_CONFIG"

// Config is the configuration for bureau-uia.
type Config struct {
	// Homeserver identifies the server to authenticate against.
	Homeserver HomeserverConfig `yaml:"homeserver" json:"homeserver"`

	// Transport tunes the HTTP client.
	Transport TransportConfig `yaml:"transport" json:"transport"`

	// Auth configures the interactive flows.
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Credentials configures where login results are stored.
	Credentials CredentialsConfig `yaml:"credentials" json:"credentials"`

	// Logging configures the command logger.
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// HomeserverConfig identifies the homeserver.
type HomeserverConfig struct {
	// URL is the client-server API base URL. When empty, it is
	// discovered from ServerName via .well-known.
	URL string `yaml:"url" json:"url"`

	// ServerName is the Matrix server name (the part after the colon in
	// user IDs). Defaults to the host of URL.
	ServerName string `yaml:"server_name" json:"server_name"`
}

// TransportConfig tunes the HTTP client. Durations use time.ParseDuration
// syntax.
type TransportConfig struct {
	// RequestTimeout bounds each HTTP attempt.
	// Default: 60s
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`

	// RateLimitBaseDelay is the first backoff after a 429. Each retry
	// doubles it.
	// Default: 2s
	RateLimitBaseDelay string `yaml:"rate_limit_base_delay" json:"rate_limit_base_delay"`

	// RateLimitMaxDelay caps a single backoff, including server hints.
	// Default: 5m
	RateLimitMaxDelay string `yaml:"rate_limit_max_delay" json:"rate_limit_max_delay"`

	// MaxAttempts is the total number of attempts for a rate-limited
	// request.
	// Default: 5
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
}

// TransportDurations are the parsed durations of a TransportConfig.
type TransportDurations struct {
	RequestTimeout     time.Duration
	RateLimitBaseDelay time.Duration
	RateLimitMaxDelay  time.Duration
}

// AuthConfig configures the interactive flows.
type AuthConfig struct {
	// DeviceDisplayName is sent as initial_device_display_name on login
	// and registration.
	// Default: bureau-uia
	DeviceDisplayName string `yaml:"device_display_name" json:"device_display_name"`

	// Preference lists stage-ID groups in order. The first advertised
	// flow containing every stage of a group is chosen. Empty means the
	// built-in preference (BS-SPEKE, then password).
	Preference [][]string `yaml:"preference" json:"preference"`
}

// CredentialsConfig configures credential storage.
type CredentialsConfig struct {
	// Directory holds one file per account.
	// Default: ${HOME}/.local/state/bureau-uia/credentials
	Directory string `yaml:"directory" json:"directory"`

	// Recipients are age public keys. When set, stored credentials are
	// encrypted to them.
	Recipients []string `yaml:"recipients" json:"recipients"`

	// IdentityFile holds the age private key used to read sealed
	// credentials back.
	IdentityFile string `yaml:"identity_file" json:"identity_file"`
}

// LoggingConfig configures the command logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level" json:"level"`

	// Format is one of auto, text, json. Auto picks text on a terminal.
	// Default: auto
	Format string `yaml:"format" json:"format"`
}

// Default returns the configuration used as a base before the file is
// loaded, and by commands run without a config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Transport: TransportConfig{
			RequestTimeout:     "60s",
			RateLimitBaseDelay: "2s",
			RateLimitMaxDelay:  "5m",
			MaxAttempts:        5,
		},
		Auth: AuthConfig{
			DeviceDisplayName: "bureau-uia",
		},
		Credentials: CredentialsConfig{
			Directory: filepath.Join(homeDir, ".local", "state", "bureau-uia", "credentials"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads configuration from the file named by BUREAU_UIA_CONFIG.
// There is no discovery: if the variable is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path. Files ending in .json or .jsonc
// are parsed as JSON with comments and trailing commas; anything else is
// YAML. Only path fields are expanded; environment variables never
// override other values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	cfg.applyDerivedDefaults()
	return cfg, nil
}

// loadFile merges the file at path into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return nil
}

// applyDerivedDefaults fills fields that default from other fields.
func (c *Config) applyDerivedDefaults() {
	if c.Homeserver.ServerName == "" && c.Homeserver.URL != "" {
		if parsed, err := url.Parse(c.Homeserver.URL); err == nil {
			c.Homeserver.ServerName = parsed.Hostname()
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Credentials.Directory = expandVars(c.Credentials.Directory, vars)
	c.Credentials.IdentityFile = expandVars(c.Credentials.IdentityFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Durations parses the transport durations.
func (t TransportConfig) Durations() (TransportDurations, error) {
	var durations TransportDurations
	fields := []struct {
		name   string
		value  string
		target *time.Duration
	}{
		{"transport.request_timeout", t.RequestTimeout, &durations.RequestTimeout},
		{"transport.rate_limit_base_delay", t.RateLimitBaseDelay, &durations.RateLimitBaseDelay},
		{"transport.rate_limit_max_delay", t.RateLimitMaxDelay, &durations.RateLimitMaxDelay},
	}
	var errs []error
	for _, field := range fields {
		parsed, err := time.ParseDuration(field.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field.name, err))
			continue
		}
		if parsed <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", field.name, field.value))
			continue
		}
		*field.target = parsed
	}
	return durations, errors.Join(errs...)
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"auto", "text", "json"}
)

// Validate checks the configuration for errors. requireHomeserver is false
// for commands that never contact a server.
func (c *Config) Validate(requireHomeserver bool) error {
	var errs []error

	if c.Homeserver.URL != "" {
		parsed, err := url.Parse(c.Homeserver.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("homeserver.url must be an http or https URL, got %q", c.Homeserver.URL))
		}
	} else if requireHomeserver && c.Homeserver.ServerName == "" {
		errs = append(errs, fmt.Errorf("homeserver.url or homeserver.server_name is required"))
	}

	if _, err := c.Transport.Durations(); err != nil {
		errs = append(errs, err)
	}
	if c.Transport.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("transport.max_attempts must be at least 1, got %d", c.Transport.MaxAttempts))
	}

	for index, group := range c.Auth.Preference {
		if len(group) == 0 {
			errs = append(errs, fmt.Errorf("auth.preference[%d] is empty", index))
		}
	}

	if c.Credentials.Directory == "" {
		errs = append(errs, fmt.Errorf("credentials.directory is required"))
	}
	for index, recipient := range c.Credentials.Recipients {
		if !strings.HasPrefix(recipient, "age1") {
			errs = append(errs, fmt.Errorf("credentials.recipients[%d] is not an age public key", index))
		}
	}

	if !slices.Contains(logLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", logFormats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the credentials directory with owner-only access.
func (c *Config) EnsurePaths() error {
	if err := os.MkdirAll(c.Credentials.Directory, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Credentials.Directory, err)
	}
	return nil
}
