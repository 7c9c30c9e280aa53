// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/uia/lib/testutil"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Transport.MaxAttempts != 5 {
		t.Errorf("expected max_attempts=5, got %d", cfg.Transport.MaxAttempts)
	}
	if cfg.Auth.DeviceDisplayName != "bureau-uia" {
		t.Errorf("expected device_display_name=bureau-uia, got %s", cfg.Auth.DeviceDisplayName)
	}
	if !strings.HasSuffix(cfg.Credentials.Directory, filepath.Join("bureau-uia", "credentials")) {
		t.Errorf("unexpected credentials directory %s", cfg.Credentials.Directory)
	}

	durations, err := cfg.Transport.Durations()
	if err != nil {
		t.Fatalf("default durations do not parse: %v", err)
	}
	if durations.RateLimitBaseDelay != 2*time.Second || durations.RateLimitMaxDelay != 5*time.Minute {
		t.Errorf("durations = %+v", durations)
	}

	// Defaults pass validation when no server is needed.
	if err := cfg.Validate(false); err != nil {
		t.Errorf("Validate(false) on defaults: %v", err)
	}
	if err := cfg.Validate(true); err == nil {
		t.Error("Validate(true) accepted a config without a homeserver")
	}
}

func TestLoad_RequiresEnvVar(t *testing.T) {
	t.Setenv(EnvVar, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when BUREAU_UIA_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "BUREAU_UIA_CONFIG environment variable not set") {
		t.Errorf("unexpected error message %q", err.Error())
	}
}

func TestLoad_WithEnvVar(t *testing.T) {
	configPath := testutil.WriteFile(t, "uia.yaml", `
homeserver:
  url: https://matrix.example.org
`)
	t.Setenv(EnvVar, configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Homeserver.URL != "https://matrix.example.org" {
		t.Errorf("expected url=https://matrix.example.org, got %s", cfg.Homeserver.URL)
	}
	// server_name defaults to the URL host.
	if cfg.Homeserver.ServerName != "matrix.example.org" {
		t.Errorf("expected server_name=matrix.example.org, got %s", cfg.Homeserver.ServerName)
	}
}

func TestLoadFileYAML(t *testing.T) {
	configPath := testutil.WriteFile(t, "uia.yaml", `
homeserver:
  url: http://localhost:8008
  server_name: example.org

transport:
  request_timeout: 10s
  max_attempts: 3

auth:
  device_display_name: laptop
  preference:
    - [m.login.password]

credentials:
  directory: /var/lib/uia
  recipients:
    - age1ql3z7hjy54pw3hyww5ayyfg7zqgvc7w3j2elw8zmrj2kg5sfn9aqmcac8p

logging:
  level: debug
  format: json
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Homeserver.ServerName != "example.org" {
		t.Errorf("expected server_name=example.org, got %s", cfg.Homeserver.ServerName)
	}
	if cfg.Transport.MaxAttempts != 3 || cfg.Transport.RequestTimeout != "10s" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	// Unset fields keep their defaults.
	if cfg.Transport.RateLimitBaseDelay != "2s" {
		t.Errorf("expected rate_limit_base_delay=2s, got %s", cfg.Transport.RateLimitBaseDelay)
	}
	if len(cfg.Auth.Preference) != 1 || cfg.Auth.Preference[0][0] != "m.login.password" {
		t.Errorf("preference = %v", cfg.Auth.Preference)
	}
	if cfg.Credentials.Directory != "/var/lib/uia" || len(cfg.Credentials.Recipients) != 1 {
		t.Errorf("credentials = %+v", cfg.Credentials)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if err := cfg.Validate(true); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadFileJSONC(t *testing.T) {
	configPath := testutil.WriteFile(t, "uia.jsonc", `{
	// Local development server.
	"homeserver": {"url": "http://localhost:8008"},
	"transport": {
		"max_attempts": 2, /* fewer retries */
	},
}`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Homeserver.URL != "http://localhost:8008" || cfg.Homeserver.ServerName != "localhost" {
		t.Errorf("homeserver = %+v", cfg.Homeserver)
	}
	if cfg.Transport.MaxAttempts != 2 {
		t.Errorf("expected max_attempts=2, got %d", cfg.Transport.MaxAttempts)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile accepted a missing file")
	}
	badYAML := testutil.WriteFile(t, "bad.yaml", "homeserver: [unclosed")
	if _, err := LoadFile(badYAML); err == nil {
		t.Error("LoadFile accepted malformed YAML")
	}
	badJSON := testutil.WriteFile(t, "bad.json", `{"homeserver": 7}`)
	if _, err := LoadFile(badJSON); err == nil {
		t.Error("LoadFile accepted a mistyped JSON field")
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("UIA_TEST_DIR", "/from/env")
	vars := map[string]string{"HOME": "/home/alice"}

	tests := []struct {
		input string
		want  string
	}{
		{"${HOME}/creds", "/home/alice/creds"},
		{"${UIA_TEST_DIR}/creds", "/from/env/creds"},
		{"${UIA_TEST_UNSET:-/fallback}/creds", "/fallback/creds"},
		{"/plain/path", "/plain/path"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestLoadFileExpandsPaths(t *testing.T) {
	t.Setenv("HOME", "/home/alice")
	configPath := testutil.WriteFile(t, "uia.yaml", `
credentials:
  directory: ${HOME}/uia
  identity_file: ${HOME}/.age/key.txt
`)
	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Credentials.Directory != "/home/alice/uia" {
		t.Errorf("directory = %s", cfg.Credentials.Directory)
	}
	if cfg.Credentials.IdentityFile != "/home/alice/.age/key.txt" {
		t.Errorf("identity_file = %s", cfg.Credentials.IdentityFile)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad scheme", func(c *Config) { c.Homeserver.URL = "ftp://example.org" }, "homeserver.url"},
		{"bad duration", func(c *Config) { c.Transport.RequestTimeout = "soon" }, "transport.request_timeout"},
		{"negative duration", func(c *Config) { c.Transport.RateLimitMaxDelay = "-1s" }, "transport.rate_limit_max_delay"},
		{"zero attempts", func(c *Config) { c.Transport.MaxAttempts = 0 }, "transport.max_attempts"},
		{"empty preference group", func(c *Config) { c.Auth.Preference = [][]string{{}} }, "auth.preference[0]"},
		{"no directory", func(c *Config) { c.Credentials.Directory = "" }, "credentials.directory"},
		{"bad recipient", func(c *Config) { c.Credentials.Recipients = []string{"ssh-ed25519 AAAA"} }, "credentials.recipients[0]"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			cfg.Homeserver.URL = "https://matrix.example.org"
			test.mutate(cfg)
			err := cfg.Validate(true)
			if err == nil {
				t.Fatal("Validate accepted an invalid config")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not mention %s", err, test.want)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	cfg := Default()
	cfg.Credentials.Directory = filepath.Join(t.TempDir(), "nested", "credentials")
	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths is not idempotent: %v", err)
	}
}
