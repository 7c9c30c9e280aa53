// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"net/url"
)

// ServerName is a validated Matrix server name (e.g., "example.org",
// "matrix.example.org:8448").
type ServerName struct {
	name string
}

// ParseServerName validates and wraps a raw server name.
func ParseServerName(raw string) (ServerName, error) {
	if err := validateServer(raw); err != nil {
		return ServerName{}, err
	}
	return ServerName{name: raw}, nil
}

// MustParseServerName is ParseServerName for known-valid input in tests
// and static initialization.
func MustParseServerName(raw string) ServerName {
	server, err := ParseServerName(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseServerName(%q): %v", raw, err))
	}
	return server
}

// ServerNameFromURL returns the host (including any explicit port) of a
// homeserver base URL.
func ServerNameFromURL(rawURL string) (ServerName, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ServerName{}, fmt.Errorf("parsing homeserver URL %q: %w", rawURL, err)
	}
	if parsed.Host == "" {
		return ServerName{}, fmt.Errorf("homeserver URL %q has no host", rawURL)
	}
	return ParseServerName(parsed.Host)
}

// String returns the server name.
func (s ServerName) String() string { return s.name }

// IsZero reports whether the ServerName is unset.
func (s ServerName) IsZero() bool { return s.name == "" }

// MarshalText implements encoding.TextMarshaler.
func (s ServerName) MarshalText() ([]byte, error) {
	return []byte(s.name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields
// the zero value.
func (s *ServerName) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*s = ServerName{}
		return nil
	}
	parsed, err := ParseServerName(string(data))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
