// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// UserID is a validated Matrix user ID (e.g., "@alice:example.org"). The
// zero value is not valid; use IsZero to check.
type UserID struct {
	id string
}

// ParseUserID validates and wraps a raw Matrix user ID string.
func ParseUserID(raw string) (UserID, error) {
	if _, _, err := parseMatrixID(raw); err != nil {
		return UserID{}, err
	}
	return UserID{id: raw}, nil
}

// NewUserID builds "@localpart:server" after validating the localpart
// against the Matrix user ID grammar.
func NewUserID(localpart string, server ServerName) (UserID, error) {
	if server.IsZero() {
		return UserID{}, fmt.Errorf("user ID for %q: server name is empty", localpart)
	}
	if err := ValidateLocalpart(localpart); err != nil {
		return UserID{}, err
	}
	return UserID{id: "@" + localpart + ":" + server.name}, nil
}

// String returns the full user ID.
func (u UserID) String() string { return u.id }

// IsZero reports whether the UserID is unset.
func (u UserID) IsZero() bool { return u.id == "" }

// Localpart returns the portion between '@' and ':'. Panics on the zero
// value.
func (u UserID) Localpart() string {
	localpart, _ := u.mustSplit()
	return localpart
}

// Server returns the server name after the first ':'. Panics on the zero
// value.
func (u UserID) Server() ServerName {
	_, server := u.mustSplit()
	return ServerName{name: server}
}

func (u UserID) mustSplit() (string, string) {
	if u.id == "" {
		panic("ref: UserID used as zero value")
	}
	localpart, server, err := parseMatrixID(u.id)
	if err != nil {
		panic(fmt.Sprintf("ref: UserID %q failed to re-parse: %v", u.id, err))
	}
	return localpart, server
}

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) {
	return []byte(u.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields
// the zero value.
func (u *UserID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = UserID{}
		return nil
	}
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
