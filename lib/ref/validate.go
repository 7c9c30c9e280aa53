// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// maxUserIDLength is the Matrix limit on a complete user ID.
const maxUserIDLength = 255

// localpartChars is the set permitted in user ID localparts by the Matrix
// grammar: a-z, 0-9, and . _ = - / +.
var localpartChars [256]bool

func init() {
	for c := byte('a'); c <= 'z'; c++ {
		localpartChars[c] = true
	}
	for c := byte('0'); c <= '9'; c++ {
		localpartChars[c] = true
	}
	for _, c := range []byte("._=-/+") {
		localpartChars[c] = true
	}
}

// ValidateLocalpart checks a bare username against the Matrix localpart
// grammar. Registration's username stage uses it to reject input before
// it reaches the homeserver.
func ValidateLocalpart(localpart string) error {
	if localpart == "" {
		return fmt.Errorf("localpart is empty")
	}
	if len(localpart) > maxUserIDLength {
		return fmt.Errorf("localpart is %d characters, maximum is %d", len(localpart), maxUserIDLength)
	}
	for i := 0; i < len(localpart); i++ {
		if !localpartChars[localpart[i]] {
			return fmt.Errorf("localpart %q: invalid character %q at position %d", localpart, localpart[i], i)
		}
	}
	return nil
}

func validateServer(server string) error {
	if server == "" {
		return fmt.Errorf("server name is empty")
	}
	for i := 0; i < len(server); i++ {
		c := server[i]
		if c <= ' ' || c == '@' || c == '#' || c == '/' {
			return fmt.Errorf("server name %q: invalid character at position %d", server, i)
		}
	}
	return nil
}

// parseMatrixID splits "@localpart:server".
func parseMatrixID(matrixID string) (localpart, server string, err error) {
	if len(matrixID) > maxUserIDLength {
		return "", "", fmt.Errorf("invalid Matrix user ID: %d characters, maximum is %d", len(matrixID), maxUserIDLength)
	}
	if len(matrixID) < 2 || matrixID[0] != '@' {
		return "", "", fmt.Errorf("invalid Matrix user ID %q: must start with @", matrixID)
	}
	colonIndex := strings.IndexByte(matrixID, ':')
	if colonIndex < 0 {
		return "", "", fmt.Errorf("invalid Matrix user ID %q: missing :server", matrixID)
	}
	if colonIndex == 1 {
		return "", "", fmt.Errorf("invalid Matrix user ID %q: empty localpart", matrixID)
	}
	localpart = matrixID[1:colonIndex]
	server = matrixID[colonIndex+1:]
	if err := validateServer(server); err != nil {
		return "", "", fmt.Errorf("invalid Matrix user ID %q: %w", matrixID, err)
	}
	return localpart, server, nil
}
