// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds reads of homeserver JSON responses.
//
// UIA responses (session state, credentials, Matrix error bodies) are small
// JSON documents. Reads stop at MaxResponseSize so that a misbehaving
// server cannot make the client buffer an unbounded body, and a body that
// hits the limit is reported as an error rather than silently truncated
// into something that fails to decode later.
package netutil

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxResponseSize bounds response body reads: 4 MiB.
const MaxResponseSize int64 = 4 << 20

// ErrResponseTooLarge is returned when a body exceeds MaxResponseSize.
var ErrResponseTooLarge = errors.New("netutil: response body exceeds size limit")

// ReadResponse reads a response body of at most MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("netutil: reading response body: %w", err)
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// Snippet returns at most limit bytes of body as a string for error
// messages, cut on a rune boundary.
func Snippet(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	cut := body[:limit]
	for len(cut) > 0 && !utf8.Valid(cut) {
		cut = cut[:len(cut)-1]
	}
	return string(cut) + "..."
}
