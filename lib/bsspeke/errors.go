// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bsspeke

import "errors"

var (
	// ErrClosed is returned by every method of a closed Client.
	ErrClosed = errors.New("bsspeke: client is closed")

	// ErrNoBlind is returned when keys are derived before GenerateBlind.
	ErrNoBlind = errors.New("bsspeke: no blind generated")

	// ErrNotDerived is returned by HashedKey before DeriveKeys succeeds.
	ErrNotDerived = errors.New("bsspeke: keys not derived")

	// ErrInvalidPoint is returned for an undecodable or low-order point.
	ErrInvalidPoint = errors.New("bsspeke: invalid curve point")

	// ErrInvalidParams is returned for out-of-range PHF parameters.
	ErrInvalidParams = errors.New("bsspeke: invalid PHF parameters")
)
