// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bsspeke

import (
	"fmt"

	"filippo.io/edwards25519"
)

// Salt is the server's per-user OPRF key. Homeservers hold one per
// enrolled user; this implementation backs test servers.
type Salt struct {
	scalar *edwards25519.Scalar
}

// NewSalt samples a random salt.
func NewSalt() (*Salt, error) {
	scalar, err := randomScalar()
	if err != nil {
		return nil, err
	}
	return &Salt{scalar: scalar}, nil
}

// SaltFromSeed derives a salt deterministically from a 64-byte seed.
func SaltFromSeed(seed []byte) (*Salt, error) {
	if len(seed) != 64 {
		return nil, fmt.Errorf("bsspeke: salt seed is %d bytes, want 64", len(seed))
	}
	scalar, err := edwards25519.NewScalar().SetUniformBytes(seed)
	if err != nil {
		return nil, fmt.Errorf("bsspeke: reducing salt seed: %w", err)
	}
	if scalar.Equal(edwards25519.NewScalar()) == 1 {
		return nil, fmt.Errorf("bsspeke: salt seed reduces to zero")
	}
	return &Salt{scalar: scalar}, nil
}

// Evaluate multiplies a client blind by the salt, producing the blindSalt
// returned in the OPRF round.
func (s *Salt) Evaluate(blind []byte) ([]byte, error) {
	point, err := decodePoint(blind)
	if err != nil {
		return nil, fmt.Errorf("decoding blind: %w", err)
	}
	return new(edwards25519.Point).ScalarMult(s.scalar, point).Bytes(), nil
}
