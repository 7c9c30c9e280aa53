// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bsspeke

import (
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"

	"github.com/bureau-foundation/uia/lib/secret"
)

// Domain separation labels. Changing any of these changes every derived
// key, so they are part of the wire contract with the server.
const (
	domainPassword = "bsspeke-ecc/password-point"
	domainPHFSalt  = "bsspeke-ecc/phf-salt"
	domainP        = "bsspeke-ecc/P"
	domainV        = "bsspeke-ecc/v"
)

// maxHashToPointAttempts bounds try-and-increment. Roughly half of all
// 32-byte strings decode to a curve point, so exhausting this is not a
// realistic outcome.
const maxHashToPointAttempts = 256

// transcript length-prefixes each part so ("ab","c") and ("a","bc") hash
// differently.
func transcript(domain string, parts ...[]byte) []byte {
	size := 8 + len(domain)
	for _, part := range parts {
		size += 8 + len(part)
	}
	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint64(out, uint64(len(domain)))
	out = append(out, domain...)
	for _, part := range parts {
		out = binary.BigEndian.AppendUint64(out, uint64(len(part)))
		out = append(out, part...)
	}
	return out
}

// hashToPoint maps input to a point in the prime-order subgroup by
// try-and-increment, clearing the cofactor and rejecting the identity.
func hashToPoint(domain string, input []byte) (*edwards25519.Point, error) {
	message := transcript(domain, input)
	buffer := make([]byte, 0, len(message)+1)
	defer func() {
		secret.Zero(message)
		secret.Zero(buffer[:cap(buffer)])
	}()
	identity := edwards25519.NewIdentityPoint()
	for counter := 0; counter < maxHashToPointAttempts; counter++ {
		buffer = append(buffer[:0], message...)
		buffer = append(buffer, byte(counter))
		digest := blake2b.Sum256(buffer)
		point, err := new(edwards25519.Point).SetBytes(digest[:])
		if err != nil {
			continue
		}
		point.MultByCofactor(point)
		if point.Equal(identity) == 1 {
			continue
		}
		return point, nil
	}
	return nil, fmt.Errorf("bsspeke: hash to point failed after %d attempts", maxHashToPointAttempts)
}

// hashToScalar reduces a 512-bit digest of input modulo the group order.
func hashToScalar(domain string, input []byte) (*edwards25519.Scalar, error) {
	digest := blake2b.Sum512(transcript(domain, input))
	scalar, err := edwards25519.NewScalar().SetUniformBytes(digest[:])
	if err != nil {
		return nil, fmt.Errorf("bsspeke: reducing scalar: %w", err)
	}
	return scalar, nil
}

// decodePoint parses a 32-byte encoding and rejects points of small order.
// The check is on the cofactor-cleared point: a low-order input becomes
// the identity.
func decodePoint(encoded []byte) (*edwards25519.Point, error) {
	if len(encoded) != 32 {
		return nil, fmt.Errorf("%w: %d bytes, want 32", ErrInvalidPoint, len(encoded))
	}
	point, err := new(edwards25519.Point).SetBytes(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	cleared := new(edwards25519.Point).MultByCofactor(point)
	if cleared.Equal(edwards25519.NewIdentityPoint()) == 1 {
		return nil, fmt.Errorf("%w: point has small order", ErrInvalidPoint)
	}
	return point, nil
}

func zeroScalar(scalar *edwards25519.Scalar) {
	if scalar != nil {
		scalar.Set(edwards25519.NewScalar())
	}
}
