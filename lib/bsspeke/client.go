// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bsspeke

import (
	"crypto/rand"
	"fmt"
	"sync"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"

	"github.com/bureau-foundation/uia/lib/secret"
)

// phfOutputSize is the Argon2i output length: 32 bytes seed P, 32 bytes
// seed v.
const phfOutputSize = 64

// Client is one BS-SPEKE handshake. Safe for concurrent use, though a
// handshake is inherently sequential.
type Client struct {
	mu sync.Mutex

	clientID string
	serverID string
	password *secret.Buffer

	r     *edwards25519.Scalar
	blind []byte

	phf    []byte
	closed bool
}

// NewClient starts a handshake for clientID (the Matrix user ID) against
// serverID (the homeserver host). The password is copied into locked
// memory; the caller may zero its own slice afterwards.
func NewClient(clientID, serverID string, password []byte) (*Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("bsspeke: client ID is empty")
	}
	if serverID == "" {
		return nil, fmt.Errorf("bsspeke: server ID is empty")
	}
	if len(password) == 0 {
		return nil, fmt.Errorf("bsspeke: password is empty")
	}
	held, err := secret.New(len(password))
	if err != nil {
		return nil, fmt.Errorf("bsspeke: %w", err)
	}
	copy(held.Bytes(), password)
	return &Client{
		clientID: clientID,
		serverID: serverID,
		password: held,
	}, nil
}

// ClientID returns the client identity bound into the handshake.
func (c *Client) ClientID() string { return c.clientID }

// ServerID returns the server identity bound into the handshake.
func (c *Client) ServerID() string { return c.serverID }

// GenerateBlind returns the 32-byte blinded password point for the OPRF
// round. The blinding scalar is sampled on the first call; later calls
// return the same blind.
func (c *Client) GenerateBlind() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.blind != nil {
		return append([]byte(nil), c.blind...), nil
	}

	input := transcript("", c.password.Bytes(), []byte(c.clientID), []byte(c.serverID))
	passwordPoint, err := hashToPoint(domainPassword, input)
	secret.Zero(input)
	if err != nil {
		return nil, err
	}

	r, err := randomScalar()
	if err != nil {
		return nil, err
	}
	c.r = r
	c.blind = new(edwards25519.Point).ScalarMult(r, passwordPoint).Bytes()
	return append([]byte(nil), c.blind...), nil
}

// DeriveKeys unblinds the server's blindSalt, hashes it with Argon2i under
// params, and returns the public key P and verifier V, 32 bytes each.
// Nothing is retained on failure.
func (c *Client) DeriveKeys(blindSalt []byte, params PHFParams) (publicKey, verifier []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, ErrClosed
	}
	if c.r == nil {
		return nil, nil, ErrNoBlind
	}
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}
	salted, err := decodePoint(blindSalt)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding blind salt: %w", err)
	}

	rInverse := new(edwards25519.Scalar).Invert(c.r)
	oprfOutput := new(edwards25519.Point).ScalarMult(rInverse, salted).Bytes()
	zeroScalar(rInverse)

	phf := c.hashPassword(oprfOutput, params)
	secret.Zero(oprfOutput)

	point, err := hashToPoint(domainP, phf[:32])
	if err != nil {
		secret.Zero(phf)
		return nil, nil, err
	}
	v, err := hashToScalar(domainV, phf[32:])
	if err != nil {
		secret.Zero(phf)
		return nil, nil, err
	}
	verifierPoint := new(edwards25519.Point).ScalarMult(v, point)
	zeroScalar(v)

	if c.phf != nil {
		secret.Zero(c.phf)
	}
	c.phf = phf
	return point.Bytes(), verifierPoint.Bytes(), nil
}

func (c *Client) hashPassword(oprfOutput []byte, params PHFParams) []byte {
	saltDigest := blake2b.Sum256(transcript(domainPHFSalt, []byte(c.clientID), []byte(c.serverID)))
	return argon2.Key(oprfOutput, saltDigest[:16], params.Iterations, params.Blocks, 1, phfOutputSize)
}

// HashedKey derives a 32-byte application key bound to label from the PHF
// output. Available only after DeriveKeys.
func (c *Client) HashedKey(label string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.phf == nil {
		return nil, ErrNotDerived
	}
	hash, err := blake2b.New256(c.phf)
	if err != nil {
		return nil, fmt.Errorf("bsspeke: keyed hash: %w", err)
	}
	hash.Write([]byte(label))
	return hash.Sum(nil), nil
}

// Close zeroes the password, the blinding scalar, and the PHF output.
// Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.password.Close()
	zeroScalar(c.r)
	if c.phf != nil {
		secret.Zero(c.phf)
	}
	c.password = nil
	c.r = nil
	c.blind = nil
	c.phf = nil
}

func randomScalar() (*edwards25519.Scalar, error) {
	var seed [64]byte
	defer secret.Zero(seed[:])
	zero := edwards25519.NewScalar()
	for {
		if _, err := rand.Read(seed[:]); err != nil {
			return nil, fmt.Errorf("bsspeke: reading randomness: %w", err)
		}
		scalar, err := edwards25519.NewScalar().SetUniformBytes(seed[:])
		if err != nil {
			return nil, fmt.Errorf("bsspeke: reducing random scalar: %w", err)
		}
		if scalar.Equal(zero) == 0 {
			return scalar, nil
		}
	}
}
