// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bsspeke

import "fmt"

// Curve is the curve identifier sent in the OPRF round.
const Curve = "curve25519"

// Bounds on server-supplied hashing parameters.
const (
	MinBlocks     = 8
	MaxBlocks     = 1 << 20
	MinIterations = 1
	MaxIterations = 256
)

// PHFParams are the Argon2i tuning parameters the server returns with the
// blindSalt. Blocks is the memory cost in 1 KiB blocks.
type PHFParams struct {
	Blocks     uint32 `json:"blocks"`
	Iterations uint32 `json:"iterations"`
}

// Validate checks the parameters against the client's bounds.
func (p PHFParams) Validate() error {
	if p.Blocks < MinBlocks || p.Blocks > MaxBlocks {
		return fmt.Errorf("%w: blocks %d outside [%d, %d]", ErrInvalidParams, p.Blocks, MinBlocks, MaxBlocks)
	}
	if p.Iterations < MinIterations || p.Iterations > MaxIterations {
		return fmt.Errorf("%w: iterations %d outside [%d, %d]", ErrInvalidParams, p.Iterations, MinIterations, MaxIterations)
	}
	return nil
}
