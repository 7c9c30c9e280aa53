// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bsspeke implements the client half of BS-SPEKE (blind-salt
// augmented SPEKE) over curve25519, as used by the Matrix
// m.enroll.bsspeke-ecc and m.login.bsspeke-ecc authentication stages.
//
// The handshake has two rounds. In the OPRF round the client hashes the
// password to a curve point and blinds it with a random scalar r:
//
//	blind = r * H(password, clientID, serverID)
//
// The server multiplies the blind by its per-user salt and returns the
// blindSalt. In the second round the client removes r, runs the result
// through Argon2i with the server-supplied [PHFParams], and derives the
// key pair it submits:
//
//	P = H'(phf[:32])
//	V = v * P, v = scalar(phf[32:])
//
// Enrollment stores (P, V) on the server; login submits them again. The
// server never sees the password or a plain password hash.
//
// A [Client] is stateful: the scalar r generated for the OPRF round must be
// the one used to unblind, so the same Client must survive both rounds.
// After key derivation the Client retains the PHF output so callers can
// derive application keys with [Client.HashedKey]. Close zeroes all of it.
//
// [Salt] is the server half of the OPRF and exists for test homeservers.
// Group arithmetic is provided by filippo.io/edwards25519; password
// hashing by golang.org/x/crypto/argon2.
package bsspeke
