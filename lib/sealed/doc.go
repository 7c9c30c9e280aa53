// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts credential files with age. It wraps
// filippo.io/age for the operations bureau-uia needs: generate x25519
// keypairs, seal a file to one or more recipients, and open it again with
// a private key.
//
// Sealed data is ASCII-armored (filippo.io/age/armor) so it can be
// written to a text file and recognized with [IsSealed]. Private keys and
// opened plaintext are returned as [secret.Buffer] values backed by mmap
// memory outside the Go heap (locked against swap, excluded from core
// dumps, zeroed on Close).
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair in a secret.Buffer
//   - [Seal] / [Open] -- armored encryption to age public key recipients
//   - [ReadIdentity] -- private key from an age-keygen identity file
//   - [ParsePublicKey] / [ParsePrivateKey] -- key validation
//
// Depends on lib/secret for secure memory allocation.
package sealed
