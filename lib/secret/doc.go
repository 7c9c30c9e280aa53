// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds passwords, access tokens, and derived key material
// outside the Go heap.
//
// A [Buffer] is an anonymous mmap region locked into RAM (mlock) and
// excluded from core dumps (MADV_DONTDUMP). Close zeroes, unlocks, and
// unmaps it. The UIA session keeps the user's password in a Buffer for the
// lifetime of a BS-SPEKE handshake, and the credential store moves access
// tokens into one as soon as they are decoded.
//
// Access via [Buffer.Bytes] (slice into the mapping), [Buffer.String] and
// [Buffer.Base64] (heap copies for JSON boundaries). [Buffer.Equal] is
// constant-time. Any access after Close panics; Close is idempotent.
//
// Depends on golang.org/x/sys/unix only.
package secret
