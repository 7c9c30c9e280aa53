// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credstore keeps the credentials returned by a finished login or
// registration on disk, one file per account.
//
// Files live in a single owner-only directory and are named by a keyed
// BLAKE3 hash of the user ID, so user IDs never appear in file names.
// Each file is a JSON record carrying the user ID, the homeserver URL,
// and the save time in clear. The credentials themselves are either
// stored inline or, when the store has age recipients, sealed with
// [sealed.Seal] and kept as armored text in the record. Loading a sealed
// record requires the matching age identity.
//
// Writes are atomic (temp file plus rename) and files are created 0600.
package credstore
