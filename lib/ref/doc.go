// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated Matrix identifiers.
//
// [UserID] (@localpart:server) and [ServerName] are immutable value types
// validated at the boundary: parse once from configuration, flags, or
// homeserver responses, then pass the typed value around. Both implement
// encoding.TextMarshaler and encoding.TextUnmarshaler so they can appear
// directly in JSON and YAML structs.
//
// The BS-SPEKE handshake binds its password hash to the user ID (client
// identity) and the homeserver name (server identity); both come from
// this package so the two sides agree byte-for-byte on the strings.
package ref
