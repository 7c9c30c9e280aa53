// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package uia is the client side of Matrix user-interactive
// authentication: the protocol that guards registration, login, and
// sensitive account operations behind an ordered list of stages chosen by
// the server.
//
// A [Session] wraps one protected request. Its lifecycle:
//
//	NotConnected --Connect--> Connected --SelectFlow--> InProgress --stages--> Finished
//	          \                    \                          \
//	           +--------------------+--------------------------+--> Failed
//
// Connect posts the request without auth; the server answers 401 with a
// session ID and the flows it accepts. SelectFlow (or AutoSelectFlow with
// a [Preference]) commits to one flow. Each Do*Stage method submits the
// next stage; the server answers 401 with its completed list (the session
// advances) or 200 with the protected response (the session finishes,
// decoding login [messaging.Credentials] when the endpoint issues them).
//
// The server's completed list is authoritative. After every 401 the
// remaining stages are recomputed from it, and if the server replaced the
// selected flow with one that extends the progress made so far, the
// session follows. A server that withdraws the flow outright is a
// [ProtocolError].
//
// Stage identifiers form the closed [StageKind] enumeration, and each kind
// has exactly one [AuthPayload] struct. Two-round stages keep state
// between rounds in per-session scratch keyed by StageKind: the BS-SPEKE
// handshake (lib/bsspeke) created by the OPRF round and consumed by the
// save or verify round, and the email client secret shared by token
// request and submit. Scratch is discarded when it has been consumed and
// whenever the session ends.
//
// Errors fall into six classes, each a typed error matching a sentinel:
// transport, decode, and protocol errors end the session (Failed is
// sticky); ordering, verification, and crypto errors leave it where it was
// so the caller can retry. The only automatic retry anywhere is the 429
// backoff inside messaging.Client.Call.
//
// The uiatest subpackage provides an in-process homeserver for tests.
package uia
