// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is the HTTP transport to a Matrix homeserver used by
// the user-interactive authentication core.
//
// [Client] holds the homeserver URL, HTTP transport, clock, and retry
// policy. [Client.Call] issues one logical request: it JSON-encodes the
// body, attaches the bearer token when one is given, and retries
// transparently on 429 with exponential backoff. Delays start at
// [RetryPolicy.BaseDelay] and double per retry; a server-supplied
// retry_after_ms or Retry-After raises the current delay but never lowers
// it, so successive delays never decrease. After [RetryPolicy.MaxAttempts]
// rate-limited attempts Call returns a [*RateLimitError] matching
// [ErrRateLimited] and makes no further attempt.
//
// Call is stage-agnostic. The caller lists the statuses it treats as
// protocol signals (for UIA: 200 and 401) in [Request.ExpectedStatuses];
// those come back as a [*Response] with the raw body. Any other status is
// returned as a [*MatrixError] carrying the Matrix errcode and HTTP status.
// [IsMatrixError] tests for a specific error code.
//
// [Session] wraps a Client with an access token held in mmap-backed
// secret.Buffer memory for the few authenticated calls the tools make
// once authentication finishes (WhoAmI, Logout). Callers must call
// Session.Close to release the protected memory.
//
// Request URLs are built by string concatenation rather than url.URL to
// avoid double-encoding of path segments.
package messaging
