// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] wraps the select-with-timeout pattern so tests that
// wait on goroutines (a Call blocked in backoff, a second call racing the
// first) never hang the suite. It is the only place tests use a real
// wall-clock timeout; everything else runs on lib/clock.FakeClock.
//
// [WriteFile] drops a fixture into a per-test temporary directory.
// [UniqueID] generates monotonically increasing identifiers, used by the
// fake homeserver for session and device IDs.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
