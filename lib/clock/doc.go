// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used for rate-limit
// backoff.
//
// Production code holds a [Clock] and waits with After instead of calling
// time.Sleep, so that a pending wait can be abandoned when its context is
// cancelled. Tests inject [Fake], whose time only moves on Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go func() { result <- client.Call(ctx, request) }()
//	fake.WaitForTimers(1)       // the call is now sleeping
//	fake.Advance(2 * time.Second)
//
// FakeClock also records every duration it was asked to wait, which lets
// backoff tests assert the exact delay sequence.
package clock
