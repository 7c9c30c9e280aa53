// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// fatalHelper is the subset of testing.TB RequireReceive needs.
type fatalHelper interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value sent on ch, failing the test if
// none arrives within timeout or ch is closed first. what is a
// fmt.Sprintf format describing the wait.
//
//	err := testutil.RequireReceive(t, errs, 5*time.Second, "waiting for Call")
func RequireReceive[T any](t fatalHelper, ch <-chan T, timeout time.Duration, what string, args ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout) //nolint:realclock test hang prevention
	defer timer.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed", fmt.Sprintf(what, args...))
		}
		return value
	case <-timer.C:
		t.Fatalf("%s: nothing received within %v", fmt.Sprintf(what, args...), timeout)
	}
	var zero T
	return zero
}
