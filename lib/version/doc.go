// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports what build of bureau-uia is running.
//
// Release builds stamp [GitCommit], [GitDirty], [BuildTime] and [Version]
// through -ldflags. Unstamped binaries fall back to the VCS revision the
// toolchain embeds, and test binaries report "unknown".
package version
