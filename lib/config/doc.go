// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for bureau-uia.
//
// Configuration is loaded from a single file specified by either the
// BUREAU_UIA_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// Files ending in .json or .jsonc are read as JSON with comments; any
// other extension is YAML.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Homeserver, Transport, Auth,
//     Credentials, Logging
//   - [Default] -- returns a Config with defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Bureau packages.
package config
