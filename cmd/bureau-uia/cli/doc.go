// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for bureau-uia.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are assembled into a tree in cmd/bureau-uia and
// dispatched via [Command.Execute], which handles flag parsing, subcommand
// routing, and structured help output with examples. Unknown subcommands
// and flags get a Levenshtein-distance suggestion.
//
// [Prompter] is the operator conversation used by the interactive
// authentication driver; [TerminalPrompter] implements it on a terminal
// with hidden input for secrets. [ToolError] and [Categorize] classify
// failures; [ExitError] carries an exit code for commands that have
// already reported their outcome.
package cli
