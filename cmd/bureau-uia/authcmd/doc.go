// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package authcmd implements the bureau-uia commands: login, register,
// set-password, flows, credentials, and version.
//
// Every command that authenticates builds a [uia.Session] for its
// endpoint and hands it to a [Driver], which connects, picks a flow
// (an explicit --flow, else auth.preference, else a menu), and answers
// each stage from flags or the [cli.Prompter]. Rejected answers that were
// typed in are asked for again a bounded number of times; anything else
// ends the run with the session's error.
//
// Issued credentials go to a [credstore.Store] in
// credentials.directory, sealed with age when recipients are configured.
package authcmd
