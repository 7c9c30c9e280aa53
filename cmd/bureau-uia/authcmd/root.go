// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authcmd

import "github.com/bureau-foundation/uia/cmd/bureau-uia/cli"

// Root builds the complete bureau-uia command tree.
func Root(deps Deps) *cli.Command {
	return &cli.Command{
		Name: "bureau-uia",
		Description: `bureau-uia: Matrix user-interactive authentication client.

Log in, register, and change passwords against homeservers that gate
those endpoints behind interactive authentication, including BS-SPEKE
password stages, terms, registration tokens, and email verification.`,
		Subcommands: []*cli.Command{
			LoginCommand(deps),
			RegisterCommand(deps),
			SetPasswordCommand(deps),
			FlowsCommand(deps),
			CredentialsCommand(deps),
			VersionCommand(deps),
		},
		Examples: []cli.Example{
			{
				Description: "See what a server asks for before logging in",
				Command:     "bureau-uia flows login --homeserver https://matrix.example.org",
			},
			{
				Description: "Log in with a config file",
				Command:     "BUREAU_UIA_CONFIG=~/.config/bureau-uia.yaml bureau-uia login alice",
			},
		},
	}
}
