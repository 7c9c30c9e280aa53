// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authcmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/uia/cmd/bureau-uia/cli"
	"github.com/bureau-foundation/uia/lib/version"
)

// VersionCommand returns the "version" command. With --homeserver (or a
// configured homeserver and --server) it also reports the protocol
// versions the server supports.
func VersionCommand(deps Deps) *cli.Command {
	var (
		connection connectionFlags
		server     bool
	)
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   "bureau-uia version [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			connection.register(flagSet)
			flagSet.BoolVar(&server, "server", false, "also query the configured homeserver")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			deps := deps.withDefaults()
			fmt.Fprintf(deps.Stdout, "bureau-uia %s\n", version.Full())
			if !server && connection.homeserver == "" {
				return nil
			}

			env, err := openEnvironment(ctx, deps, connection, true)
			if err != nil {
				return err
			}
			versions, err := env.client.ServerVersions(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(deps.Stdout, "Homeserver %s\n  Versions: %s\n", env.client.BaseURL(), strings.Join(versions.Versions, ", "))
			return nil
		},
	}
}
