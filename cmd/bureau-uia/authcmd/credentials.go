// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authcmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/uia/cmd/bureau-uia/cli"
	"github.com/bureau-foundation/uia/lib/credstore"
	"github.com/bureau-foundation/uia/messaging"
)

// credentialEntry is the JSON form of a stored record.
type credentialEntry struct {
	UserID     string    `json:"user_id"`
	Homeserver string    `json:"homeserver"`
	SavedAt    time.Time `json:"saved_at"`
	Sealed     bool      `json:"sealed"`
	Path       string    `json:"path"`
}

// CredentialsCommand returns the "credentials" command group.
func CredentialsCommand(deps Deps) *cli.Command {
	return &cli.Command{
		Name:    "credentials",
		Summary: "Manage stored credentials",
		Description: `Inspect, verify, and remove the credentials saved by "login" and
"register". Records live in credentials.directory, one file per account.`,
		Subcommands: []*cli.Command{
			credentialsListCommand(deps),
			credentialsVerifyCommand(deps),
			credentialsDeleteCommand(deps),
		},
	}
}

func credentialsListCommand(deps Deps) *cli.Command {
	var (
		configPath string
		jsonOutput bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List stored credentials",
		Usage:   "bureau-uia credentials list [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file")
			flagSet.BoolVar(&jsonOutput, "json", false, "print the records as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			deps := deps.withDefaults()
			env, err := openEnvironment(ctx, deps, connectionFlags{configPath: configPath}, false)
			if err != nil {
				return err
			}
			store, release, err := env.openStore()
			if err != nil {
				return err
			}
			defer release()
			entries, err := store.List()
			if err != nil {
				return cli.Internal("%w", err)
			}

			if jsonOutput {
				output := make([]credentialEntry, 0, len(entries))
				for _, entry := range entries {
					output = append(output, credentialEntry{
						UserID:     entry.UserID.String(),
						Homeserver: entry.Homeserver,
						SavedAt:    entry.SavedAt,
						Sealed:     entry.Sealed,
						Path:       entry.Path,
					})
				}
				return cli.WriteJSON(deps.Stdout, output)
			}
			if len(entries) == 0 {
				fmt.Fprintln(deps.Stdout, "No stored credentials.")
				return nil
			}
			writer := tabwriter.NewWriter(deps.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(writer, "USER\tHOMESERVER\tSAVED\tSEALED")
			for _, entry := range entries {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%t\n",
					entry.UserID, entry.Homeserver, entry.SavedAt.UTC().Format(time.RFC3339), entry.Sealed)
			}
			return writer.Flush()
		},
	}
}

func credentialsVerifyCommand(deps Deps) *cli.Command {
	var connection connectionFlags
	return &cli.Command{
		Name:    "verify",
		Summary: "Check that stored credentials are still valid",
		Description: `Ask the homeserver who the stored access token belongs to. Exits 1
without an error message when the server no longer accepts the token.`,
		Usage: "bureau-uia credentials verify <user> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			connection.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("exactly one user is required")
			}
			deps := deps.withDefaults()
			env, err := openEnvironment(ctx, deps, connection, true)
			if err != nil {
				return err
			}
			session, err := env.sessionFromStore(args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			owner, err := session.WhoAmI(ctx)
			if messaging.IsMatrixError(err, messaging.ErrCodeUnknownToken) {
				fmt.Fprintf(deps.Stdout, "%s: token is no longer valid\n", session.UserID())
				return &cli.ExitError{Code: 1}
			}
			if err != nil {
				return fmt.Errorf("verifying %s: %w", session.UserID(), err)
			}
			if owner != session.UserID() {
				fmt.Fprintf(deps.Stdout, "%s: token belongs to %s\n", session.UserID(), owner)
				return &cli.ExitError{Code: 1}
			}
			fmt.Fprintf(deps.Stdout, "%s: valid\n", owner)
			return nil
		},
	}
}

func credentialsDeleteCommand(deps Deps) *cli.Command {
	var (
		connection connectionFlags
		logout     bool
	)
	return &cli.Command{
		Name:    "delete",
		Summary: "Remove stored credentials",
		Description: `Remove an account's stored credentials. With --logout the access token
is invalidated on the homeserver first.`,
		Usage: "bureau-uia credentials delete <user> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("delete", pflag.ContinueOnError)
			connection.register(flagSet)
			flagSet.BoolVar(&logout, "logout", false, "log the device out on the homeserver before deleting")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("exactly one user is required")
			}
			deps := deps.withDefaults()
			env, err := openEnvironment(ctx, deps, connection, logout)
			if err != nil {
				return err
			}
			userID, err := env.userID(args[0])
			if err != nil {
				return err
			}

			if logout {
				session, err := env.sessionFromStore(args[0])
				if err != nil {
					return err
				}
				err = session.Logout(ctx)
				session.Close()
				if err != nil && !messaging.IsMatrixError(err, messaging.ErrCodeUnknownToken) {
					return err
				}
			}

			store, release, err := env.openStore()
			if err != nil {
				return err
			}
			defer release()
			if err := store.Delete(userID); err != nil {
				return storeError(userID.String(), err)
			}
			fmt.Fprintf(deps.Stdout, "Deleted credentials for %s\n", userID)
			return nil
		},
	}
}

func storeError(userID string, err error) error {
	switch {
	case errors.Is(err, credstore.ErrNotFound):
		return cli.NotFound("no stored credentials for %s", userID)
	case errors.Is(err, credstore.ErrNoIdentity):
		return cli.Validation("credentials for %s are sealed; set credentials.identity_file", userID)
	}
	return cli.Internal("%w", err)
}
