// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authcmd

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/uia/cmd/bureau-uia/cli"
	"github.com/bureau-foundation/uia/uia"
)

// SetPasswordCommand returns the "set-password" command.
func SetPasswordCommand(deps Deps) *cli.Command {
	var (
		connection      connectionFlags
		passwordFile    string
		newPasswordFile string
		flowValue       string
		logoutDevices   bool
	)

	return &cli.Command{
		Name:    "set-password",
		Summary: "Change the password of a logged-in account",
		Description: `Change an account's password using its stored credentials.

The server re-authenticates you through user-interactive authentication
(usually the current password) before accepting the new one. Flows that
include a BS-SPEKE enrollment enroll the new password there as well.`,
		Usage: "bureau-uia set-password <user> [flags]",
		Examples: []cli.Example{
			{
				Description: "Change the password interactively",
				Command:     "bureau-uia set-password alice",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("set-password", pflag.ContinueOnError)
			connection.register(flagSet)
			flagSet.StringVar(&passwordFile, "password-file", "", "read the current password from a file (default: prompt)")
			flagSet.StringVar(&newPasswordFile, "new-password-file", "", "read the new password from a file (default: prompt)")
			flagSet.StringVar(&flowValue, "flow", "", "comma-separated stage IDs of the flow to use (default: choose by preference)")
			flagSet.BoolVar(&logoutDevices, "logout-devices", false, "log out every other device of the account")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("exactly one user is required\n\nUsage: bureau-uia set-password <user> [flags]")
			}
			deps := deps.withDefaults()
			env, err := openEnvironment(ctx, deps, connection, true)
			if err != nil {
				return err
			}
			flow, err := parseFlow(flowValue)
			if err != nil {
				return err
			}
			preference, err := env.preference()
			if err != nil {
				return err
			}
			account, err := env.sessionFromStore(args[0])
			if err != nil {
				return err
			}
			defer account.Close()

			password, err := readSecretFlag("password-file", passwordFile)
			if err != nil {
				return err
			}
			if password != nil {
				defer password.Close()
			}
			newPassword, err := readSecretFlag("new-password-file", newPasswordFile)
			if err != nil {
				return err
			}
			if newPassword != nil {
				defer newPassword.Close()
			}

			logger := env.logger.With("command", "set-password", "user_id", account.UserID().String())
			driver := &Driver{
				Prompter:   deps.Prompter,
				Logger:     logger,
				Preference: preference,
				Flow:       flow,
				Inputs:     Inputs{Password: password, NewPassword: newPassword},
			}
			defer driver.Close()

			// The new password travels in the request itself, so it is
			// needed before the first stage.
			chosen, err := driver.enrollPassword()
			if err != nil {
				return err
			}

			session, err := uia.NewSession(env.client, uia.SessionConfig{
				Path: changePasswordPath,
				Envelope: map[string]any{
					"new_password":   chosen.String(),
					"logout_devices": logoutDevices,
				},
				AccessToken: account.AccessToken(),
				UserID:      account.UserID(),
				Logger:      logger,
			})
			if err != nil {
				return cli.Internal("%w", err)
			}
			defer session.Close()
			driver.Session = session

			if _, err := driver.Run(ctx); err != nil {
				return fmt.Errorf("password change failed: %w", err)
			}
			logger.Info("password changed")
			fmt.Fprintf(deps.Stdout, "Password changed for %s\n", account.UserID())
			return nil
		},
	}
}
