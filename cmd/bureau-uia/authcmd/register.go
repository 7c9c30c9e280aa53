// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authcmd

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/uia/cmd/bureau-uia/cli"
	"github.com/bureau-foundation/uia/lib/ref"
	"github.com/bureau-foundation/uia/uia"
)

// RegisterCommand returns the "register" command.
func RegisterCommand(deps Deps) *cli.Command {
	var (
		connection            connectionFlags
		username              string
		passwordFile          string
		registrationTokenFile string
		email                 string
		acceptTerms           bool
		flowValue             string
		noSave                bool
		jsonOutput            bool
	)

	return &cli.Command{
		Name:    "register",
		Summary: "Create an account",
		Description: `Register a new account through user-interactive authentication.

Registration flows typically combine terms acceptance, a username, and
either a password or a BS-SPEKE enrollment; some servers also require a
registration token or an email address. Every stage the chosen flow
needs is prompted for unless the matching flag supplies it.

On success the issued credentials are stored like those of "login".`,
		Usage: "bureau-uia register [flags]",
		Examples: []cli.Example{
			{
				Description: "Register interactively",
				Command:     "bureau-uia register --homeserver https://matrix.example.org",
			},
			{
				Description: "Register with a token, accepting the terms up front",
				Command:     "bureau-uia register --username alice --registration-token-file /run/secrets/token --accept-terms",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("register", pflag.ContinueOnError)
			connection.register(flagSet)
			flagSet.StringVar(&username, "username", "", "localpart to claim (default: prompt when the flow asks for one)")
			flagSet.StringVar(&passwordFile, "password-file", "", "read the new password from a file, or - for one line of stdin (default: prompt)")
			flagSet.StringVar(&registrationTokenFile, "registration-token-file", "", "read the registration token from a file (default: prompt)")
			flagSet.StringVar(&email, "email", "", "email address for email verification stages")
			flagSet.BoolVar(&acceptTerms, "accept-terms", false, "accept the server's terms without asking")
			flagSet.StringVar(&flowValue, "flow", "", "comma-separated stage IDs of the flow to use (default: choose by preference)")
			flagSet.BoolVar(&noSave, "no-save", false, "do not store the credentials")
			flagSet.BoolVar(&jsonOutput, "json", false, "print the result as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			deps := deps.withDefaults()
			env, err := openEnvironment(ctx, deps, connection, true)
			if err != nil {
				return err
			}
			if env.serverName.IsZero() {
				return cli.Validation("registration needs homeserver.server_name (or --server-name)")
			}
			flow, err := parseFlow(flowValue)
			if err != nil {
				return err
			}
			preference, err := env.preference()
			if err != nil {
				return err
			}
			newPassword, err := readSecretFlag("password-file", passwordFile)
			if err != nil {
				return err
			}
			if newPassword != nil {
				defer newPassword.Close()
			}
			registrationToken, err := readValueFlag("registration-token-file", registrationTokenFile)
			if err != nil {
				return err
			}

			envelope := map[string]any{
				"initial_device_display_name": env.config.Auth.DeviceDisplayName,
			}
			var userID ref.UserID
			if username != "" {
				userID, err = ref.NewUserID(username, env.serverName)
				if err != nil {
					return cli.Validation("--username: %w", err)
				}
				envelope["username"] = username
			}

			logger := env.logger.With("command", "register")
			session, err := uia.NewSession(env.client, uia.SessionConfig{
				Path:       registerPath,
				Envelope:   envelope,
				UserID:     userID,
				ServerName: env.serverName,
				Logger:     logger,
			})
			if err != nil {
				return cli.Internal("%w", err)
			}
			defer session.Close()

			driver := &Driver{
				Session:    session,
				Prompter:   deps.Prompter,
				Logger:     logger,
				Preference: preference,
				Flow:       flow,
				Inputs: Inputs{
					NewPassword:       newPassword,
					Username:          username,
					RegistrationToken: registrationToken,
					Email:             email,
					AcceptTerms:       acceptTerms,
				},
			}
			defer driver.Close()

			finished, err := driver.Run(ctx)
			if err != nil {
				return fmt.Errorf("registration failed: %w", err)
			}
			result, err := env.storeResult(finished, noSave)
			if err != nil {
				return err
			}
			logger.Info("registered", "user_id", result.UserID, "device_id", result.DeviceID)
			return writeAuthResult(deps, result, jsonOutput, "Registered")
		},
	}
}
