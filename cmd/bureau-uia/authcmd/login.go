// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authcmd

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/pflag"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/uia/cmd/bureau-uia/cli"
	"github.com/bureau-foundation/uia/lib/secret"
	"github.com/bureau-foundation/uia/messaging"
	"github.com/bureau-foundation/uia/uia"
)

// Endpoints driven by the commands.
const (
	loginPath          = "/_matrix/client/v3/login"
	registerPath       = "/_matrix/client/v3/register"
	changePasswordPath = "/_matrix/client/v3/account/password"
)

// authResult is the output of login and register.
type authResult struct {
	UserID          string `json:"user_id"`
	DeviceID        string `json:"device_id"`
	Homeserver      string `json:"homeserver"`
	CredentialsPath string `json:"credentials_path,omitempty"`
	Sealed          bool   `json:"sealed,omitempty"`
	KeyFingerprint  string `json:"key_fingerprint,omitempty"`
}

// LoginCommand returns the "login" command.
func LoginCommand(deps Deps) *cli.Command {
	var (
		connection   connectionFlags
		passwordFile string
		flowValue    string
		keyLabel     string
		noSave       bool
		jsonOutput   bool
	)

	return &cli.Command{
		Name:    "login",
		Summary: "Log in and store the issued credentials",
		Description: `Log in to a Matrix homeserver through user-interactive authentication.

The server's advertised flows are matched against auth.preference (by
default BS-SPEKE first, then a plain password). When no preference
matches, the flows are listed and you choose one. Each stage prompts
for what it needs.

The issued access token is stored in credentials.directory, encrypted to
credentials.recipients when any are configured.`,
		Usage: "bureau-uia login <user> [flags]",
		Examples: []cli.Example{
			{
				Description: "Log in interactively",
				Command:     "bureau-uia login alice --homeserver https://matrix.example.org",
			},
			{
				Description: "Log in with the password from a file, forcing the password flow",
				Command:     "bureau-uia login @alice:example.org --password-file ~/.alice-pass --flow m.login.password",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			connection.register(flagSet)
			flagSet.StringVar(&passwordFile, "password-file", "", "read the password from a file, or - for one line of stdin (default: prompt)")
			flagSet.StringVar(&flowValue, "flow", "", "comma-separated stage IDs of the flow to use (default: choose by preference)")
			flagSet.StringVar(&keyLabel, "key-label", "", "after a BS-SPEKE login, print the fingerprint of the key derived for this label")
			flagSet.BoolVar(&noSave, "no-save", false, "do not store the credentials")
			flagSet.BoolVar(&jsonOutput, "json", false, "print the result as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("exactly one user is required\n\nUsage: bureau-uia login <user> [flags]")
			}
			deps := deps.withDefaults()
			env, err := openEnvironment(ctx, deps, connection, true)
			if err != nil {
				return err
			}
			userID, err := env.userID(args[0])
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
			password, err := readSecretFlag("password-file", passwordFile)
			if err != nil {
				return err
			}
			if password != nil {
				defer password.Close()
			}

			logger := env.logger.With("command", "login", "user_id", userID.String())
			session, err := uia.NewSession(env.client, uia.SessionConfig{
				Path: loginPath,
				Envelope: map[string]any{
					"identifier":                  map[string]string{"type": "m.id.user", "user": userID.String()},
					"initial_device_display_name": env.config.Auth.DeviceDisplayName,
				},
				UserID: userID,
				Logger: logger,
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
				Inputs:     Inputs{Password: password},
			}
			defer driver.Close()

			finished, err := driver.Run(ctx)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			result, err := env.storeResult(finished, noSave)
			if err != nil {
				return err
			}
			if keyLabel != "" {
				fingerprint, err := keyFingerprint(session, keyLabel)
				if err != nil {
					return err
				}
				result.KeyFingerprint = fingerprint
			}
			logger.Info("logged in", "device_id", result.DeviceID)
			return writeAuthResult(deps, result, jsonOutput, "Logged in")
		},
	}
}

// storeResult saves the credentials of a Finished login or registration
// unless noSave is set.
func (e *environment) storeResult(finished uia.Finished, noSave bool) (*authResult, error) {
	credentials := finished.Credentials
	if credentials == nil {
		return nil, cli.Internal("the server finished without issuing credentials")
	}
	result := &authResult{
		UserID:     credentials.UserID.String(),
		DeviceID:   credentials.DeviceID,
		Homeserver: e.client.BaseURL(),
	}
	if noSave {
		return result, nil
	}
	store, release, err := e.openStore()
	if err != nil {
		return nil, err
	}
	defer release()
	path, err := store.Save(credentials, e.client.BaseURL())
	if err != nil {
		return nil, cli.Internal("storing credentials: %w", err)
	}
	result.CredentialsPath = path
	result.Sealed = len(e.config.Credentials.Recipients) > 0
	return result, nil
}

// keyFingerprint derives the BS-SPEKE key for label and returns the first
// eight bytes of its BLAKE3 hash, hex encoded. The key itself never
// leaves memory.
func keyFingerprint(session *uia.Session, label string) (string, error) {
	client, ok := session.BSSpekeClient()
	if !ok {
		return "", cli.Validation("--key-label needs a BS-SPEKE login; this flow used none")
	}
	key, err := client.HashedKey(label)
	if err != nil {
		return "", cli.Internal("deriving key: %w", err)
	}
	defer secret.Zero(key)
	sum := blake3.Sum256(key)
	return hex.EncodeToString(sum[:8]), nil
}

func writeAuthResult(deps Deps, result *authResult, jsonOutput bool, verb string) error {
	if jsonOutput {
		return cli.WriteJSON(deps.Stdout, result)
	}
	fmt.Fprintf(deps.Stdout, "%s as %s (device %s)\n", verb, result.UserID, result.DeviceID)
	if result.CredentialsPath != "" {
		sealedNote := ""
		if result.Sealed {
			sealedNote = " (sealed)"
		}
		fmt.Fprintf(deps.Stdout, "Credentials saved to %s%s\n", result.CredentialsPath, sealedNote)
	}
	if result.KeyFingerprint != "" {
		fmt.Fprintf(deps.Stdout, "Key fingerprint: %s\n", result.KeyFingerprint)
	}
	return nil
}

// sessionFromStore loads stored credentials for userID and opens a
// messaging session with them.
func (e *environment) sessionFromStore(argument string) (*messaging.Session, error) {
	userID, err := e.userID(argument)
	if err != nil {
		return nil, err
	}
	store, release, err := e.openStore()
	if err != nil {
		return nil, err
	}
	defer release()
	credentials, err := store.Load(userID)
	if err != nil {
		return nil, storeError(userID.String(), err)
	}
	session, err := e.client.SessionFromCredentials(credentials)
	if err != nil {
		return nil, cli.Internal("%w", err)
	}
	return session, nil
}
