// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authcmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/uia/cmd/bureau-uia/cli"
	"github.com/bureau-foundation/uia/lib/clock"
	"github.com/bureau-foundation/uia/lib/config"
	"github.com/bureau-foundation/uia/lib/credstore"
	"github.com/bureau-foundation/uia/lib/ref"
	"github.com/bureau-foundation/uia/lib/sealed"
	"github.com/bureau-foundation/uia/lib/secret"
	"github.com/bureau-foundation/uia/messaging"
	"github.com/bureau-foundation/uia/uia"
)

// Deps are the process-level collaborators of the commands. Zero fields
// take their defaults: stdout, a terminal prompter, the real clock, and a
// logger built from the configuration.
type Deps struct {
	Stdout     io.Writer
	Prompter   cli.Prompter
	Clock      clock.Clock
	Logger     *slog.Logger
	HTTPClient *http.Client
}

func (d Deps) withDefaults() Deps {
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Prompter == nil {
		d.Prompter = cli.NewTerminalPrompter()
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	return d
}

// connectionFlags are shared by every command that talks to a homeserver.
type connectionFlags struct {
	configPath string
	homeserver string
	serverName string
}

func (f *connectionFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "config file (default: $"+config.EnvVar+", else built-in defaults)")
	flagSet.StringVar(&f.homeserver, "homeserver", "", "homeserver base URL (overrides homeserver.url)")
	flagSet.StringVar(&f.serverName, "server-name", "", "Matrix server name (overrides homeserver.server_name)")
}

// environment is everything a command run needs, built from flags and
// configuration.
type environment struct {
	config     *config.Config
	logger     *slog.Logger
	serverName ref.ServerName
	client     *messaging.Client
	deps       Deps
}

// loadConfig reads path, falling back to $BUREAU_UIA_CONFIG and then to
// the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(config.EnvVar)
	}
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, cli.Validation("loading config: %w", err)
	}
	return cfg, nil
}

// openEnvironment loads configuration, applies flag overrides, and, when
// connect is set, builds the Matrix client (discovering the homeserver URL
// from the server name when none is configured).
func openEnvironment(ctx context.Context, deps Deps, flags connectionFlags, connect bool) (*environment, error) {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.homeserver != "" {
		cfg.Homeserver.URL = flags.homeserver
	}
	if flags.serverName != "" {
		cfg.Homeserver.ServerName = flags.serverName
	}
	if cfg.Homeserver.ServerName == "" && cfg.Homeserver.URL != "" {
		if derived, err := ref.ServerNameFromURL(cfg.Homeserver.URL); err == nil {
			cfg.Homeserver.ServerName = derived.String()
		}
	}
	if err := cfg.Validate(connect); err != nil {
		return nil, cli.Validation("invalid configuration:\n%w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger, err = cli.NewCommandLogger(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return nil, cli.Validation("%w", err)
		}
	}

	env := &environment{config: cfg, logger: logger, deps: deps}
	if cfg.Homeserver.ServerName != "" {
		env.serverName, err = ref.ParseServerName(cfg.Homeserver.ServerName)
		if err != nil {
			return nil, cli.Validation("homeserver.server_name: %w", err)
		}
	}
	if !connect {
		return env, nil
	}

	durations, err := cfg.Transport.Durations()
	if err != nil {
		return nil, cli.Validation("%w", err)
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: durations.RequestTimeout}
	}

	baseURL := cfg.Homeserver.URL
	if baseURL == "" {
		baseURL, err = messaging.DiscoverHomeserver(ctx, httpClient, env.serverName)
		if err != nil {
			return nil, fmt.Errorf("discovering homeserver for %s: %w", env.serverName, err)
		}
		logger.Info("homeserver discovered", "server_name", env.serverName.String(), "url", baseURL)
	}

	env.client, err = messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: baseURL,
		HTTPClient:    httpClient,
		Logger:        logger,
		Clock:         deps.Clock,
		Retry: messaging.RetryPolicy{
			BaseDelay:   durations.RateLimitBaseDelay,
			MaxAttempts: cfg.Transport.MaxAttempts,
			MaxDelay:    durations.RateLimitMaxDelay,
		},
	})
	if err != nil {
		return nil, cli.Validation("%w", err)
	}
	return env, nil
}

// openStore opens the credential store. The returned close function
// releases the age identity, if one was read.
func (e *environment) openStore() (*credstore.Store, func(), error) {
	var identity *secret.Buffer
	if path := e.config.Credentials.IdentityFile; path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, nil, cli.Internal("opening identity file: %w", err)
		}
		identity, err = sealed.ReadIdentity(file)
		file.Close()
		if err != nil {
			return nil, nil, cli.Internal("reading identity file %s: %w", path, err)
		}
	}
	store, err := credstore.New(credstore.Config{
		Directory:  e.config.Credentials.Directory,
		Recipients: e.config.Credentials.Recipients,
		Identity:   identity,
		Clock:      e.deps.Clock,
		Logger:     e.logger,
	})
	release := func() {
		if identity != nil {
			identity.Close()
		}
	}
	if err != nil {
		release()
		return nil, nil, cli.Internal("%w", err)
	}
	return store, release, nil
}

// userID resolves a command-line user argument: a full Matrix ID, or a
// localpart on the configured server.
func (e *environment) userID(argument string) (ref.UserID, error) {
	if len(argument) > 0 && argument[0] == '@' {
		userID, err := ref.ParseUserID(argument)
		if err != nil {
			return ref.UserID{}, cli.Validation("%w", err)
		}
		return userID, nil
	}
	if e.serverName.IsZero() {
		return ref.UserID{}, cli.Validation("%q is not a full user ID and no server name is configured", argument)
	}
	userID, err := ref.NewUserID(argument, e.serverName)
	if err != nil {
		return ref.UserID{}, cli.Validation("%w", err)
	}
	return userID, nil
}

// preference converts auth.preference to stage kinds.
func (e *environment) preference() (uia.Preference, error) {
	return parsePreference(e.config.Auth.Preference)
}

func parsePreference(groups [][]string) (uia.Preference, error) {
	if len(groups) == 0 {
		return uia.DefaultPreference, nil
	}
	preference := make(uia.Preference, 0, len(groups))
	for index, group := range groups {
		kinds := make([]uia.StageKind, 0, len(group))
		for _, id := range group {
			kind, ok := uia.ParseStageKind(id)
			if !ok {
				return nil, cli.Validation("auth.preference[%d]: unknown stage %q", index, id)
			}
			kinds = append(kinds, kind)
		}
		preference = append(preference, kinds)
	}
	return preference, nil
}

// parseFlow parses a --flow value: comma-separated stage IDs.
func parseFlow(value string) (uia.Flow, error) {
	if value == "" {
		return uia.Flow{}, nil
	}
	var flow uia.Flow
	for _, id := range splitList(value) {
		if _, ok := uia.ParseStageKind(id); !ok {
			return uia.Flow{}, cli.Validation("--flow: unknown stage %q", id)
		}
		flow.Stages = append(flow.Stages, id)
	}
	return flow, nil
}

// readSecretFlag reads a secret named by a --*-file flag. An empty path
// means "prompt"; the returned buffer is nil.
func readSecretFlag(flagName, path string) (*secret.Buffer, error) {
	if path == "" {
		return nil, nil
	}
	buffer, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, cli.Validation("--%s: %w", flagName, err)
	}
	return buffer, nil
}

// readValueFlag reads a non-secret value from a --*-file flag.
func readValueFlag(flagName, path string) (string, error) {
	buffer, err := readSecretFlag(flagName, path)
	if err != nil || buffer == nil {
		return "", err
	}
	defer buffer.Close()
	return buffer.String(), nil
}
