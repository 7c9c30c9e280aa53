// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authcmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/uia/cmd/bureau-uia/cli"
	"github.com/bureau-foundation/uia/uia"
)

// flowReport describes one advertised flow.
type flowReport struct {
	Stages    []string `json:"stages"`
	Supported bool     `json:"supported"`
	Problem   string   `json:"problem,omitempty"`
	Preferred bool     `json:"preferred,omitempty"`
}

// flowsOutput is the JSON output of the flows command.
type flowsOutput struct {
	Endpoint string       `json:"endpoint"`
	Flows    []flowReport `json:"flows"`
}

// FlowsCommand returns the "flows" command.
func FlowsCommand(deps Deps) *cli.Command {
	var (
		connection connectionFlags
		jsonOutput bool
	)

	return &cli.Command{
		Name:    "flows",
		Summary: "List the authentication flows a server offers",
		Description: `Open a user-interactive authentication session and list the flows
the server advertises for an endpoint, without completing any stage.

Each flow is marked with whether this client can complete it and which
one auth.preference would pick. The endpoint is "login" (default),
"register", or a client API path.`,
		Usage: "bureau-uia flows [login|register|<path>] [flags]",
		Examples: []cli.Example{
			{
				Description: "Show registration flows",
				Command:     "bureau-uia flows register --homeserver https://matrix.example.org",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("flows", pflag.ContinueOnError)
			connection.register(flagSet)
			flagSet.BoolVar(&jsonOutput, "json", false, "print the flows as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return cli.Validation("unexpected argument: %s", args[1])
			}
			endpoint := "login"
			if len(args) == 1 {
				endpoint = args[0]
			}
			path, err := endpointPath(endpoint)
			if err != nil {
				return err
			}

			deps := deps.withDefaults()
			env, err := openEnvironment(ctx, deps, connection, true)
			if err != nil {
				return err
			}
			preference, err := env.preference()
			if err != nil {
				return err
			}

			session, err := uia.NewSession(env.client, uia.SessionConfig{
				Path:   path,
				Logger: env.logger.With("command", "flows"),
			})
			if err != nil {
				return cli.Internal("%w", err)
			}
			defer session.Close()
			if err := session.Connect(ctx); err != nil {
				return fmt.Errorf("opening session: %w", err)
			}
			connected, ok := session.State().(uia.Connected)
			if !ok {
				fmt.Fprintf(deps.Stdout, "%s requires no interactive authentication\n", path)
				return nil
			}

			output := flowsOutput{Endpoint: path, Flows: reportFlows(connected.Flows, preference)}
			if jsonOutput {
				return cli.WriteJSON(deps.Stdout, output)
			}
			fmt.Fprintf(deps.Stdout, "Flows for %s:\n", path)
			for index, flow := range output.Flows {
				marker := ""
				switch {
				case flow.Preferred:
					marker = "  [preferred]"
				case !flow.Supported:
					marker = "  [" + flow.Problem + "]"
				}
				fmt.Fprintf(deps.Stdout, "  %d) %s%s\n", index+1, strings.Join(flow.Stages, " -> "), marker)
			}
			return nil
		},
	}
}

func reportFlows(flows []uia.Flow, preference uia.Preference) []flowReport {
	preferred, choiceErr := uia.ChooseFlow(flows, preference)
	reports := make([]flowReport, len(flows))
	for index, flow := range flows {
		report := flowReport{Stages: flow.Stages, Supported: true}
		if _, ok := flow.Kinds(); !ok {
			report.Supported = false
			report.Problem = "unsupported stage"
		} else if err := uia.ValidateFlow(flow); err != nil {
			report.Supported = false
			report.Problem = "invalid flow"
		}
		report.Preferred = choiceErr == nil && flow.Equal(preferred)
		reports[index] = report
	}
	return reports
}

func endpointPath(endpoint string) (string, error) {
	switch endpoint {
	case "login":
		return loginPath, nil
	case "register":
		return registerPath, nil
	}
	if strings.HasPrefix(endpoint, "/_matrix/") {
		return endpoint, nil
	}
	return "", cli.Validation("unknown endpoint %q (use login, register, or a /_matrix/ path)", endpoint)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
