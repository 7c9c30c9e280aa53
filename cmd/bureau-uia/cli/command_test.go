// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "bureau-uia",
		Subcommands: []*Command{
			{
				Name: "version",
				Run: func(_ context.Context, args []string) error {
					called = "version"
					return nil
				},
			},
			{
				Name: "login",
				Run: func(_ context.Context, args []string) error {
					called = "login"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"login"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "login" {
		t.Errorf("dispatched to %q, want %q", called, "login")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "bureau-uia",
		Subcommands: []*Command{
			{
				Name: "credentials",
				Subcommands: []*Command{
					{
						Name: "delete",
						Run: func(_ context.Context, args []string) error {
							called = "credentials delete"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"credentials", "delete", "@alice:example.org"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "credentials delete" {
		t.Errorf("dispatched to %q, want %q", called, "credentials delete")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "@alice:example.org" {
		t.Errorf("args = %v, want [@alice:example.org]", receivedArgs)
	}
}

func TestCommand_Execute_PassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "marker")

	var got any
	command := &Command{
		Name: "login",
		Run: func(ctx context.Context, args []string) error {
			got = ctx.Value(key{})
			return nil
		},
	}
	if err := command.Execute(ctx, nil); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if got != "marker" {
		t.Errorf("context value = %v, want marker", got)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var homeserver string
	var target string

	command := &Command{
		Name: "login",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.StringVar(&homeserver, "homeserver", "", "homeserver URL")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--homeserver", "https://matrix.example.org", "alice"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if homeserver != "https://matrix.example.org" {
		t.Errorf("homeserver = %q, want %q", homeserver, "https://matrix.example.org")
	}
	if target != "alice" {
		t.Errorf("target = %q, want %q", target, "alice")
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "login",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.Bool("json", false, "JSON output")
			flagSet.String("password-file", "", "password file")
			return flagSet
		},
		Run: func(context.Context, []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--pasword-file", "/tmp/p"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "did you mean --password-file") {
		t.Errorf("error = %q, want suggestion for '--password-file'", errStr)
	}
	if !strings.Contains(errStr, "--help") {
		t.Errorf("error = %q, should point to --help", errStr)
	}
	if Categorize(err) != CategoryValidation {
		t.Errorf("Categorize = %q, want validation", Categorize(err))
	}
}

func TestCommand_Execute_UnknownFlagNoSuggestion(t *testing.T) {
	command := &Command{
		Name: "login",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.Bool("json", false, "JSON output")
			return flagSet
		},
		Run: func(context.Context, []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--zzzzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not suggest for distant flag", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "bureau-uia",
		Subcommands: []*Command{
			{Name: "login"},
			{Name: "register"},
			{Name: "version"},
		},
	}

	err := root.Execute(context.Background(), []string{"regster"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), `did you mean "register"`) {
		t.Errorf("error = %q, want suggestion for 'register'", err.Error())
	}
}

func TestCommand_Execute_UnknownSubcommandNoSuggestion(t *testing.T) {
	root := &Command{
		Name: "bureau-uia",
		Subcommands: []*Command{
			{Name: "login"},
			{Name: "register"},
		},
	}

	err := root.Execute(context.Background(), []string{"zzzzzzz"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown subcommand")
	}
	if strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %q, should not contain suggestion for distant input", err.Error())
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			var output bytes.Buffer
			root := &Command{
				Name:       "bureau-uia",
				Summary:    "Matrix interactive authentication",
				HelpOutput: &output,
				Subcommands: []*Command{
					{Name: "login", Summary: "Log in"},
				},
			}

			if err := root.Execute(context.Background(), []string{helpArg}); err != nil {
				t.Errorf("Execute(%q) error: %v", helpArg, err)
			}
			if !strings.Contains(output.String(), "Log in") {
				t.Errorf("help output = %q, want the subcommand listing", output.String())
			}
		})
	}
}

func TestCommand_Execute_HelpAfterFlags(t *testing.T) {
	var output bytes.Buffer
	ran := false
	root := &Command{
		Name:       "bureau-uia",
		HelpOutput: &output,
		Subcommands: []*Command{
			{
				Name: "login",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
					flagSet.Bool("json", false, "JSON output")
					return flagSet
				},
				Run: func(context.Context, []string) error {
					ran = true
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"login", "--json", "--help"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if ran {
		t.Error("Run was called for --help")
	}
	if !strings.Contains(output.String(), "bureau-uia login [flags]") {
		t.Errorf("help output = %q, want the full command path", output.String())
	}
}

func TestCommand_Execute_NoArgsShowsHelp(t *testing.T) {
	var output bytes.Buffer
	root := &Command{
		Name:       "bureau-uia",
		HelpOutput: &output,
		Subcommands: []*Command{
			{Name: "login", Summary: "Log in"},
		},
	}

	err := root.Execute(context.Background(), []string{})
	if err == nil {
		t.Fatal("Execute() = nil, want error for missing subcommand")
	}
	if !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %q, want 'subcommand required'", err.Error())
	}
	if output.Len() == 0 {
		t.Error("no help was printed")
	}
}

func TestCommand_Execute_RunErrorPassesThrough(t *testing.T) {
	sentinel := errors.New("boom")
	command := &Command{
		Name: "login",
		Run:  func(context.Context, []string) error { return sentinel },
	}
	if err := command.Execute(context.Background(), nil); !errors.Is(err, sentinel) {
		t.Errorf("Execute() = %v, want %v", err, sentinel)
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	command := &Command{
		Name:        "bureau-uia",
		Description: "Matrix user-interactive authentication client.",
		Subcommands: []*Command{
			{Name: "login", Summary: "Log in to a homeserver"},
			{Name: "register", Summary: "Create an account"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{
				Description: "Log in with BS-SPEKE or a password",
				Command:     "bureau-uia login alice",
			},
			{
				Description: "Register with a token",
				Command:     "bureau-uia register --registration-token-file /path/to/token",
			},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Matrix user-interactive authentication client.",
		"Usage:",
		"bureau-uia <command> [flags]",
		"Commands:",
		"login",
		"Log in to a homeserver",
		"register",
		"Create an account",
		"Examples:",
		"bureau-uia login alice",
		"bureau-uia register --registration-token-file",
		"Run 'bureau-uia <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_PrintHelp_WithFlags(t *testing.T) {
	command := &Command{
		Name:    "login",
		Summary: "Log in to a homeserver",
		Usage:   "bureau-uia login <user> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("login", pflag.ContinueOnError)
			flagSet.String("password-file", "", "read the password from a file")
			flagSet.Bool("json", false, "print the result as JSON")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"bureau-uia login <user> [flags]",
		"Flags:",
		"password-file",
		"json",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestCommand_FullName(t *testing.T) {
	root := &Command{Name: "bureau-uia"}
	credentials := &Command{Name: "credentials", parent: root}
	list := &Command{Name: "list", parent: credentials}

	if got := root.fullName(); got != "bureau-uia" {
		t.Errorf("root.fullName() = %q, want %q", got, "bureau-uia")
	}
	if got := credentials.fullName(); got != "bureau-uia credentials" {
		t.Errorf("credentials.fullName() = %q, want %q", got, "bureau-uia credentials")
	}
	if got := list.fullName(); got != "bureau-uia credentials list" {
		t.Errorf("list.fullName() = %q, want %q", got, "bureau-uia credentials list")
	}
}
