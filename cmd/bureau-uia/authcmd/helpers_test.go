// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authcmd

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bureau-foundation/uia/lib/secret"
	"github.com/bureau-foundation/uia/lib/testutil"
	"github.com/bureau-foundation/uia/messaging"
	"github.com/bureau-foundation/uia/uia/uiatest"
)

// scriptedPrompter answers prompts from queues and records everything it
// was asked. An empty queue answers with an error so an unexpected prompt
// fails the run instead of blocking.
type scriptedPrompter struct {
	lines    []string
	secrets  []string
	confirms []bool
	choices  []int

	headings []string
	info     []string
	labels   []string
	options  [][]string
}

func (p *scriptedPrompter) Heading(text string) { p.headings = append(p.headings, text) }

func (p *scriptedPrompter) Info(text string) { p.info = append(p.info, text) }

func (p *scriptedPrompter) Line(label string) (string, error) {
	p.labels = append(p.labels, label)
	if len(p.lines) == 0 {
		return "", fmt.Errorf("unexpected line prompt %q", label)
	}
	answer := p.lines[0]
	p.lines = p.lines[1:]
	return answer, nil
}

func (p *scriptedPrompter) Secret(label string) (*secret.Buffer, error) {
	p.labels = append(p.labels, label)
	if len(p.secrets) == 0 {
		return nil, fmt.Errorf("unexpected secret prompt %q", label)
	}
	answer := p.secrets[0]
	p.secrets = p.secrets[1:]
	return secret.NewFromString(answer)
}

func (p *scriptedPrompter) Confirm(label string) (bool, error) {
	p.labels = append(p.labels, label)
	if len(p.confirms) == 0 {
		return false, fmt.Errorf("unexpected confirmation %q", label)
	}
	answer := p.confirms[0]
	p.confirms = p.confirms[1:]
	return answer, nil
}

func (p *scriptedPrompter) Choose(label string, options []string) (int, error) {
	p.labels = append(p.labels, label)
	p.options = append(p.options, options)
	if len(p.choices) == 0 {
		return 0, fmt.Errorf("unexpected choice %q", label)
	}
	answer := p.choices[0]
	p.choices = p.choices[1:]
	return answer, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBuffer(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("creating test buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func newClient(t *testing.T, homeserver *uiatest.Homeserver) *messaging.Client {
	t.Helper()
	client, err := messaging.NewClient(messaging.ClientConfig{HomeserverURL: homeserver.URL(), Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

// commandEnv runs commands against one homeserver with a private
// credentials directory.
type commandEnv struct {
	t              *testing.T
	homeserver     *uiatest.Homeserver
	configPath     string
	credentialsDir string
	stdout         *bytes.Buffer
	prompter       *scriptedPrompter
}

func newCommandEnv(t *testing.T, homeserver *uiatest.Homeserver) *commandEnv {
	t.Helper()
	credentialsDir := filepath.Join(t.TempDir(), "credentials")
	configPath := testutil.WriteFile(t, "bureau-uia.yaml", fmt.Sprintf(`
auth:
  device_display_name: test-device
credentials:
  directory: %s
transport:
  rate_limit_base_delay: 10ms
`, credentialsDir))
	return &commandEnv{
		t:              t,
		homeserver:     homeserver,
		configPath:     configPath,
		credentialsDir: credentialsDir,
		stdout:         &bytes.Buffer{},
		prompter:       &scriptedPrompter{},
	}
}

func (e *commandEnv) deps() Deps {
	return Deps{Stdout: e.stdout, Prompter: e.prompter, Logger: quietLogger()}
}

// run executes the root command with the connection flags appended, and
// returns what it printed.
func (e *commandEnv) run(args ...string) (string, error) {
	e.t.Helper()
	e.stdout.Reset()
	args = append(args,
		"--config", e.configPath,
		"--homeserver", e.homeserver.URL(),
		"--server-name", e.homeserver.ServerName(),
	)
	return e.runOffline(args...)
}

// runOffline executes the root command with only --config appended.
func (e *commandEnv) runOffline(args ...string) (string, error) {
	e.t.Helper()
	e.stdout.Reset()
	if !slices.Contains(args, "--config") {
		args = append(args, "--config", e.configPath)
	}
	err := Root(e.deps()).Execute(e.t.Context(), args)
	return e.stdout.String(), err
}

// secretFile writes value to a file for a --*-file flag.
func secretFile(t *testing.T, value string) string {
	t.Helper()
	return testutil.WriteFile(t, "secret", value+"\n")
}
