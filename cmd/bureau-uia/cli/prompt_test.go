// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/bureau-foundation/uia/messaging"
	"github.com/bureau-foundation/uia/uia"
)

func TestParseYes(t *testing.T) {
	for answer, want := range map[string]bool{
		"y":     true,
		"Y":     true,
		" yes ": true,
		"":      false,
		"n":     false,
		"nope":  false,
	} {
		if got := ParseYes(answer); got != want {
			t.Errorf("ParseYes(%q) = %v, want %v", answer, got, want)
		}
	}
}

func TestParseChoice(t *testing.T) {
	if index, err := ParseChoice(" 2\n", 3); err != nil || index != 1 {
		t.Errorf("ParseChoice(2) = %d, %v; want 1", index, err)
	}
	for _, answer := range []string{"0", "4", "x", ""} {
		if _, err := ParseChoice(answer, 3); err == nil {
			t.Errorf("ParseChoice(%q) accepted", answer)
		}
	}
}

// pipePrompter returns a TerminalPrompter reading input from a pipe.
func pipePrompter(t *testing.T, input string) (*TerminalPrompter, *bytes.Buffer) {
	t.Helper()
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	t.Cleanup(func() { reader.Close() })
	if _, err := writer.WriteString(input); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	writer.Close()
	var output bytes.Buffer
	return &TerminalPrompter{Input: reader, Output: &output}, &output
}

func TestTerminalPrompterLines(t *testing.T) {
	prompter, output := pipePrompter(t, "alice\ny\n2\n")

	name, err := prompter.Line("Username")
	if err != nil || name != "alice" {
		t.Fatalf("Line = %q, %v; want alice", name, err)
	}
	accepted, err := prompter.Confirm("Accept the terms?")
	if err != nil || !accepted {
		t.Fatalf("Confirm = %v, %v; want true", accepted, err)
	}
	choice, err := prompter.Choose("Pick a flow", []string{"password", "bsspeke"})
	if err != nil || choice != 1 {
		t.Fatalf("Choose = %d, %v; want 1", choice, err)
	}
	if _, err := prompter.Line("Anything"); err == nil {
		t.Error("Line after EOF succeeded")
	}

	for _, want := range []string{"Username", "Accept the terms? [y/N]", "1) password", "2) bsspeke"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("output missing %q: %s", want, output.String())
		}
	}
}

func TestTerminalPrompterSecretNeedsTerminal(t *testing.T) {
	prompter, _ := pipePrompter(t, "hunter2\n")
	if _, err := prompter.Secret("Password"); !errors.Is(err, ErrNoTerminal) {
		t.Errorf("Secret on a pipe = %v, want ErrNoTerminal", err)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"validation", Validation("bad input"), CategoryValidation},
		{"wrapped tool error", fmt.Errorf("login: %w", NotFound("no such user")), CategoryNotFound},
		{"verification", &uia.VerificationError{Stage: uia.StageIDPassword, Code: "M_FORBIDDEN"}, CategoryForbidden},
		{"transport", &uia.TransportError{Op: "connect", Err: errors.New("refused")}, CategoryTransient},
		{"rate limited", &messaging.RateLimitError{}, CategoryTransient},
		{"flow choice", uia.ErrFlowChoiceRequired, CategoryValidation},
		{"bad argument", &uia.ArgumentError{Op: "stage m.login.password", Err: errors.New("password is required")}, CategoryValidation},
		{"other", errors.New("disk on fire"), CategoryInternal},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Categorize(test.err); got != test.want {
				t.Errorf("Categorize = %q, want %q", got, test.want)
			}
		})
	}
}
