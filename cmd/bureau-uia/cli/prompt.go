// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/bureau-foundation/uia/lib/secret"
)

// ErrNoTerminal is returned by TerminalPrompter.Secret when stdin is not a
// terminal. Secrets are never read with echo on.
var ErrNoTerminal = errors.New("no terminal available for hidden input")

// Prompter is the conversation a command has with its operator.
type Prompter interface {
	// Heading announces the next step.
	Heading(text string)
	// Info prints a line of information.
	Info(text string)
	// Line reads one line of visible input.
	Line(label string) (string, error)
	// Secret reads one line with echo disabled.
	Secret(label string) (*secret.Buffer, error)
	// Confirm asks a yes/no question. The default is no.
	Confirm(label string) (bool, error)
	// Choose lists options and returns the index of the one picked.
	Choose(label string, options []string) (int, error)
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// TerminalPrompter prompts on a terminal: labels and headings go to
// Output, answers are read from Input.
type TerminalPrompter struct {
	Input  *os.File
	Output io.Writer

	reader *bufio.Reader
}

// NewTerminalPrompter prompts on stdin and stderr.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{Input: os.Stdin, Output: os.Stderr}
}

func (p *TerminalPrompter) Heading(text string) {
	fmt.Fprintln(p.Output, headingStyle.Render(text))
}

func (p *TerminalPrompter) Info(text string) {
	fmt.Fprintln(p.Output, text)
}

func (p *TerminalPrompter) Line(label string) (string, error) {
	fmt.Fprint(p.Output, labelStyle.Render(label+": "))
	if p.reader == nil {
		p.reader = bufio.NewReader(p.Input)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

func (p *TerminalPrompter) Secret(label string) (*secret.Buffer, error) {
	fileDescriptor := int(p.Input.Fd())
	if !term.IsTerminal(fileDescriptor) {
		return nil, ErrNoTerminal
	}
	fmt.Fprint(p.Output, labelStyle.Render(label+": "))
	data, err := term.ReadPassword(fileDescriptor)
	fmt.Fprintln(p.Output)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	if len(data) == 0 {
		return nil, Validation("%s is empty", strings.ToLower(label))
	}
	return secret.NewFromBytes(data)
}

func (p *TerminalPrompter) Confirm(label string) (bool, error) {
	answer, err := p.Line(label + " [y/N]")
	if err != nil {
		return false, err
	}
	return ParseYes(answer), nil
}

func (p *TerminalPrompter) Choose(label string, options []string) (int, error) {
	p.Info(label)
	for index, option := range options {
		fmt.Fprintf(p.Output, "  %d) %s\n", index+1, option)
	}
	answer, err := p.Line("Choice")
	if err != nil {
		return 0, err
	}
	return ParseChoice(answer, len(options))
}

// ParseYes reports whether answer is an affirmative reply.
func ParseYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// ParseChoice parses a 1-based menu answer into a 0-based index.
func ParseChoice(answer string, count int) (int, error) {
	choice, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || choice < 1 || choice > count {
		return 0, Validation("choice must be a number from 1 to %d, got %q", count, answer)
	}
	return choice - 1, nil
}
