// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerFormats(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		terminal bool
		wantJSON bool
	}{
		{"auto on terminal", "auto", true, false},
		{"auto piped", "auto", false, true},
		{"empty piped", "", false, true},
		{"forced text", "text", false, false},
		{"forced json", "json", true, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var output bytes.Buffer
			logger, err := newLogger(&output, test.terminal, "info", test.format)
			if err != nil {
				t.Fatalf("newLogger: %v", err)
			}
			logger.Info("stage completed", "stage", "m.login.password")

			var decoded map[string]any
			isJSON := json.Unmarshal(output.Bytes(), &decoded) == nil
			if isJSON != test.wantJSON {
				t.Errorf("JSON output = %v, want %v: %s", isJSON, test.wantJSON, output.String())
			}
			if !strings.Contains(output.String(), "m.login.password") {
				t.Errorf("output missing attribute: %s", output.String())
			}
		})
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var output bytes.Buffer
	logger, err := newLogger(&output, false, "warn", "json")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(output.String(), "dropped") {
		t.Errorf("info record written at warn level: %s", output.String())
	}
	if !strings.Contains(output.String(), "kept") {
		t.Errorf("warn record missing: %s", output.String())
	}
}

func TestNewLoggerRejects(t *testing.T) {
	if _, err := newLogger(&bytes.Buffer{}, false, "loud", "json"); err == nil {
		t.Error("unknown level accepted")
	}
	if _, err := newLogger(&bytes.Buffer{}, false, "info", "xml"); err == nil {
		t.Error("unknown format accepted")
	}
}
