// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uia

import (
	"encoding/json"
	"fmt"
	"slices"
)

// SessionState is the body of every 401 in a UIA exchange.
type SessionState struct {
	Session   string                     `json:"session"`
	Flows     []Flow                     `json:"flows"`
	Completed []string                   `json:"completed,omitempty"`
	Params    map[string]json.RawMessage `json:"params,omitempty"`

	// ErrCode and Error describe why the last submitted stage was
	// rejected, when it was.
	ErrCode string `json:"errcode,omitempty"`
	Error   string `json:"error,omitempty"`
}

// decodeSessionState parses a 401 body. A usable state has a session ID
// and at least one non-empty flow.
func decodeSessionState(body []byte) (*SessionState, error) {
	var state SessionState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, err
	}
	if state.Session == "" {
		return nil, fmt.Errorf("missing session")
	}
	if len(state.Flows) == 0 {
		return nil, fmt.Errorf("no flows advertised")
	}
	for index, flow := range state.Flows {
		if len(flow.Stages) == 0 {
			return nil, fmt.Errorf("flow %d has no stages", index)
		}
	}
	return &state, nil
}

// HasCompleted reports whether the server lists id as completed.
func (s *SessionState) HasCompleted(id string) bool {
	return slices.Contains(s.Completed, id)
}

// decodeParams unmarshals params[id] into target. ok is false when the
// server sent no params for id.
func (s *SessionState) decodeParams(id string, target any) (ok bool, err error) {
	if s == nil {
		return false, nil
	}
	raw, present := s.Params[id]
	if !present || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return true, fmt.Errorf("params for %s: %w", id, err)
	}
	return true, nil
}

func (s *SessionState) clone() *SessionState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Flows = make([]Flow, len(s.Flows))
	for index, flow := range s.Flows {
		clone.Flows[index] = Flow{Stages: slices.Clone(flow.Stages)}
	}
	clone.Completed = slices.Clone(s.Completed)
	if s.Params != nil {
		clone.Params = make(map[string]json.RawMessage, len(s.Params))
		for id, raw := range s.Params {
			clone.Params[id] = slices.Clone(raw)
		}
	}
	return &clone
}
