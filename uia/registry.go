// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uia

import (
	"fmt"
	"slices"
)

// ValidateFlow checks the structural rules a flow must satisfy before it
// can be driven: no stage repeats, and every second-round stage (email
// submit, BS-SPEKE save or verify) comes after its first round. Unknown
// stage identifiers are not an error here; see [Flow.Kinds].
func ValidateFlow(flow Flow) error {
	if len(flow.Stages) == 0 {
		return fmt.Errorf("flow has no stages")
	}
	seen := make(map[string]bool, len(flow.Stages))
	for position, id := range flow.Stages {
		if seen[id] {
			return fmt.Errorf("flow %s repeats stage %s", flow, id)
		}
		seen[id] = true

		kind, known := ParseStageKind(id)
		if !known {
			continue
		}
		if first, ok := kind.FirstRound(); ok && !seen[first.ID()] {
			return fmt.Errorf("flow %s has %s at position %d without a preceding %s",
				flow, id, position, first)
		}
	}
	return nil
}

// remainingStages returns the stages of flow after the longest prefix
// whose stages are all in completed.
func remainingStages(flow Flow, completed []string) []string {
	done := make(map[string]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}
	prefix := 0
	for prefix < len(flow.Stages) && done[flow.Stages[prefix]] {
		prefix++
	}
	return append([]string(nil), flow.Stages[prefix:]...)
}

// reconcileFlow picks the flow to continue with after a 401. The selected
// flow wins if the server still advertises it. Otherwise the first
// advertised flow that begins with the selected flow's completed prefix
// takes over (the server extended or replaced the flow without undoing
// progress). With no completed prefix there is nothing to carry over and
// ok is false.
func reconcileFlow(selected Flow, state *SessionState) (Flow, bool) {
	if containsFlow(state.Flows, selected) {
		return selected, true
	}
	remaining := remainingStages(selected, state.Completed)
	prefix := selected.Stages[:len(selected.Stages)-len(remaining)]
	if len(prefix) == 0 {
		return Flow{}, false
	}
	for _, flow := range state.Flows {
		if len(flow.Stages) >= len(prefix) && slices.Equal(flow.Stages[:len(prefix)], prefix) {
			return flow, true
		}
	}
	return Flow{}, false
}
