// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uia

import (
	"errors"
	"slices"
	"strings"
)

// Flow is one ordered list of stages the server will accept.
type Flow struct {
	Stages []string `json:"stages"`
}

// Equal reports whether two flows list the same stages in the same order.
func (f Flow) Equal(other Flow) bool {
	return slices.Equal(f.Stages, other.Stages)
}

func (f Flow) String() string {
	return "[" + strings.Join(f.Stages, ", ") + "]"
}

// Kinds maps every stage to its kind. ok is false if any stage is unknown.
func (f Flow) Kinds() (kinds []StageKind, ok bool) {
	kinds = make([]StageKind, 0, len(f.Stages))
	for _, id := range f.Stages {
		kind, known := ParseStageKind(id)
		if !known {
			return nil, false
		}
		kinds = append(kinds, kind)
	}
	return kinds, true
}

func containsFlow(flows []Flow, flow Flow) bool {
	return slices.ContainsFunc(flows, flow.Equal)
}

// ErrFlowChoiceRequired is returned by ChooseFlow when no preference
// matches and the caller must pick a flow itself.
var ErrFlowChoiceRequired = errors.New("uia: no flow matches the preference; choose one explicitly")

// Preference is an ordered list of stage sets. A flow satisfies an entry
// when it contains every stage in the set.
type Preference [][]StageKind

// DefaultPreference favours BS-SPEKE login, then BS-SPEKE enrollment, then
// a plain password.
var DefaultPreference = Preference{
	{StageBSSpekeLoginOPRF, StageBSSpekeLoginVerify},
	{StageBSSpekeEnrollOPRF, StageBSSpekeEnrollSave},
	{StagePassword},
}

// ChooseFlow picks a flow without user input. A single advertised flow is
// always chosen. Otherwise the first preference entry satisfied by some
// flow whose stages are all known wins, taking the first such flow in
// server order.
func ChooseFlow(flows []Flow, preference Preference) (Flow, error) {
	if len(flows) == 1 {
		return flows[0], nil
	}
	for _, wanted := range preference {
		for _, flow := range flows {
			kinds, known := flow.Kinds()
			if !known {
				continue
			}
			if containsAll(kinds, wanted) {
				return flow, nil
			}
		}
	}
	return Flow{}, ErrFlowChoiceRequired
}

func containsAll(kinds, wanted []StageKind) bool {
	if len(wanted) == 0 {
		return false
	}
	for _, kind := range wanted {
		if !slices.Contains(kinds, kind) {
			return false
		}
	}
	return true
}
