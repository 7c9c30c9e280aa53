// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uia

import (
	"errors"
	"slices"
	"testing"
)

func flowOf(stages ...string) Flow { return Flow{Stages: stages} }

func TestChooseFlow(t *testing.T) {
	password := flowOf(StageIDPassword)
	bsspekeLogin := flowOf(StageIDBSSpekeLoginOPRF, StageIDBSSpekeLoginVerify)
	bsspekeEnroll := flowOf(StageIDTerms, StageIDUsernameEnroll, StageIDBSSpekeEnrollOPRF, StageIDBSSpekeEnrollSave)
	captcha := flowOf("m.login.recaptcha", StageIDPassword)

	tests := []struct {
		name       string
		flows      []Flow
		preference Preference
		want       Flow
		wantErr    error
	}{
		{
			name:       "single flow is taken as is",
			flows:      []Flow{captcha},
			preference: DefaultPreference,
			want:       captcha,
		},
		{
			name:       "bsspeke login preferred over password",
			flows:      []Flow{password, bsspekeLogin},
			preference: DefaultPreference,
			want:       bsspekeLogin,
		},
		{
			name:       "enrollment before password",
			flows:      []Flow{flowOf(StageIDTerms, StageIDUsernameEnroll, StageIDPasswordEnroll), bsspekeEnroll},
			preference: DefaultPreference,
			want:       bsspekeEnroll,
		},
		{
			name:       "flows with unknown stages are skipped",
			flows:      []Flow{captcha, password},
			preference: DefaultPreference,
			want:       password,
		},
		{
			name:       "nothing matches",
			flows:      []Flow{captcha, flowOf(StageIDDummy)},
			preference: DefaultPreference,
			wantErr:    ErrFlowChoiceRequired,
		},
		{
			name:       "custom preference",
			flows:      []Flow{bsspekeLogin, password},
			preference: Preference{{StagePassword}},
			want:       password,
		},
		{
			name:       "empty preference entry matches nothing",
			flows:      []Flow{bsspekeLogin, password},
			preference: Preference{{}},
			wantErr:    ErrFlowChoiceRequired,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := ChooseFlow(test.flows, test.preference)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("ChooseFlow error = %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ChooseFlow failed: %v", err)
			}
			if !got.Equal(test.want) {
				t.Errorf("ChooseFlow = %s, want %s", got, test.want)
			}
		})
	}
}

func TestValidateFlow(t *testing.T) {
	tests := []struct {
		name  string
		flow  Flow
		valid bool
	}{
		{"password", flowOf(StageIDPassword), true},
		{"bsspeke login", flowOf(StageIDBSSpekeLoginOPRF, StageIDBSSpekeLoginVerify), true},
		{"email then username", flowOf(StageIDEmailEnrollRequestToken, StageIDEmailEnrollSubmitToken, StageIDUsernameEnroll), true},
		{"unknown stages pass", flowOf("org.example.custom", StageIDPassword), true},
		{"empty", flowOf(), false},
		{"repeated stage", flowOf(StageIDTerms, StageIDPassword, StageIDTerms), false},
		{"verify without oprf", flowOf(StageIDBSSpekeLoginVerify), false},
		{"save before oprf", flowOf(StageIDBSSpekeEnrollSave, StageIDBSSpekeEnrollOPRF), false},
		{"submit without request", flowOf(StageIDEmailLoginSubmitToken), false},
		{"mismatched first round", flowOf(StageIDBSSpekeLoginOPRF, StageIDBSSpekeEnrollSave), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := ValidateFlow(test.flow)
			if test.valid && err != nil {
				t.Errorf("ValidateFlow(%s) = %v, want nil", test.flow, err)
			}
			if !test.valid && err == nil {
				t.Errorf("ValidateFlow(%s) accepted an invalid flow", test.flow)
			}
		})
	}
}

func TestRemainingStages(t *testing.T) {
	flow := flowOf(StageIDTerms, StageIDUsernameEnroll, StageIDPasswordEnroll)
	tests := []struct {
		name      string
		completed []string
		want      []string
	}{
		{"nothing completed", nil, flow.Stages},
		{"first completed", []string{StageIDTerms}, flow.Stages[1:]},
		{"order of completed is irrelevant", []string{StageIDUsernameEnroll, StageIDTerms}, flow.Stages[2:]},
		{"gap stops the prefix", []string{StageIDUsernameEnroll}, flow.Stages},
		{"foreign stages ignored", []string{"m.login.dummy", StageIDTerms}, flow.Stages[1:]},
		{"all completed", flow.Stages, []string{}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := remainingStages(flow, test.completed)
			if !slices.Equal(got, test.want) {
				t.Errorf("remainingStages = %v, want %v", got, test.want)
			}
		})
	}
}

func TestReconcileFlow(t *testing.T) {
	password := flowOf(StageIDPassword)
	passwordThenTerms := flowOf(StageIDPassword, StageIDTerms)
	bsspeke := flowOf(StageIDBSSpekeLoginOPRF, StageIDBSSpekeLoginVerify)

	tests := []struct {
		name     string
		selected Flow
		state    SessionState
		want     Flow
		ok       bool
	}{
		{
			name:     "still advertised",
			selected: bsspeke,
			state:    SessionState{Flows: []Flow{password, bsspeke}},
			want:     bsspeke,
			ok:       true,
		},
		{
			name:     "extended with terms",
			selected: password,
			state:    SessionState{Flows: []Flow{passwordThenTerms}, Completed: []string{StageIDPassword}},
			want:     passwordThenTerms,
			ok:       true,
		},
		{
			name:     "withdrawn with no progress",
			selected: bsspeke,
			state:    SessionState{Flows: []Flow{password}},
			ok:       false,
		},
		{
			name:     "replacement does not keep progress",
			selected: bsspeke,
			state:    SessionState{Flows: []Flow{password}, Completed: []string{StageIDBSSpekeLoginOPRF}},
			ok:       false,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, ok := reconcileFlow(test.selected, &test.state)
			if ok != test.ok {
				t.Fatalf("reconcileFlow ok = %v, want %v", ok, test.ok)
			}
			if ok && !got.Equal(test.want) {
				t.Errorf("reconcileFlow = %s, want %s", got, test.want)
			}
		})
	}
}

func TestExtendedFlowRemaining(t *testing.T) {
	state := &SessionState{
		Session:   "abc",
		Flows:     []Flow{flowOf(StageIDPassword, StageIDTerms)},
		Completed: []string{StageIDPassword},
	}
	flow, ok := reconcileFlow(flowOf(StageIDPassword), state)
	if !ok {
		t.Fatal("extended flow was not adopted")
	}
	if got := remainingStages(flow, state.Completed); !slices.Equal(got, []string{StageIDTerms}) {
		t.Errorf("remaining = %v, want [%s]", got, StageIDTerms)
	}
}

func TestDemoted(t *testing.T) {
	flow := flowOf(StageIDTerms, StageIDUsernameEnroll, StageIDPasswordEnroll)
	previous := InProgress{Session: "abc", Flow: flow, Remaining: flow.Stages[1:]}

	if demoted(previous, flow.Stages[2:]) {
		t.Error("normal progress reported as demotion")
	}
	if demoted(previous, flow.Stages[1:]) {
		t.Error("rejected stage reported as demotion")
	}
	if !demoted(previous, flow.Stages) {
		t.Error("reset of a completed stage not detected")
	}
}

func TestFlowKinds(t *testing.T) {
	kinds, ok := flowOf(StageIDBSSpekeLoginOPRF, StageIDBSSpekeLoginVerify).Kinds()
	if !ok || !slices.Equal(kinds, []StageKind{StageBSSpekeLoginOPRF, StageBSSpekeLoginVerify}) {
		t.Errorf("Kinds = %v, %v", kinds, ok)
	}
	if _, ok := flowOf(StageIDPassword, "m.login.sso").Kinds(); ok {
		t.Error("Kinds accepted an unknown stage")
	}
}
