// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uia

// Wire identifiers for every stage this client can complete.
const (
	StageIDPassword          = "m.login.password"
	StageIDPasswordEnroll    = "m.enroll.password"
	StageIDTerms             = "m.login.terms"
	StageIDDummy             = "m.login.dummy"
	StageIDRegistrationToken = "m.login.registration_token"
	StageIDUsernameEnroll    = "m.enroll.username"

	StageIDEmailLoginRequestToken  = "m.login.email.request_token"
	StageIDEmailLoginSubmitToken   = "m.login.email.submit_token"
	StageIDEmailEnrollRequestToken = "m.enroll.email.request_token"
	StageIDEmailEnrollSubmitToken  = "m.enroll.email.submit_token"

	StageIDBSSpekeEnrollOPRF  = "m.enroll.bsspeke-ecc.oprf"
	StageIDBSSpekeEnrollSave  = "m.enroll.bsspeke-ecc.save"
	StageIDBSSpekeLoginOPRF   = "m.login.bsspeke-ecc.oprf"
	StageIDBSSpekeLoginVerify = "m.login.bsspeke-ecc.verify"
)

// StageKind is the closed set of stages. The zero value is StageUnknown.
type StageKind int

const (
	StageUnknown StageKind = iota
	StagePassword
	StagePasswordEnroll
	StageTerms
	StageDummy
	StageRegistrationToken
	StageUsernameEnroll
	StageEmailLoginRequestToken
	StageEmailLoginSubmitToken
	StageEmailEnrollRequestToken
	StageEmailEnrollSubmitToken
	StageBSSpekeEnrollOPRF
	StageBSSpekeEnrollSave
	StageBSSpekeLoginOPRF
	StageBSSpekeLoginVerify

	stageKindCount
)

var stageIDs = [stageKindCount]string{
	StageUnknown:                 "",
	StagePassword:                StageIDPassword,
	StagePasswordEnroll:          StageIDPasswordEnroll,
	StageTerms:                   StageIDTerms,
	StageDummy:                   StageIDDummy,
	StageRegistrationToken:       StageIDRegistrationToken,
	StageUsernameEnroll:          StageIDUsernameEnroll,
	StageEmailLoginRequestToken:  StageIDEmailLoginRequestToken,
	StageEmailLoginSubmitToken:   StageIDEmailLoginSubmitToken,
	StageEmailEnrollRequestToken: StageIDEmailEnrollRequestToken,
	StageEmailEnrollSubmitToken:  StageIDEmailEnrollSubmitToken,
	StageBSSpekeEnrollOPRF:       StageIDBSSpekeEnrollOPRF,
	StageBSSpekeEnrollSave:       StageIDBSSpekeEnrollSave,
	StageBSSpekeLoginOPRF:        StageIDBSSpekeLoginOPRF,
	StageBSSpekeLoginVerify:      StageIDBSSpekeLoginVerify,
}

var stageKindsByID = func() map[string]StageKind {
	kinds := make(map[string]StageKind, stageKindCount)
	for kind := StagePassword; kind < stageKindCount; kind++ {
		kinds[stageIDs[kind]] = kind
	}
	return kinds
}()

// firstRounds maps each second-round stage to the stage that must
// precede it in a flow and whose scratch it consumes.
var firstRounds = map[StageKind]StageKind{
	StageEmailLoginSubmitToken:  StageEmailLoginRequestToken,
	StageEmailEnrollSubmitToken: StageEmailEnrollRequestToken,
	StageBSSpekeEnrollSave:      StageBSSpekeEnrollOPRF,
	StageBSSpekeLoginVerify:     StageBSSpekeLoginOPRF,
}

// ParseStageKind maps a wire identifier to its kind.
func ParseStageKind(id string) (StageKind, bool) {
	kind, ok := stageKindsByID[id]
	return kind, ok
}

// ID returns the wire identifier, or "" for StageUnknown.
func (k StageKind) ID() string {
	if k < 0 || k >= stageKindCount {
		return ""
	}
	return stageIDs[k]
}

func (k StageKind) String() string {
	if id := k.ID(); id != "" {
		return id
	}
	return "unknown"
}

// FirstRound returns the stage a second-round stage depends on.
func (k StageKind) FirstRound() (StageKind, bool) {
	first, ok := firstRounds[k]
	return first, ok
}

// IsBSSpeke reports whether the stage is part of a BS-SPEKE exchange.
func (k StageKind) IsBSSpeke() bool {
	switch k {
	case StageBSSpekeEnrollOPRF, StageBSSpekeEnrollSave, StageBSSpekeLoginOPRF, StageBSSpekeLoginVerify:
		return true
	}
	return false
}

// Purpose selects between the login and enrollment variant of a stage
// that has both.
type Purpose int

const (
	PurposeLogin Purpose = iota
	PurposeEnroll
)

func (p Purpose) String() string {
	if p == PurposeEnroll {
		return "enroll"
	}
	return "login"
}

func (p Purpose) pick(login, enroll StageKind) StageKind {
	if p == PurposeEnroll {
		return enroll
	}
	return login
}
