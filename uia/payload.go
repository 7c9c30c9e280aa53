// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uia

import (
	"encoding/json"
	"fmt"
)

// AuthPayload is the stage-specific part of an auth dict. The session adds
// "type" and "session" when it submits the payload. The set of
// implementations is closed: one struct per StageKind.
type AuthPayload interface {
	Kind() StageKind
	isAuthPayload()
}

// PasswordAuth submits m.login.password. Password is base64 of the UTF-8
// password.
type PasswordAuth struct {
	Password string `json:"password"`
}

// PasswordEnrollAuth submits m.enroll.password.
type PasswordEnrollAuth struct {
	NewPassword string `json:"new_password"`
}

// TermsAuth accepts every policy listed in the terms params.
type TermsAuth struct{}

// DummyAuth completes m.login.dummy.
type DummyAuth struct{}

// RegistrationTokenAuth submits m.login.registration_token.
type RegistrationTokenAuth struct {
	Token string `json:"token"`
}

// UsernameEnrollAuth claims a localpart during registration.
type UsernameEnrollAuth struct {
	Username string `json:"username"`
}

// EmailRequestTokenAuth asks the server to mail a token to Email.
type EmailRequestTokenAuth struct {
	Purpose      Purpose `json:"-"`
	Email        string  `json:"email"`
	ClientSecret string  `json:"client_secret"`
}

// EmailSubmitTokenAuth submits the mailed token.
type EmailSubmitTokenAuth struct {
	Purpose      Purpose `json:"-"`
	Token        string  `json:"token"`
	ClientSecret string  `json:"client_secret"`
}

// BSSpekeOPRFAuth carries the blinded password point.
type BSSpekeOPRFAuth struct {
	Purpose Purpose `json:"-"`
	Blind   string  `json:"blind"`
	Curve   string  `json:"curve"`
}

// BSSpekeSaveAuth enrolls the derived key pair.
type BSSpekeSaveAuth struct {
	P string `json:"P"`
	V string `json:"V"`
}

// BSSpekeVerifyAuth proves knowledge of the password with the derived key
// pair.
type BSSpekeVerifyAuth struct {
	P string `json:"P"`
	V string `json:"V"`
}

func (PasswordAuth) Kind() StageKind          { return StagePassword }
func (PasswordEnrollAuth) Kind() StageKind    { return StagePasswordEnroll }
func (TermsAuth) Kind() StageKind             { return StageTerms }
func (DummyAuth) Kind() StageKind             { return StageDummy }
func (RegistrationTokenAuth) Kind() StageKind { return StageRegistrationToken }
func (UsernameEnrollAuth) Kind() StageKind    { return StageUsernameEnroll }
func (BSSpekeSaveAuth) Kind() StageKind       { return StageBSSpekeEnrollSave }
func (BSSpekeVerifyAuth) Kind() StageKind     { return StageBSSpekeLoginVerify }

func (p EmailRequestTokenAuth) Kind() StageKind {
	return p.Purpose.pick(StageEmailLoginRequestToken, StageEmailEnrollRequestToken)
}

func (p EmailSubmitTokenAuth) Kind() StageKind {
	return p.Purpose.pick(StageEmailLoginSubmitToken, StageEmailEnrollSubmitToken)
}

func (p BSSpekeOPRFAuth) Kind() StageKind {
	return p.Purpose.pick(StageBSSpekeLoginOPRF, StageBSSpekeEnrollOPRF)
}

func (PasswordAuth) isAuthPayload()          {}
func (PasswordEnrollAuth) isAuthPayload()    {}
func (TermsAuth) isAuthPayload()             {}
func (DummyAuth) isAuthPayload()             {}
func (RegistrationTokenAuth) isAuthPayload() {}
func (UsernameEnrollAuth) isAuthPayload()    {}
func (EmailRequestTokenAuth) isAuthPayload() {}
func (EmailSubmitTokenAuth) isAuthPayload()  {}
func (BSSpekeOPRFAuth) isAuthPayload()       {}
func (BSSpekeSaveAuth) isAuthPayload()       {}
func (BSSpekeVerifyAuth) isAuthPayload()     {}

// encodeAuth renders payload as the auth dict: its own fields plus type
// and session.
func encodeAuth(payload AuthPayload, session string) (map[string]json.RawMessage, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, &ArgumentError{Op: "stage " + payload.Kind().String(), Err: fmt.Errorf("encoding auth: %w", err)}
	}
	var auth map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &auth); err != nil {
		return nil, &ArgumentError{Op: "stage " + payload.Kind().String(), Err: fmt.Errorf("encoding auth: %w", err)}
	}
	if auth == nil {
		auth = make(map[string]json.RawMessage, 2)
	}
	auth["type"] = mustMarshal(payload.Kind().ID())
	auth["session"] = mustMarshal(session)
	return auth, nil
}

func mustMarshal(value string) json.RawMessage {
	encoded, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("uia: marshaling string: %v", err))
	}
	return encoded
}
