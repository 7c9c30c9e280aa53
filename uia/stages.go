// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uia

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/uia/lib/bsspeke"
	"github.com/bureau-foundation/uia/lib/ref"
	"github.com/bureau-foundation/uia/lib/secret"
)

// DoPasswordStage submits m.login.password. The password is sent base64
// encoded. The buffer is read but not closed.
func (s *Session) DoPasswordStage(ctx context.Context, password *secret.Buffer) error {
	if password == nil {
		return &ArgumentError{Op: "stage " + StagePassword.String(), Err: errors.New("password is required")}
	}
	return s.DoStage(ctx, PasswordAuth{Password: password.Base64()})
}

// DoPasswordEnrollStage submits m.enroll.password with a new password.
func (s *Session) DoPasswordEnrollStage(ctx context.Context, newPassword *secret.Buffer) error {
	if newPassword == nil {
		return &ArgumentError{Op: "stage " + StagePasswordEnroll.String(), Err: errors.New("new password is required")}
	}
	return s.DoStage(ctx, PasswordEnrollAuth{NewPassword: newPassword.Base64()})
}

// DoTermsStage accepts the advertised terms. Read them first with
// TermsParams.
func (s *Session) DoTermsStage(ctx context.Context) error {
	return s.DoStage(ctx, TermsAuth{})
}

// DoDummyStage completes m.login.dummy.
func (s *Session) DoDummyStage(ctx context.Context) error {
	return s.DoStage(ctx, DummyAuth{})
}

// DoRegistrationTokenStage submits a registration token.
func (s *Session) DoRegistrationTokenStage(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return &ArgumentError{Op: "stage " + StageRegistrationToken.String(), Err: errors.New("registration token is empty")}
	}
	return s.DoStage(ctx, RegistrationTokenAuth{Token: token})
}

// DoUsernameEnrollStage claims username as the new account's localpart.
// Once the server accepts it, and no UserID was configured, the session's
// BS-SPEKE client identity becomes @username:server.
func (s *Session) DoUsernameEnrollStage(ctx context.Context, username string) error {
	if err := ref.ValidateLocalpart(username); err != nil {
		return &ArgumentError{Op: "stage " + StageUsernameEnroll.String(), Err: fmt.Errorf("username: %w", err)}
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	session, err := s.expectNext(StageUsernameEnroll)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.pendingUsername = username
	s.mu.Unlock()
	return s.submit(ctx, UsernameEnrollAuth{Username: username}, session)
}

// DoEmailRequestTokenStage asks the server to mail a token to email. A
// fresh client secret is generated and kept for the submit stage.
func (s *Session) DoEmailRequestTokenStage(ctx context.Context, purpose Purpose, email string) error {
	if err := validateEmail(email); err != nil {
		return &ArgumentError{Op: "email request", Err: err}
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	kind := purpose.pick(StageEmailLoginRequestToken, StageEmailEnrollRequestToken)
	session, err := s.expectNext(kind)
	if err != nil {
		return err
	}

	clientSecret := uuid.NewString()
	s.mu.Lock()
	if isTerminal(s.state) {
		err := s.orderingErrorLocked("stage "+kind.String(), "session ended")
		s.mu.Unlock()
		return err
	}
	s.scratch.putClientSecret(kind, clientSecret)
	s.mu.Unlock()

	return s.submit(ctx, EmailRequestTokenAuth{
		Purpose:      purpose,
		Email:        email,
		ClientSecret: clientSecret,
	}, session)
}

// DoEmailSubmitTokenStage submits the token mailed by the request stage.
func (s *Session) DoEmailSubmitTokenStage(ctx context.Context, purpose Purpose, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return &ArgumentError{Op: "email submit", Err: errors.New("email token is empty")}
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	kind := purpose.pick(StageEmailLoginSubmitToken, StageEmailEnrollSubmitToken)
	session, err := s.expectNext(kind)
	if err != nil {
		return err
	}

	first, _ := kind.FirstRound()
	s.mu.Lock()
	clientSecret, ok := s.scratch.clientSecret(first)
	if !ok {
		err := s.orderingErrorLocked("stage "+kind.String(), "no client secret; request a token with "+first.String()+" first")
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	return s.submit(ctx, EmailSubmitTokenAuth{
		Purpose:      purpose,
		Token:        token,
		ClientSecret: clientSecret,
	}, session)
}

// DoBSSpekeOPRFStage starts a BS-SPEKE exchange: it creates a handshake
// bound to the session's user ID and server ID, submits the blinded
// password, and keeps the handshake for the save or verify stage. A
// retried OPRF stage replaces the previous handshake.
func (s *Session) DoBSSpekeOPRFStage(ctx context.Context, purpose Purpose, password *secret.Buffer) error {
	if password == nil {
		return &ArgumentError{Op: "BS-SPEKE OPRF", Err: errors.New("password is required")}
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	kind := purpose.pick(StageBSSpekeLoginOPRF, StageBSSpekeEnrollOPRF)
	session, err := s.expectNext(kind)
	if err != nil {
		return err
	}

	s.mu.Lock()
	userID, serverID := s.userID, s.serverID
	s.mu.Unlock()
	if userID.IsZero() {
		return &CryptoError{Stage: kind.ID(), Err: fmt.Errorf("no user ID to bind the handshake to")}
	}
	if serverID == "" {
		return &CryptoError{Stage: kind.ID(), Err: fmt.Errorf("no server ID to bind the handshake to")}
	}

	client, err := bsspeke.NewClient(userID.String(), serverID, password.Bytes())
	if err != nil {
		return &CryptoError{Stage: kind.ID(), Err: err}
	}
	blind, err := client.GenerateBlind()
	if err != nil {
		client.Close()
		return &CryptoError{Stage: kind.ID(), Err: err}
	}

	s.mu.Lock()
	if isTerminal(s.state) {
		err := s.orderingErrorLocked("stage "+kind.String(), "session ended")
		s.mu.Unlock()
		client.Close()
		return err
	}
	s.scratch.putHandshake(kind, client)
	s.mu.Unlock()

	return s.submit(ctx, BSSpekeOPRFAuth{
		Purpose: purpose,
		Blind:   encodeBase64(blind),
		Curve:   bsspeke.Curve,
	}, session)
}

// DoBSSpekeSaveStage completes BS-SPEKE enrollment by deriving (P, V) from
// the blind salt the server returned for m.enroll.bsspeke-ecc.save.
func (s *Session) DoBSSpekeSaveStage(ctx context.Context) error {
	return s.doBSSpekeKeysStage(ctx, StageBSSpekeEnrollSave)
}

// DoBSSpekeVerifyStage completes BS-SPEKE login by deriving (P, V) from the
// blind salt the server returned for m.login.bsspeke-ecc.verify.
func (s *Session) DoBSSpekeVerifyStage(ctx context.Context) error {
	return s.doBSSpekeKeysStage(ctx, StageBSSpekeLoginVerify)
}

// doBSSpekeKeysStage fails closed: without the retained handshake, usable
// params for this stage, and a successful derivation, nothing is sent.
func (s *Session) doBSSpekeKeysStage(ctx context.Context, kind StageKind) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	session, err := s.expectNext(kind)
	if err != nil {
		return err
	}
	first, _ := kind.FirstRound()

	var params BSSpekeParams
	s.mu.Lock()
	client, haveHandshake := s.scratch.handshake(first)
	present, paramsErr := s.sessionState.decodeParams(kind.ID(), &params)
	s.mu.Unlock()

	if !haveHandshake {
		return &CryptoError{Stage: kind.ID(), Err: fmt.Errorf("no BS-SPEKE handshake retained from %s", first)}
	}
	if paramsErr != nil {
		return &CryptoError{Stage: kind.ID(), Err: paramsErr}
	}
	if !present {
		return &CryptoError{Stage: kind.ID(), Err: fmt.Errorf("server sent no params for %s", kind)}
	}
	blindSalt, err := params.DecodeBlindSalt()
	if err != nil {
		return &CryptoError{Stage: kind.ID(), Err: fmt.Errorf("blind_salt: %w", err)}
	}
	publicKey, verifier, err := client.DeriveKeys(blindSalt, params.PHFParams)
	if err != nil {
		return &CryptoError{Stage: kind.ID(), Err: err}
	}

	encodedP, encodedV := encodeBase64(publicKey), encodeBase64(verifier)
	var payload AuthPayload = BSSpekeSaveAuth{P: encodedP, V: encodedV}
	if kind == StageBSSpekeLoginVerify {
		payload = BSSpekeVerifyAuth{P: encodedP, V: encodedV}
	}
	return s.submit(ctx, payload, session)
}

// validateEmail rejects input that cannot be a bare address: whitespace,
// quotes, a display name, or a missing local part or dotted domain.
func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("address is empty")
	}
	if strings.ContainsAny(email, " \t\"") {
		return fmt.Errorf("address %q contains whitespace or quotes", email)
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("address %q: %w", email, err)
	}
	if parsed.Address != email || parsed.Name != "" {
		return fmt.Errorf("address %q is not a bare address", email)
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return fmt.Errorf("address %q needs a local part and a dotted domain", email)
	}
	return nil
}
