// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uiatest

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/bureau-foundation/uia/lib/bsspeke"
	"github.com/bureau-foundation/uia/lib/ref"
	"github.com/bureau-foundation/uia/lib/testutil"
	"github.com/bureau-foundation/uia/uia"
)

// verifyStageLocked checks one submitted stage. A non-empty errCode means
// the stage is not completed.
func (h *Homeserver) verifyStageLocked(session *serverSession, stage string, auth map[string]any, localpart string) (errCode, message string) {
	switch stage {
	case uia.StageIDPassword:
		password, ok := decodeBase64(auth["password"])
		if !ok {
			return "M_BAD_JSON", "password must be base64"
		}
		account, exists := h.accounts[localpart]
		if !exists || account.password == "" || subtle.ConstantTimeCompare([]byte(account.password), password) != 1 {
			return "M_FORBIDDEN", "Invalid username or password"
		}

	case uia.StageIDPasswordEnroll:
		password, ok := decodeBase64(auth["new_password"])
		if !ok || len(password) == 0 {
			return "M_BAD_JSON", "new_password must be non-empty base64"
		}
		session.newPassword = string(password)

	case uia.StageIDTerms, uia.StageIDDummy:

	case uia.StageIDRegistrationToken:
		token, _ := auth["token"].(string)
		if token != h.config.RegistrationToken {
			return "M_FORBIDDEN", "Invalid registration token"
		}

	case uia.StageIDUsernameEnroll:
		username, _ := auth["username"].(string)
		if err := ref.ValidateLocalpart(username); err != nil {
			return "M_INVALID_USERNAME", err.Error()
		}
		if _, taken := h.accounts[username]; taken {
			return "M_USER_IN_USE", "User ID already taken"
		}
		session.username = username

	case uia.StageIDEmailLoginRequestToken, uia.StageIDEmailEnrollRequestToken:
		email, _ := auth["email"].(string)
		clientSecret, _ := auth["client_secret"].(string)
		if email == "" || clientSecret == "" {
			return "M_MISSING_PARAM", "email and client_secret are required"
		}
		session.emailSecrets[stage] = clientSecret
		h.mailedTo = append(h.mailedTo, email)

	case uia.StageIDEmailLoginSubmitToken, uia.StageIDEmailEnrollSubmitToken:
		kind, _ := uia.ParseStageKind(stage)
		first, _ := kind.FirstRound()
		token, _ := auth["token"].(string)
		clientSecret, _ := auth["client_secret"].(string)
		if expected, ok := session.emailSecrets[first.ID()]; !ok || expected != clientSecret {
			return "M_THREEPID_AUTH_FAILED", "client_secret does not match the token request"
		}
		if token != h.config.EmailToken {
			return "M_THREEPID_AUTH_FAILED", "Invalid email token"
		}

	case uia.StageIDBSSpekeEnrollOPRF:
		salt, err := bsspeke.NewSalt()
		if err != nil {
			return "M_UNKNOWN", err.Error()
		}
		blindSalt, errCode, message := evaluate(salt, auth)
		if errCode != "" {
			return errCode, message
		}
		session.enrollSalt = salt
		session.params[uia.StageIDBSSpekeEnrollSave] = h.bsspekeParams(blindSalt)

	case uia.StageIDBSSpekeEnrollSave:
		if session.enrollSalt == nil {
			return "M_FORBIDDEN", "no OPRF round for this session"
		}
		publicKey, okP := decodeBase64(auth["P"])
		verifier, okV := decodeBase64(auth["V"])
		if !okP || !okV || len(publicKey) != 32 || len(verifier) != 32 {
			return "M_BAD_JSON", "P and V must be 32-byte base64 values"
		}
		session.enrolled = &bsspekeRecord{salt: session.enrollSalt, publicKey: publicKey, verifier: verifier}

	case uia.StageIDBSSpekeLoginOPRF:
		account, exists := h.accounts[localpart]
		if !exists || account.bsspeke == nil {
			return "M_FORBIDDEN", "no BS-SPEKE credentials for this user"
		}
		blindSalt, errCode, message := evaluate(account.bsspeke.salt, auth)
		if errCode != "" {
			return errCode, message
		}
		session.loginSalt = account.bsspeke.salt
		session.params[uia.StageIDBSSpekeLoginVerify] = h.bsspekeParams(blindSalt)

	case uia.StageIDBSSpekeLoginVerify:
		account, exists := h.accounts[localpart]
		if session.loginSalt == nil || !exists || account.bsspeke == nil {
			return "M_FORBIDDEN", "no OPRF round for this session"
		}
		publicKey, okP := decodeBase64(auth["P"])
		verifier, okV := decodeBase64(auth["V"])
		if !okP || !okV ||
			subtle.ConstantTimeCompare(publicKey, account.bsspeke.publicKey) != 1 ||
			subtle.ConstantTimeCompare(verifier, account.bsspeke.verifier) != 1 {
			return "M_FORBIDDEN", "Invalid password"
		}

	default:
		return "M_UNRECOGNIZED", "unsupported stage " + stage
	}
	return "", ""
}

func evaluate(salt *bsspeke.Salt, auth map[string]any) (blindSalt []byte, errCode, message string) {
	if curve, _ := auth["curve"].(string); curve != bsspeke.Curve {
		return nil, "M_INVALID_PARAM", "unsupported curve"
	}
	blind, ok := decodeBase64(auth["blind"])
	if !ok {
		return nil, "M_BAD_JSON", "blind must be base64"
	}
	blindSalt, err := salt.Evaluate(blind)
	if err != nil {
		return nil, "M_INVALID_PARAM", err.Error()
	}
	return blindSalt, "", ""
}

func (h *Homeserver) bsspekeParams(blindSalt []byte) uia.BSSpekeParams {
	return uia.BSSpekeParams{
		BlindSalt: encodeBase64(blindSalt),
		PHFParams: h.config.PHFParams,
	}
}

// completeLocked runs the endpoint action once a flow is covered.
func (h *Homeserver) completeLocked(writer http.ResponseWriter, request *http.Request, body map[string]any, session *serverSession, localpart string) {
	switch {
	case strings.HasSuffix(session.path, "/register"):
		if localpart == "" {
			localpart, _ = body["username"].(string)
		}
		if localpart == "" {
			localpart = testutil.UniqueID("user")
		}
		if _, taken := h.accounts[localpart]; taken {
			writeError(writer, http.StatusBadRequest, "M_USER_IN_USE", "User ID already taken")
			return
		}
		account := h.accountLocked(localpart)
		account.password = session.newPassword
		account.bsspeke = session.enrolled
		if inhibit, _ := body["inhibit_login"].(bool); inhibit {
			writeJSON(writer, http.StatusOK, map[string]string{"user_id": h.UserID(localpart)})
			return
		}
		h.writeCredentialsLocked(writer, localpart)

	case strings.HasSuffix(session.path, "/login"):
		if _, exists := h.accounts[localpart]; !exists {
			writeError(writer, http.StatusForbidden, "M_FORBIDDEN", "Invalid username or password")
			return
		}
		h.writeCredentialsLocked(writer, localpart)

	case strings.HasSuffix(session.path, "/account/password"):
		account, exists := h.accounts[localpart]
		if !exists {
			writeError(writer, http.StatusForbidden, "M_FORBIDDEN", "unknown user")
			return
		}
		if newPassword, ok := body["new_password"].(string); ok && newPassword != "" {
			account.password = newPassword
		}
		if session.enrolled != nil {
			account.bsspeke = session.enrolled
		}
		writeJSON(writer, http.StatusOK, struct{}{})

	default:
		writeJSON(writer, http.StatusOK, struct{}{})
	}
}

func (h *Homeserver) writeCredentialsLocked(writer http.ResponseWriter, localpart string) {
	token := testutil.UniqueID("syt_" + localpart)
	h.tokens[token] = localpart
	writeJSON(writer, http.StatusOK, map[string]string{
		"user_id":      h.UserID(localpart),
		"access_token": token,
		"device_id":    testutil.UniqueID("DEVICE"),
		"home_server":  h.config.ServerName,
	})
}
