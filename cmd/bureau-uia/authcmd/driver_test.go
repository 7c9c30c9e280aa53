// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authcmd

import (
	"errors"
	"slices"
	"testing"

	"github.com/bureau-foundation/uia/cmd/bureau-uia/cli"
	"github.com/bureau-foundation/uia/lib/ref"
	"github.com/bureau-foundation/uia/uia"
	"github.com/bureau-foundation/uia/uia/uiatest"
)

var (
	passwordFlow = uia.Flow{Stages: []string{uia.StageIDPassword}}
	dummyFlow    = uia.Flow{Stages: []string{uia.StageIDDummy}}
)

func newTestSession(t *testing.T, homeserver *uiatest.Homeserver, config uia.SessionConfig) *uia.Session {
	t.Helper()
	if config.Logger == nil {
		config.Logger = quietLogger()
	}
	session, err := uia.NewSession(newClient(t, homeserver), config)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	t.Cleanup(session.Close)
	return session
}

func loginSession(t *testing.T, homeserver *uiatest.Homeserver, localpart string) *uia.Session {
	t.Helper()
	userID, err := ref.ParseUserID(homeserver.UserID(localpart))
	if err != nil {
		t.Fatalf("ParseUserID failed: %v", err)
	}
	return newTestSession(t, homeserver, uia.SessionConfig{
		Path: uiatest.LoginPath,
		Envelope: map[string]any{
			"identifier": map[string]string{"type": "m.id.user", "user": userID.String()},
		},
		UserID: userID,
	})
}

func runDriver(t *testing.T, driver *Driver) (uia.Finished, error) {
	t.Helper()
	if driver.Logger == nil {
		driver.Logger = quietLogger()
	}
	defer driver.Close()
	return driver.Run(t.Context())
}

func TestDriverRegisterThenLoginWithBSSpeke(t *testing.T) {
	homeserver := uiatest.New(t, uiatest.Config{})

	prompter := &scriptedPrompter{
		confirms: []bool{true},
		lines:    []string{"alice"},
		secrets:  []string{"correct horse", "correct horse"},
	}
	finished, err := runDriver(t, &Driver{
		Session: newTestSession(t, homeserver, uia.SessionConfig{
			Path:       uiatest.RegisterPath,
			ServerName: ref.MustParseServerName(homeserver.ServerName()),
		}),
		Prompter: prompter,
	})
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	if finished.Credentials == nil || finished.Credentials.UserID.String() != homeserver.UserID("alice") {
		t.Fatalf("registered as %+v, want %s", finished.Credentials, homeserver.UserID("alice"))
	}
	if !homeserver.HasBSSpeke("alice") {
		t.Fatal("alice has no BS-SPEKE enrollment after registering")
	}
	wantHeadings := []string{"Terms of service", "Choose a username", "Choose a password (BS-SPEKE)"}
	if !slices.Equal(prompter.headings, wantHeadings) {
		t.Errorf("headings = %q, want %q", prompter.headings, wantHeadings)
	}

	prompter = &scriptedPrompter{secrets: []string{"correct horse"}}
	finished, err = runDriver(t, &Driver{
		Session:  loginSession(t, homeserver, "alice"),
		Prompter: prompter,
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if finished.Credentials == nil || finished.Credentials.AccessToken == "" {
		t.Fatalf("login issued no access token: %+v", finished.Credentials)
	}
	if !slices.Equal(prompter.headings, []string{"Password (BS-SPEKE)"}) {
		t.Errorf("headings = %q, want one BS-SPEKE heading", prompter.headings)
	}
}

func TestDriverReasksRejectedPassword(t *testing.T) {
	homeserver := uiatest.New(t, uiatest.Config{})
	homeserver.AddPasswordUser("bob", "right")

	prompter := &scriptedPrompter{secrets: []string{"wrong", "right"}}
	_, err := runDriver(t, &Driver{
		Session:  loginSession(t, homeserver, "bob"),
		Prompter: prompter,
		Flow:     passwordFlow,
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if len(prompter.secrets) != 0 {
		t.Errorf("%d secrets left unread", len(prompter.secrets))
	}
	if !slices.Contains(prompter.info, "Rejected: Invalid username or password") {
		t.Errorf("info = %q, want the server's rejection", prompter.info)
	}
}

func TestDriverStopsAfterMaxAttempts(t *testing.T) {
	homeserver := uiatest.New(t, uiatest.Config{})
	homeserver.AddPasswordUser("bob", "right")

	prompter := &scriptedPrompter{secrets: []string{"one", "two", "three", "right"}}
	session := loginSession(t, homeserver, "bob")
	_, err := runDriver(t, &Driver{
		Session:  session,
		Prompter: prompter,
		Flow:     passwordFlow,
	})
	if !errors.Is(err, uia.ErrVerification) {
		t.Fatalf("error = %v, want ErrVerification", err)
	}
	if len(prompter.secrets) != 1 {
		t.Errorf("%d secrets left unread, want 1", len(prompter.secrets))
	}
	if _, ok := session.State().(uia.InProgress); !ok {
		t.Errorf("state = %s, want InProgress", session.State())
	}
}

func TestDriverDoesNotRetrySuppliedPassword(t *testing.T) {
	homeserver := uiatest.New(t, uiatest.Config{})
	homeserver.AddPasswordUser("bob", "right")

	_, err := runDriver(t, &Driver{
		Session:  loginSession(t, homeserver, "bob"),
		Prompter: &scriptedPrompter{},
		Flow:     passwordFlow,
		Inputs:   Inputs{Password: testBuffer(t, "wrong")},
	})
	if !errors.Is(err, uia.ErrVerification) {
		t.Fatalf("error = %v, want ErrVerification", err)
	}
	submissions := 0
	for _, request := range homeserver.Requests() {
		if request.Auth["type"] == uia.StageIDPassword {
			submissions++
		}
	}
	if submissions != 1 {
		t.Errorf("password submitted %d times, want 1", submissions)
	}
}

func TestDriverAsksForFlowWhenNoPreferenceMatches(t *testing.T) {
	homeserver := uiatest.New(t, uiatest.Config{})
	homeserver.AddPasswordUser("carol", "secret")
	homeserver.SetFlows(uiatest.LoginPath, passwordFlow, dummyFlow)

	prompter := &scriptedPrompter{choices: []int{1}}
	finished, err := runDriver(t, &Driver{
		Session:    loginSession(t, homeserver, "carol"),
		Prompter:   prompter,
		Preference: uia.Preference{{uia.StageRegistrationToken}},
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if finished.Credentials == nil {
		t.Fatal("login issued no credentials")
	}
	want := [][]string{{passwordFlow.String(), dummyFlow.String()}}
	if len(prompter.options) != 1 || !slices.Equal(prompter.options[0], want[0]) {
		t.Errorf("options = %q, want %q", prompter.options, want)
	}
}

func TestDriverRejectsUnsupportedFlows(t *testing.T) {
	homeserver := uiatest.New(t, uiatest.Config{})
	homeserver.SetFlows(uiatest.LoginPath,
		uia.Flow{Stages: []string{"org.example.captcha"}},
		uia.Flow{Stages: []string{"org.example.sso"}},
	)

	prompter := &scriptedPrompter{}
	_, err := runDriver(t, &Driver{
		Session:  loginSession(t, homeserver, "carol"),
		Prompter: prompter,
	})
	if !errors.Is(err, uia.ErrFlowChoiceRequired) {
		t.Fatalf("error = %v, want ErrFlowChoiceRequired", err)
	}
	if len(prompter.options) != 0 {
		t.Errorf("offered %q, want no menu", prompter.options)
	}
}

func TestDriverDeclinedTermsCancelSession(t *testing.T) {
	homeserver := uiatest.New(t, uiatest.Config{
		Terms: &uia.TermsParams{Policies: map[string]uia.Policy{
			"privacy": {
				Version: "1.2",
				Documents: map[string]uia.PolicyDocument{
					"en": {Name: "Privacy Policy", URL: "https://example.org/privacy"},
				},
			},
		}},
	})

	prompter := &scriptedPrompter{confirms: []bool{false}}
	session := newTestSession(t, homeserver, uia.SessionConfig{
		Path:       uiatest.RegisterPath,
		ServerName: ref.MustParseServerName(homeserver.ServerName()),
	})
	_, err := runDriver(t, &Driver{Session: session, Prompter: prompter})
	if cli.Categorize(err) != cli.CategoryValidation {
		t.Fatalf("error = %v (%s), want a validation error", err, cli.Categorize(err))
	}
	failed, ok := session.State().(uia.Failed)
	if !ok || !errors.Is(failed.Err, uia.ErrCancelled) {
		t.Fatalf("state = %s, want Failed(cancelled)", session.State())
	}
	if !slices.Contains(prompter.info, "  Privacy Policy (version 1.2): https://example.org/privacy") {
		t.Errorf("info = %q, want the policy listed", prompter.info)
	}
}

func TestDriverRegistrationTokenAndEmail(t *testing.T) {
	homeserver := uiatest.New(t, uiatest.Config{})
	homeserver.SetFlows(uiatest.RegisterPath, uia.Flow{Stages: []string{
		uia.StageIDRegistrationToken,
		uia.StageIDEmailEnrollRequestToken,
		uia.StageIDEmailEnrollSubmitToken,
		uia.StageIDPasswordEnroll,
	}})

	prompter := &scriptedPrompter{
		lines:   []string{"000000", "123456"},
		secrets: []string{"new password", "new password"},
	}
	finished, err := runDriver(t, &Driver{
		Session: newTestSession(t, homeserver, uia.SessionConfig{
			Path:       uiatest.RegisterPath,
			Envelope:   map[string]any{"username": "dave"},
			ServerName: ref.MustParseServerName(homeserver.ServerName()),
		}),
		Prompter: prompter,
		Inputs: Inputs{
			RegistrationToken: "test-registration-token",
			Email:             "dave@example.org",
		},
	})
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	if finished.Credentials == nil || finished.Credentials.UserID.String() != homeserver.UserID("dave") {
		t.Fatalf("registered as %+v, want %s", finished.Credentials, homeserver.UserID("dave"))
	}
	if mailed := homeserver.MailedTo(); !slices.Equal(mailed, []string{"dave@example.org"}) {
		t.Errorf("mailed to %q, want one token to dave@example.org", mailed)
	}
	if password, _ := homeserver.Password("dave"); password != "new password" {
		t.Errorf("stored password = %q, want %q", password, "new password")
	}
	if len(prompter.lines) != 0 {
		t.Errorf("%d email tokens left unread", len(prompter.lines))
	}
}

func TestDriverMismatchedNewPassword(t *testing.T) {
	homeserver := uiatest.New(t, uiatest.Config{})
	homeserver.SetFlows(uiatest.RegisterPath, uia.Flow{Stages: []string{uia.StageIDPasswordEnroll}})

	_, err := runDriver(t, &Driver{
		Session: newTestSession(t, homeserver, uia.SessionConfig{
			Path:     uiatest.RegisterPath,
			Envelope: map[string]any{"username": "erin"},
		}),
		Prompter: &scriptedPrompter{secrets: []string{"first", "second"}},
	})
	if cli.Categorize(err) != cli.CategoryValidation {
		t.Fatalf("error = %v, want a validation error", err)
	}
	if _, exists := homeserver.Password("erin"); exists {
		t.Error("account created despite mismatched passwords")
	}
}

func TestForgetOnlyPromptedAnswers(t *testing.T) {
	driver := &Driver{}
	if driver.forget(uia.StageIDPassword) {
		t.Error("forget(password) with nothing prompted = true")
	}
	driver.password = testBuffer(t, "typed")
	if !driver.forget(uia.StageIDPassword) {
		t.Error("forget(password) with a prompted password = false")
	}
	if driver.password != nil {
		t.Error("prompted password kept after forget")
	}

	driver.Inputs.Password = testBuffer(t, "supplied")
	if driver.forget(uia.StageIDPassword) {
		t.Error("forget(password) with a supplied password = true")
	}
	if !driver.forget(uia.StageIDEmailLoginSubmitToken) {
		t.Error("forget(email submit) = false")
	}
	if driver.forget(uia.StageIDBSSpekeLoginVerify) {
		t.Error("forget(bsspeke verify) = true")
	}
}
