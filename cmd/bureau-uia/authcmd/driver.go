// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package authcmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bureau-foundation/uia/cmd/bureau-uia/cli"
	"github.com/bureau-foundation/uia/lib/secret"
	"github.com/bureau-foundation/uia/uia"
)

// defaultStageAttempts bounds how often a rejected stage is re-prompted.
const defaultStageAttempts = 3

// Inputs are answers supplied up front. Anything left empty is asked for
// through the Prompter when a stage needs it. Buffers are borrowed.
type Inputs struct {
	// Password answers m.login.password and the BS-SPEKE login stages.
	Password *secret.Buffer
	// NewPassword answers m.enroll.password and the BS-SPEKE enroll
	// stages.
	NewPassword       *secret.Buffer
	Username          string
	RegistrationToken string
	Email             string
	AcceptTerms       bool
}

// Driver walks a uia.Session from Connect to Finished, answering each
// stage from Inputs or the Prompter.
type Driver struct {
	Session    *uia.Session
	Prompter   cli.Prompter
	Logger     *slog.Logger
	Preference uia.Preference
	// Flow, when non-empty, is selected instead of consulting Preference.
	Flow   uia.Flow
	Inputs Inputs
	// MaxAttempts bounds how often a rejected prompted answer is asked
	// again. Defaults to 3.
	MaxAttempts int

	// Prompted secrets, owned by the Driver.
	password    *secret.Buffer
	newPassword *secret.Buffer
}

// Run connects, selects a flow, and completes every stage. On success the
// Finished state is returned.
func (d *Driver) Run(ctx context.Context) (uia.Finished, error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if err := d.Session.Connect(ctx); err != nil {
		return uia.Finished{}, err
	}
	if connected, ok := d.Session.State().(uia.Connected); ok {
		if err := d.selectFlow(connected); err != nil {
			return uia.Finished{}, err
		}
	}

	maxAttempts := d.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultStageAttempts
	}
	attempts, lastStage, lastHeading := 0, "", ""
	for {
		switch state := d.Session.State().(type) {
		case uia.Finished:
			return state, nil
		case uia.Failed:
			return uia.Finished{}, state.Err
		case uia.InProgress:
			stage := state.NextStage()
			if stage != lastStage {
				attempts, lastStage = 0, stage
				if heading := stageHeading(stage); heading != lastHeading {
					d.Prompter.Heading(heading)
					lastHeading = heading
				}
			}
			err := d.doStage(ctx, stage)
			if err == nil {
				continue
			}
			var rejected *uia.VerificationError
			if errors.As(err, &rejected) && attempts+1 < maxAttempts && d.forget(stage) {
				attempts++
				d.Logger.Info("stage rejected, asking again", "stage", stage, "attempt", attempts, "errcode", rejected.Code)
				d.Prompter.Info("Rejected: " + rejectionText(rejected))
				continue
			}
			return uia.Finished{}, err
		default:
			return uia.Finished{}, fmt.Errorf("unexpected session state %s", state)
		}
	}
}

// Close zeroes the secrets the Driver prompted for.
func (d *Driver) Close() {
	if d.password != nil {
		d.password.Close()
		d.password = nil
	}
	if d.newPassword != nil {
		d.newPassword.Close()
		d.newPassword = nil
	}
}

func (d *Driver) selectFlow(connected uia.Connected) error {
	if len(d.Flow.Stages) > 0 {
		return d.Session.SelectFlow(d.Flow)
	}
	preference := d.Preference
	if len(preference) == 0 {
		preference = uia.DefaultPreference
	}
	flow, err := d.Session.AutoSelectFlow(preference)
	if err == nil {
		d.Logger.Info("flow selected", "flow", flow.String())
		return nil
	}
	if !errors.Is(err, uia.ErrFlowChoiceRequired) {
		return err
	}

	var supported []uia.Flow
	for _, flow := range connected.Flows {
		if _, ok := flow.Kinds(); ok && uia.ValidateFlow(flow) == nil {
			supported = append(supported, flow)
		}
	}
	if len(supported) == 0 {
		return fmt.Errorf("the server offers no flow this client can complete: %w", err)
	}
	options := make([]string, len(supported))
	for index, flow := range supported {
		options[index] = flow.String()
	}
	choice, err := d.Prompter.Choose("The server offers several ways to authenticate:", options)
	if err != nil {
		return err
	}
	return d.Session.SelectFlow(supported[choice])
}

func (d *Driver) doStage(ctx context.Context, stage string) error {
	kind, ok := uia.ParseStageKind(stage)
	if !ok {
		return fmt.Errorf("stage %s is not supported", stage)
	}
	switch kind {
	case uia.StagePassword:
		password, err := d.currentPassword()
		if err != nil {
			return err
		}
		return d.Session.DoPasswordStage(ctx, password)

	case uia.StagePasswordEnroll:
		password, err := d.enrollPassword()
		if err != nil {
			return err
		}
		return d.Session.DoPasswordEnrollStage(ctx, password)

	case uia.StageTerms:
		return d.terms(ctx)

	case uia.StageDummy:
		return d.Session.DoDummyStage(ctx)

	case uia.StageRegistrationToken:
		token, err := d.answer(&d.Inputs.RegistrationToken, "Registration token")
		if err != nil {
			return err
		}
		return d.Session.DoRegistrationTokenStage(ctx, token)

	case uia.StageUsernameEnroll:
		username, err := d.answer(&d.Inputs.Username, "Username")
		if err != nil {
			return err
		}
		return d.Session.DoUsernameEnrollStage(ctx, username)

	case uia.StageEmailLoginRequestToken, uia.StageEmailEnrollRequestToken:
		if params, err := d.Session.EmailParams(kind); err == nil && len(params.Addresses) > 0 {
			d.Prompter.Info("Addresses on file: " + strings.Join(params.Addresses, ", "))
		}
		email, err := d.answer(&d.Inputs.Email, "Email address")
		if err != nil {
			return err
		}
		return d.Session.DoEmailRequestTokenStage(ctx, purposeOf(kind), email)

	case uia.StageEmailLoginSubmitToken, uia.StageEmailEnrollSubmitToken:
		token, err := d.Prompter.Line("Token from email")
		if err != nil {
			return err
		}
		return d.Session.DoEmailSubmitTokenStage(ctx, purposeOf(kind), token)

	case uia.StageBSSpekeLoginOPRF:
		password, err := d.currentPassword()
		if err != nil {
			return err
		}
		return d.Session.DoBSSpekeOPRFStage(ctx, uia.PurposeLogin, password)

	case uia.StageBSSpekeEnrollOPRF:
		password, err := d.enrollPassword()
		if err != nil {
			return err
		}
		return d.Session.DoBSSpekeOPRFStage(ctx, uia.PurposeEnroll, password)

	case uia.StageBSSpekeEnrollSave:
		return d.Session.DoBSSpekeSaveStage(ctx)

	case uia.StageBSSpekeLoginVerify:
		return d.Session.DoBSSpekeVerifyStage(ctx)
	}
	return fmt.Errorf("stage %s has no handler", stage)
}

// terms shows the advertised policies and asks for acceptance. Declining
// cancels the session.
func (d *Driver) terms(ctx context.Context) error {
	if params, err := d.Session.TermsParams(); err == nil {
		names := make([]string, 0, len(params.Policies))
		for name := range params.Policies {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			policy := params.Policies[name]
			document, ok := policy.Document("en")
			if !ok {
				continue
			}
			d.Prompter.Info(fmt.Sprintf("  %s (version %s): %s", document.Name, policy.Version, document.URL))
		}
	}
	if !d.Inputs.AcceptTerms {
		accepted, err := d.Prompter.Confirm("Accept these terms?")
		if err != nil {
			return err
		}
		if !accepted {
			d.Session.Cancel()
			return cli.Validation("terms were not accepted")
		}
	}
	return d.Session.DoTermsStage(ctx)
}

func (d *Driver) answer(preset *string, label string) (string, error) {
	if *preset != "" {
		return *preset, nil
	}
	value, err := d.Prompter.Line(label)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", cli.Validation("%s is required", strings.ToLower(label))
	}
	*preset = value
	return value, nil
}

func (d *Driver) currentPassword() (*secret.Buffer, error) {
	if d.Inputs.Password != nil {
		return d.Inputs.Password, nil
	}
	if d.password == nil {
		password, err := d.Prompter.Secret("Password")
		if err != nil {
			return nil, err
		}
		d.password = password
	}
	return d.password, nil
}

// enrollPassword asks for the new password twice. The same answer serves
// every enrollment stage of the flow.
func (d *Driver) enrollPassword() (*secret.Buffer, error) {
	if d.Inputs.NewPassword != nil {
		return d.Inputs.NewPassword, nil
	}
	if d.newPassword != nil {
		return d.newPassword, nil
	}
	password, err := d.Prompter.Secret("New password")
	if err != nil {
		return nil, err
	}
	confirmation, err := d.Prompter.Secret("Confirm new password")
	if err != nil {
		password.Close()
		return nil, err
	}
	defer confirmation.Close()
	if !password.Equal(confirmation.Bytes()) {
		password.Close()
		return nil, cli.Validation("passwords do not match")
	}
	d.newPassword = password
	return password, nil
}

// forget drops a prompted answer to stage so the retry asks again. It
// reports false when the answer was supplied up front or the stage cannot
// be retried with a different answer.
func (d *Driver) forget(stage string) bool {
	kind, _ := uia.ParseStageKind(stage)
	switch kind {
	case uia.StagePassword:
		if d.Inputs.Password != nil || d.password == nil {
			return false
		}
		d.password.Close()
		d.password = nil
		return true
	case uia.StageEmailLoginSubmitToken, uia.StageEmailEnrollSubmitToken:
		return true
	}
	return false
}

func purposeOf(kind uia.StageKind) uia.Purpose {
	switch kind {
	case uia.StageEmailEnrollRequestToken, uia.StageEmailEnrollSubmitToken, uia.StageBSSpekeEnrollOPRF:
		return uia.PurposeEnroll
	}
	return uia.PurposeLogin
}

func stageHeading(stage string) string {
	kind, _ := uia.ParseStageKind(stage)
	switch kind {
	case uia.StagePassword:
		return "Password"
	case uia.StagePasswordEnroll:
		return "Choose a password"
	case uia.StageTerms:
		return "Terms of service"
	case uia.StageDummy:
		return "Finishing"
	case uia.StageRegistrationToken:
		return "Registration token"
	case uia.StageUsernameEnroll:
		return "Choose a username"
	case uia.StageEmailLoginRequestToken, uia.StageEmailEnrollRequestToken:
		return "Email verification"
	case uia.StageEmailLoginSubmitToken, uia.StageEmailEnrollSubmitToken:
		return "Email token"
	case uia.StageBSSpekeLoginOPRF, uia.StageBSSpekeLoginVerify:
		return "Password (BS-SPEKE)"
	case uia.StageBSSpekeEnrollOPRF, uia.StageBSSpekeEnrollSave:
		return "Choose a password (BS-SPEKE)"
	}
	return stage
}

func rejectionText(err *uia.VerificationError) string {
	if err.Message != "" {
		return err.Message
	}
	if err.Code != "" {
		return err.Code
	}
	return "the server did not accept this answer"
}
