// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/uia/lib/bsspeke"
	"github.com/bureau-foundation/uia/lib/ref"
	"github.com/bureau-foundation/uia/lib/secret"
	"github.com/bureau-foundation/uia/messaging"
)

// Transport is the request path a Session needs. *messaging.Client
// implements it.
type Transport interface {
	Call(ctx context.Context, request messaging.Request) (*messaging.Response, error)

	// BaseURL returns the homeserver URL requests are sent to.
	BaseURL() string
}

// SessionConfig describes the UIA-protected request a Session drives.
type SessionConfig struct {
	// Path is the protected endpoint, e.g. "/_matrix/client/v3/register".
	Path string

	// Envelope holds the JSON fields of the protected request itself. It
	// is encoded once by NewSession; later changes by the caller have no
	// effect. Must not contain "auth".
	Envelope map[string]any

	// AccessToken authenticates re-auth requests (password change,
	// device deletion). Read, never closed, by the Session.
	AccessToken *secret.Buffer

	// UserID is the BS-SPEKE client identity. For registration it may
	// be left zero; a completed username stage fills it in.
	UserID ref.UserID

	// ServerID is the BS-SPEKE server identity. Defaults to the host of
	// the transport's base URL, without any port.
	ServerID string

	// ServerName is the server part of the user ID a username stage
	// builds. Defaults to the server part of UserID, else ServerID.
	ServerName ref.ServerName

	// Registration sends an empty first request instead of the
	// envelope. Implied when Path contains "/register".
	Registration bool

	// ExpectCredentials decodes the final 200 as login credentials and
	// fails if it is not. Implied for "/login" and "/register" unless
	// the envelope sets inhibit_login.
	ExpectCredentials bool

	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Session drives one user-interactive authentication exchange from first
// contact to Finished or Failed. One operation may run at a time; a
// concurrent call returns ErrBusy. State, SessionID, Remaining, and the
// params accessors are safe to call from any goroutine.
type Session struct {
	transport         Transport
	path              string
	envelope          map[string]json.RawMessage
	accessToken       *secret.Buffer
	serverID          string
	serverName        ref.ServerName
	registration      bool
	expectCredentials bool
	logger            *slog.Logger

	busy atomic.Bool

	mu           sync.Mutex
	state        State
	sessionState *SessionState
	flow         Flow
	userID       ref.UserID
	scratch      *stageScratch
	handshake    *bsspeke.Client
	observers    map[int]func(State)
	nextObserver int

	// pendingUsername is the localpart submitted by an in-flight
	// username stage.
	pendingUsername string
}

// NewSession prepares a Session in the NotConnected state.
func NewSession(transport Transport, config SessionConfig) (*Session, error) {
	if transport == nil {
		return nil, &ArgumentError{Op: "new session", Err: errors.New("transport is required")}
	}
	if !strings.HasPrefix(config.Path, "/") {
		return nil, &ArgumentError{Op: "new session", Err: fmt.Errorf("path %q must start with /", config.Path)}
	}

	envelope := make(map[string]json.RawMessage, len(config.Envelope))
	for key, value := range config.Envelope {
		if key == "auth" {
			return nil, &ArgumentError{Op: "new session", Err: errors.New("envelope must not contain \"auth\"")}
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, &ArgumentError{Op: "new session", Err: fmt.Errorf("encoding envelope field %q: %w", key, err)}
		}
		envelope[key] = encoded
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serverID := config.ServerID
	if serverID == "" {
		serverID = hostOf(transport.BaseURL())
	}
	serverName := config.ServerName
	if serverName.IsZero() && !config.UserID.IsZero() {
		serverName = config.UserID.Server()
	}
	if serverName.IsZero() && serverID != "" {
		if parsed, err := ref.ParseServerName(serverID); err == nil {
			serverName = parsed
		}
	}

	registration := config.Registration || strings.Contains(config.Path, "/register")
	expectCredentials := config.ExpectCredentials
	if !expectCredentials && (registration || strings.HasSuffix(config.Path, "/login")) {
		expectCredentials = string(envelope["inhibit_login"]) != "true"
	}

	return &Session{
		transport:         transport,
		path:              config.Path,
		envelope:          envelope,
		accessToken:       config.AccessToken,
		serverID:          serverID,
		serverName:        serverName,
		registration:      registration,
		expectCredentials: expectCredentials,
		logger:            logger.With("path", config.Path),
		state:             NotConnected{},
		userID:            config.UserID,
		scratch:           newStageScratch(),
		observers:         make(map[int]func(State)),
	}, nil
}

// hostOf returns the hostname of rawURL, or "" if it has none.
func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// ServerID returns the BS-SPEKE server identity.
func (s *Session) ServerID() string { return s.serverID }

// State returns a snapshot of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.state)
}

// SessionID returns the server's session identifier while Connected or
// InProgress, and "" otherwise.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sessionIDOf(s.state)
}

// Remaining returns the stages still to complete, or nil outside
// InProgress.
func (s *Session) Remaining() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inProgress, ok := s.state.(InProgress); ok {
		return slices.Clone(inProgress.Remaining)
	}
	return nil
}

// UserID returns the BS-SPEKE client identity, which a username stage may
// have set during registration.
func (s *Session) UserID() ref.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// LastSessionState returns a copy of the most recent 401 body, or nil.
func (s *Session) LastSessionState() *SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionState.clone()
}

// TermsParams returns the policies advertised for m.login.terms.
func (s *Session) TermsParams() (*TermsParams, error) {
	var params TermsParams
	if err := s.params(StageTerms, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

// EmailParams returns the params advertised for an email stage.
func (s *Session) EmailParams(kind StageKind) (*EmailParams, error) {
	var params EmailParams
	if err := s.params(kind, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

func (s *Session) params(kind StageKind, target any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionState == nil {
		return &OrderingError{Op: "params", State: s.state.String(), Reason: "no session state received yet"}
	}
	present, err := s.sessionState.decodeParams(kind.ID(), target)
	if err != nil {
		return &DecodeError{Op: "params", Status: http.StatusUnauthorized, Err: err}
	}
	if !present {
		return &OrderingError{Op: "params", State: s.state.String(), Reason: "server sent no params for " + kind.String()}
	}
	return nil
}

// BSSpekeClient returns the handshake retained after a completed BS-SPEKE
// save or verify stage, for deriving application keys with HashedKey. It
// remains owned by the Session and is closed by Close.
func (s *Session) BSSpekeClient() (*bsspeke.Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshake, s.handshake != nil
}

// Subscribe registers fn to be called with each new state after a
// transition has been fully applied. Calls happen on the goroutine that
// caused the transition. The returned function unsubscribes.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Connect sends the opening request. A 401 carrying a session and flows
// moves the session to Connected. A 200 means the endpoint needed no
// authentication and moves it straight to Finished.
func (s *Session) Connect(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	if _, ok := s.state.(NotConnected); !ok {
		err := s.orderingErrorLocked("connect", "session already connected")
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	body := s.envelope
	if s.registration {
		body = map[string]json.RawMessage{}
	}
	response, err := s.call(ctx, body)
	if err != nil {
		return s.fail(&TransportError{Op: "connect", Err: err}, StageUnknown)
	}
	if response.StatusCode == http.StatusOK {
		return s.finish(response, "connect", StageUnknown)
	}

	sessionState, err := decodeSessionState(response.Body)
	if err != nil {
		return s.fail(&DecodeError{Op: "connect", Status: response.StatusCode, Err: err}, StageUnknown)
	}

	s.mu.Lock()
	if isTerminal(s.state) {
		err := s.orderingErrorLocked("connect", "session ended while connecting")
		s.mu.Unlock()
		return err
	}
	s.sessionState = sessionState
	s.state = Connected{Session: sessionState.Session, Flows: sessionState.clone().Flows}
	s.mu.Unlock()

	s.logger.Info("uia session connected",
		"session_id", sessionState.Session,
		"flows", len(sessionState.Flows),
	)
	s.notify()
	return nil
}

// SelectFlow commits to one of the advertised flows. The flow must be
// advertised verbatim and consist only of stages this client implements.
func (s *Session) SelectFlow(flow Flow) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)
	return s.selectFlow(flow)
}

// AutoSelectFlow chooses a flow with ChooseFlow and selects it.
func (s *Session) AutoSelectFlow(preference Preference) (Flow, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Flow{}, ErrBusy
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	connected, ok := s.state.(Connected)
	if !ok {
		err := s.orderingErrorLocked("select flow", "flows can only be chosen while connected")
		s.mu.Unlock()
		return Flow{}, err
	}
	s.mu.Unlock()

	flow, err := ChooseFlow(connected.Flows, preference)
	if err != nil {
		return Flow{}, err
	}
	return flow, s.selectFlow(flow)
}

func (s *Session) selectFlow(flow Flow) error {
	s.mu.Lock()
	connected, ok := s.state.(Connected)
	if !ok {
		err := s.orderingErrorLocked("select flow", "flows can only be chosen while connected")
		s.mu.Unlock()
		return err
	}
	if !containsFlow(connected.Flows, flow) {
		err := s.orderingErrorLocked("select flow", fmt.Sprintf("flow %s was not advertised", flow))
		s.mu.Unlock()
		return err
	}
	if err := ValidateFlow(flow); err != nil {
		s.mu.Unlock()
		return s.fail(&ProtocolError{Reason: "server advertised an invalid flow: " + err.Error()}, StageUnknown)
	}
	if _, known := flow.Kinds(); !known {
		err := s.orderingErrorLocked("select flow", fmt.Sprintf("flow %s contains stages this client cannot complete", flow))
		s.mu.Unlock()
		return err
	}

	selected := Flow{Stages: slices.Clone(flow.Stages)}
	s.flow = selected
	s.state = InProgress{
		Session:   connected.Session,
		Flow:      selected,
		Remaining: slices.Clone(selected.Stages),
	}
	s.mu.Unlock()

	s.logger.Info("uia flow selected", "session_id", connected.Session, "flow", selected.String())
	s.notify()
	return nil
}

// DoStage submits payload for the next stage. The session must be
// InProgress with payload's stage next. On 200 the session is Finished; on
// 401 the server's answer is applied and, if the stage is not listed as
// completed, a *VerificationError is returned with the session still
// InProgress.
//
// BS-SPEKE and email stages keep state between rounds; use their Do*Stage
// methods rather than building those payloads by hand.
func (s *Session) DoStage(ctx context.Context, payload AuthPayload) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.busy.Store(false)

	session, err := s.expectNext(payload.Kind())
	if err != nil {
		return err
	}
	return s.submit(ctx, payload, session)
}

// expectNext checks that kind is the next stage and returns the session
// ID to submit under.
func (s *Session) expectNext(kind StageKind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "stage " + kind.String()
	inProgress, ok := s.state.(InProgress)
	if !ok {
		return "", s.orderingErrorLocked(op, "no flow in progress")
	}
	if next := inProgress.NextStage(); next != kind.ID() {
		return "", s.orderingErrorLocked(op, "next stage is "+next)
	}
	return inProgress.Session, nil
}

func (s *Session) submit(ctx context.Context, payload AuthPayload, session string) error {
	kind := payload.Kind()
	op := "stage " + kind.String()

	auth, err := encodeAuth(payload, session)
	if err != nil {
		return err
	}
	encodedAuth, err := json.Marshal(auth)
	if err != nil {
		return &ArgumentError{Op: op, Err: fmt.Errorf("encoding auth: %w", err)}
	}

	body := make(map[string]json.RawMessage, len(s.envelope)+1)
	for key, value := range s.envelope {
		body[key] = value
	}
	body["auth"] = encodedAuth

	response, err := s.call(ctx, body)
	secret.Zero(encodedAuth)
	if err != nil {
		return s.fail(&TransportError{Op: op, Err: err}, kind)
	}
	if response.StatusCode == http.StatusOK {
		return s.finish(response, op, kind)
	}

	sessionState, err := decodeSessionState(response.Body)
	if err != nil {
		return s.fail(&DecodeError{Op: op, Status: response.StatusCode, Err: err}, kind)
	}
	return s.advance(kind, sessionState)
}

// advance applies a 401 received after submitting kind. The server's
// completed list is authoritative: remaining is recomputed from it against
// the (possibly replaced) flow rather than by popping the stage.
func (s *Session) advance(kind StageKind, sessionState *SessionState) error {
	s.mu.Lock()
	if isTerminal(s.state) {
		err := s.orderingErrorLocked("stage "+kind.String(), "session ended while the stage was in flight")
		s.mu.Unlock()
		return err
	}
	previous, _ := s.state.(InProgress)

	flow, ok := reconcileFlow(s.flow, sessionState)
	if !ok {
		s.mu.Unlock()
		return s.fail(&ProtocolError{Reason: fmt.Sprintf("server no longer offers flow %s", s.flow)}, kind)
	}
	if err := ValidateFlow(flow); err != nil {
		s.mu.Unlock()
		return s.fail(&ProtocolError{Reason: "server advertised an invalid flow: " + err.Error()}, kind)
	}
	remaining := remainingStages(flow, sessionState.Completed)
	if len(remaining) == 0 {
		s.mu.Unlock()
		return s.fail(&ProtocolError{Reason: "server answered 401 with every stage of " + flow.String() + " completed"}, kind)
	}
	if _, known := (Flow{Stages: remaining}).Kinds(); !known {
		s.mu.Unlock()
		return s.fail(&ProtocolError{Reason: fmt.Sprintf("server switched to flow %s with stages this client cannot complete", flow)}, kind)
	}

	accepted := sessionState.HasCompleted(kind.ID())
	if accepted {
		s.acceptedLocked(kind)
	}
	rewound := demoted(previous, remaining)

	s.sessionState = sessionState
	s.flow = flow
	s.state = InProgress{Session: sessionState.Session, Flow: flow, Remaining: remaining}
	s.mu.Unlock()

	if rewound {
		s.logger.Warn("server reset completed stages",
			"session_id", sessionState.Session,
			"stage", kind.ID(),
			"remaining", remaining,
		)
	}
	s.notify()

	if !accepted {
		s.logger.Info("uia stage rejected",
			"session_id", sessionState.Session,
			"stage", kind.ID(),
			"errcode", sessionState.ErrCode,
		)
		return &VerificationError{Stage: kind.ID(), Code: sessionState.ErrCode, Message: sessionState.Error}
	}
	s.logger.Info("uia stage completed",
		"session_id", sessionState.Session,
		"stage", kind.ID(),
		"remaining", len(remaining),
	)
	return nil
}

// demoted reports whether remaining includes a stage that was already
// complete before the last submission.
func demoted(previous InProgress, remaining []string) bool {
	done := previous.Flow.Stages[:len(previous.Flow.Stages)-len(previous.Remaining)]
	for _, id := range remaining {
		if slices.Contains(done, id) {
			return true
		}
	}
	return false
}

// acceptedLocked releases scratch a completed stage no longer needs. A
// finished BS-SPEKE exchange hands its handshake to the session for
// HashedKey; a completed username stage fixes the BS-SPEKE client identity.
func (s *Session) acceptedLocked(kind StageKind) {
	switch kind {
	case StageBSSpekeEnrollSave, StageBSSpekeLoginVerify:
		first, _ := kind.FirstRound()
		if client, ok := s.scratch.takeHandshake(first); ok {
			if s.handshake != nil && s.handshake != client {
				s.handshake.Close()
			}
			s.handshake = client
		}
	case StageEmailLoginSubmitToken, StageEmailEnrollSubmitToken:
		first, _ := kind.FirstRound()
		s.scratch.dropClientSecret(first)
	case StageUsernameEnroll:
		if s.userID.IsZero() && s.pendingUsername != "" && !s.serverName.IsZero() {
			if userID, err := ref.NewUserID(s.pendingUsername, s.serverName); err == nil {
				s.userID = userID
			}
		}
		s.pendingUsername = ""
	}
}

// finish applies a 200.
func (s *Session) finish(response *messaging.Response, op string, kind StageKind) error {
	var credentials *messaging.Credentials
	if s.expectCredentials {
		credentials = &messaging.Credentials{}
		if err := json.Unmarshal(response.Body, credentials); err != nil {
			return s.fail(&DecodeError{Op: op, Status: response.StatusCode, Err: err}, kind)
		}
		if err := credentials.Validate(); err != nil {
			return s.fail(&DecodeError{Op: op, Status: response.StatusCode, Err: err}, kind)
		}
	}

	s.mu.Lock()
	if isTerminal(s.state) {
		err := s.orderingErrorLocked(op, "session ended while the request was in flight")
		s.mu.Unlock()
		return err
	}
	if kind != StageUnknown {
		s.acceptedLocked(kind)
	}
	s.scratch.clear()
	s.sessionState = nil
	s.state = Finished{Credentials: credentials, Body: slices.Clone(response.Body)}
	s.mu.Unlock()

	if credentials != nil {
		s.logger.Info("uia session finished",
			"user_id", credentials.UserID,
			"device_id", credentials.DeviceID,
		)
	} else {
		s.logger.Info("uia session finished")
	}
	s.notify()
	return nil
}

// fail moves the session to Failed with err, discarding scratch, and
// returns err. A session already terminal keeps its state.
func (s *Session) fail(err error, kind StageKind) error {
	s.mu.Lock()
	if isTerminal(s.state) {
		s.mu.Unlock()
		return err
	}
	s.scratch.clear()
	s.state = Failed{Err: err}
	s.mu.Unlock()

	s.logger.Warn("uia session failed", "stage", kind.ID(), "error", err)
	s.notify()
	return err
}

// Cancel ends the session as Failed(ErrCancelled) and discards scratch.
// A call in flight completes its HTTP exchange but its result is dropped.
// Cancelling a terminal session only discards scratch.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.scratch.clear()
	if isTerminal(s.state) {
		s.mu.Unlock()
		return
	}
	s.state = Failed{Err: ErrCancelled}
	s.mu.Unlock()

	s.logger.Info("uia session cancelled")
	s.notify()
}

// Close cancels the session if it is still running and zeroes all
// retained key material, including the BS-SPEKE handshake returned by
// BSSpekeClient.
func (s *Session) Close() {
	s.Cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handshake != nil {
		s.handshake.Close()
		s.handshake = nil
	}
}

func (s *Session) call(ctx context.Context, body map[string]json.RawMessage) (*messaging.Response, error) {
	return s.transport.Call(ctx, messaging.Request{
		Method:           http.MethodPost,
		Path:             s.path,
		AccessToken:      s.accessToken,
		Body:             body,
		ExpectedStatuses: []int{http.StatusOK, http.StatusUnauthorized},
	})
}

func (s *Session) orderingErrorLocked(op, reason string) *OrderingError {
	return &OrderingError{
		Op:     op,
		State:  s.state.String(),
		Reason: reason,
		closed: isTerminal(s.state),
	}
}

// notify delivers the current state to observers. Called without the lock
// held, after the transition is complete.
func (s *Session) notify() {
	s.mu.Lock()
	state := snapshot(s.state)
	observers := make([]func(State), 0, len(s.observers))
	for id := 0; id < s.nextObserver; id++ {
		if fn, ok := s.observers[id]; ok {
			observers = append(observers, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

// snapshot copies the slices in state so callers cannot alias session
// internals.
func snapshot(state State) State {
	switch state := state.(type) {
	case Connected:
		flows := make([]Flow, len(state.Flows))
		for index, flow := range state.Flows {
			flows[index] = Flow{Stages: slices.Clone(flow.Stages)}
		}
		return Connected{Session: state.Session, Flows: flows}
	case InProgress:
		return InProgress{
			Session:   state.Session,
			Flow:      Flow{Stages: slices.Clone(state.Flow.Stages)},
			Remaining: slices.Clone(state.Remaining),
		}
	}
	return state
}
