// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package uiatest runs an in-process Matrix homeserver that speaks
// user-interactive authentication, including the server half of BS-SPEKE,
// for tests of the uia package and the tools built on it.
//
// The server keeps accounts in memory. Each protected endpoint is
// configured with its flows via SetFlows; every stage in the uia stage
// registry is verified the way a real homeserver would (passwords are
// compared, registration tokens checked, BS-SPEKE (P, V) matched against
// the enrolled pair). When the completed stages cover an advertised flow
// the endpoint's action runs: /register creates the account, /login issues
// a device, /account/password replaces the credentials.
//
// Enqueue overrides the next reply on a path (429s, 5xx, garbage bodies);
// Demote removes a stage from every session's completed list; Requests
// returns everything the client sent.
package uiatest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/uia/lib/bsspeke"
	"github.com/bureau-foundation/uia/lib/testutil"
	"github.com/bureau-foundation/uia/uia"
)

// Endpoint paths with built-in completion actions.
const (
	RegisterPath       = "/_matrix/client/v3/register"
	LoginPath          = "/_matrix/client/v3/login"
	ChangePasswordPath = "/_matrix/client/v3/account/password"
)

// Config configures a Homeserver. Zero fields take defaults.
type Config struct {
	// ServerName is the server identity used for user IDs and
	// BS-SPEKE. Defaults to "test.local".
	ServerName string
	// PHFParams are returned with every blind salt. Defaults to the
	// cheapest parameters the client accepts.
	PHFParams bsspeke.PHFParams
	// RegistrationToken is the only accepted registration token.
	// Defaults to "test-registration-token".
	RegistrationToken string
	// EmailToken is the token "mailed" by the email request stages.
	// Defaults to "123456".
	EmailToken string
	// Terms are advertised as m.login.terms params.
	Terms *uia.TermsParams
}

// Reply is a canned response for Enqueue.
type Reply struct {
	Status int
	Header http.Header
	Body   string
}

// Request is one request the server received.
type Request struct {
	Path  string
	Auth  map[string]any
	Body  map[string]any
	Token string
}

// Homeserver is the fake server. Safe for concurrent use.
type Homeserver struct {
	config Config
	server *httptest.Server

	mu       sync.Mutex
	flows    map[string][]uia.Flow
	queued   map[string][]Reply
	sessions map[string]*serverSession
	accounts map[string]*account
	tokens   map[string]string
	requests []Request
	mailedTo []string
}

type account struct {
	password string
	bsspeke  *bsspekeRecord
}

type bsspekeRecord struct {
	salt      *bsspeke.Salt
	publicKey []byte
	verifier  []byte
}

type serverSession struct {
	id        string
	path      string
	completed []string
	params    map[string]any
	errCode   string
	errText   string

	username     string
	newPassword  string
	loginSalt    *bsspeke.Salt
	enrollSalt   *bsspeke.Salt
	enrolled     *bsspekeRecord
	emailSecrets map[string]string
}

// New starts a Homeserver and stops it when the test ends. Default flows:
//
//	register:        [terms, username, bsspeke enroll oprf, bsspeke enroll save],
//	                 [terms, username, password enroll]
//	login:           [bsspeke login oprf, bsspeke login verify], [password]
//	account/password: [password]
func New(t testing.TB, config Config) *Homeserver {
	t.Helper()
	if config.ServerName == "" {
		config.ServerName = "test.local"
	}
	if config.PHFParams == (bsspeke.PHFParams{}) {
		config.PHFParams = bsspeke.PHFParams{Blocks: bsspeke.MinBlocks, Iterations: bsspeke.MinIterations}
	}
	if config.RegistrationToken == "" {
		config.RegistrationToken = "test-registration-token"
	}
	if config.EmailToken == "" {
		config.EmailToken = "123456"
	}

	homeserver := &Homeserver{
		config:   config,
		queued:   make(map[string][]Reply),
		sessions: make(map[string]*serverSession),
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		flows: map[string][]uia.Flow{
			RegisterPath: {
				{Stages: []string{uia.StageIDTerms, uia.StageIDUsernameEnroll, uia.StageIDBSSpekeEnrollOPRF, uia.StageIDBSSpekeEnrollSave}},
				{Stages: []string{uia.StageIDTerms, uia.StageIDUsernameEnroll, uia.StageIDPasswordEnroll}},
			},
			LoginPath: {
				{Stages: []string{uia.StageIDBSSpekeLoginOPRF, uia.StageIDBSSpekeLoginVerify}},
				{Stages: []string{uia.StageIDPassword}},
			},
			ChangePasswordPath: {
				{Stages: []string{uia.StageIDPassword}},
			},
		},
	}
	homeserver.server = httptest.NewServer(http.HandlerFunc(homeserver.serveHTTP))
	t.Cleanup(homeserver.server.Close)
	return homeserver
}

// URL returns the base URL of the server.
func (h *Homeserver) URL() string { return h.server.URL }

// ServerName returns the configured server name.
func (h *Homeserver) ServerName() string { return h.config.ServerName }

// UserID returns the full user ID for localpart on this server.
func (h *Homeserver) UserID(localpart string) string {
	return "@" + localpart + ":" + h.config.ServerName
}

// SetFlows replaces the flows advertised for path. Sessions already open
// see the new flows in their next 401.
func (h *Homeserver) SetFlows(path string, flows ...uia.Flow) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flows[path] = flows
}

// AddPasswordUser creates an account with a plain password.
func (h *Homeserver) AddPasswordUser(localpart, password string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accountLocked(localpart).password = password
}

// HasBSSpeke reports whether localpart has enrolled BS-SPEKE keys.
func (h *Homeserver) HasBSSpeke(localpart string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	account, ok := h.accounts[localpart]
	return ok && account.bsspeke != nil
}

// Password returns the stored plain password for localpart.
func (h *Homeserver) Password(localpart string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	account, ok := h.accounts[localpart]
	if !ok {
		return "", false
	}
	return account.password, true
}

// IssueToken creates an access token for localpart, for re-auth tests.
func (h *Homeserver) IssueToken(localpart string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	token := testutil.UniqueID("syt_" + localpart)
	h.tokens[token] = localpart
	return token
}

// Enqueue makes the next request to path receive reply instead of
// normal processing. Replies queue in order.
func (h *Homeserver) Enqueue(path string, replies ...Reply) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queued[path] = append(h.queued[path], replies...)
}

// Demote removes stage from the completed list of every open session.
func (h *Homeserver) Demote(stage string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, session := range h.sessions {
		session.completed = slices.DeleteFunc(session.completed, func(id string) bool { return id == stage })
	}
}

// Requests returns every request received so far.
func (h *Homeserver) Requests() []Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.requests)
}

// MailedTo returns the addresses email tokens were sent to.
func (h *Homeserver) MailedTo() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.mailedTo)
}

func (h *Homeserver) accountLocked(localpart string) *account {
	existing, ok := h.accounts[localpart]
	if !ok {
		existing = &account{}
		h.accounts[localpart] = existing
	}
	return existing
}

func (h *Homeserver) serveHTTP(writer http.ResponseWriter, request *http.Request) {
	switch request.URL.Path {
	case "/_matrix/client/versions":
		writeJSON(writer, http.StatusOK, map[string]any{"versions": []string{"v1.11"}})
		return
	case "/_matrix/client/v3/account/whoami":
		h.serveWhoAmI(writer, request)
		return
	case "/_matrix/client/v3/logout":
		h.serveLogout(writer, request)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if replies := h.queued[request.URL.Path]; len(replies) > 0 {
		reply := replies[0]
		h.queued[request.URL.Path] = replies[1:]
		for key, values := range reply.Header {
			writer.Header()[key] = values
		}
		writer.WriteHeader(reply.Status)
		writer.Write([]byte(reply.Body))
		h.recordLocked(request, nil)
		return
	}

	if _, ok := h.flows[request.URL.Path]; !ok {
		writeError(writer, http.StatusNotFound, "M_UNRECOGNIZED", "unrecognized endpoint")
		return
	}
	if request.Method != http.MethodPost {
		writeError(writer, http.StatusMethodNotAllowed, "M_UNRECOGNIZED", "method not allowed")
		return
	}

	var body map[string]any
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		writeError(writer, http.StatusBadRequest, "M_NOT_JSON", "request body is not JSON")
		return
	}
	h.recordLocked(request, body)
	h.serveUIA(writer, request, body)
}

func (h *Homeserver) recordLocked(request *http.Request, body map[string]any) {
	recorded := Request{Path: request.URL.Path, Body: body, Token: bearerToken(request)}
	if auth, ok := body["auth"].(map[string]any); ok {
		recorded.Auth = auth
	}
	h.requests = append(h.requests, recorded)
}

func (h *Homeserver) serveUIA(writer http.ResponseWriter, request *http.Request, body map[string]any) {
	path := request.URL.Path
	auth, hasAuth := body["auth"].(map[string]any)
	if !hasAuth {
		session := &serverSession{
			id:           testutil.UniqueID("session"),
			path:         path,
			params:       make(map[string]any),
			emailSecrets: make(map[string]string),
		}
		h.sessions[session.id] = session
		h.writeSessionLocked(writer, session)
		return
	}

	sessionID, _ := auth["session"].(string)
	session, ok := h.sessions[sessionID]
	if !ok || session.path != path {
		writeError(writer, http.StatusBadRequest, "M_UNKNOWN", "unknown UIA session")
		return
	}
	stage, _ := auth["type"].(string)
	if !h.offeredLocked(path, stage) {
		writeError(writer, http.StatusBadRequest, "M_UNRECOGNIZED", "stage "+stage+" is not offered")
		return
	}

	session.errCode, session.errText = "", ""
	localpart := h.identifyLocked(request, body, session)
	if errCode, message := h.verifyStageLocked(session, stage, auth, localpart); errCode != "" {
		session.errCode, session.errText = errCode, message
		h.writeSessionLocked(writer, session)
		return
	}
	if !slices.Contains(session.completed, stage) {
		session.completed = append(session.completed, stage)
	}

	if h.flowCompleteLocked(session) {
		delete(h.sessions, session.id)
		h.completeLocked(writer, request, body, session, localpart)
		return
	}
	h.writeSessionLocked(writer, session)
}

func (h *Homeserver) offeredLocked(path, stage string) bool {
	for _, flow := range h.flows[path] {
		if slices.Contains(flow.Stages, stage) {
			return true
		}
	}
	return false
}

func (h *Homeserver) flowCompleteLocked(session *serverSession) bool {
	for _, flow := range h.flows[session.path] {
		complete := true
		for _, stage := range flow.Stages {
			if !slices.Contains(session.completed, stage) {
				complete = false
				break
			}
		}
		if complete {
			return true
		}
	}
	return false
}

// identifyLocked finds the account a request acts on: the bearer token's
// owner, the login identifier, or the username claimed during
// registration.
func (h *Homeserver) identifyLocked(request *http.Request, body map[string]any, session *serverSession) string {
	if token := bearerToken(request); token != "" {
		return h.tokens[token]
	}
	if identifier, ok := body["identifier"].(map[string]any); ok {
		if user, ok := identifier["user"].(string); ok {
			return h.localpartOf(user)
		}
	}
	if user, ok := body["user"].(string); ok {
		return h.localpartOf(user)
	}
	return session.username
}

func (h *Homeserver) localpartOf(user string) string {
	if strings.HasPrefix(user, "@") {
		if colon := strings.IndexByte(user, ':'); colon > 0 {
			return user[1:colon]
		}
	}
	return user
}

func (h *Homeserver) writeSessionLocked(writer http.ResponseWriter, session *serverSession) {
	params := make(map[string]any, len(session.params)+1)
	for stage, value := range session.params {
		params[stage] = value
	}
	if h.config.Terms != nil {
		params[uia.StageIDTerms] = h.config.Terms
	}
	response := map[string]any{
		"session": session.id,
		"flows":   h.flows[session.path],
		"params":  params,
	}
	if len(session.completed) > 0 {
		response["completed"] = session.completed
	}
	if session.errCode != "" {
		response["errcode"] = session.errCode
		response["error"] = session.errText
	}
	writeJSON(writer, http.StatusUnauthorized, response)
}

func (h *Homeserver) serveWhoAmI(writer http.ResponseWriter, request *http.Request) {
	h.mu.Lock()
	localpart, ok := h.tokens[bearerToken(request)]
	h.mu.Unlock()
	if !ok {
		writeError(writer, http.StatusUnauthorized, "M_UNKNOWN_TOKEN", "unknown access token")
		return
	}
	writeJSON(writer, http.StatusOK, map[string]string{"user_id": h.UserID(localpart)})
}

func (h *Homeserver) serveLogout(writer http.ResponseWriter, request *http.Request) {
	h.mu.Lock()
	token := bearerToken(request)
	_, ok := h.tokens[token]
	delete(h.tokens, token)
	h.mu.Unlock()
	if !ok {
		writeError(writer, http.StatusUnauthorized, "M_UNKNOWN_TOKEN", "unknown access token")
		return
	}
	writeJSON(writer, http.StatusOK, struct{}{})
}

func bearerToken(request *http.Request) string {
	return strings.TrimPrefix(request.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	json.NewEncoder(writer).Encode(value)
}

func writeError(writer http.ResponseWriter, status int, code, message string) {
	writeJSON(writer, status, map[string]string{"errcode": code, "error": message})
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func decodeBase64(value any) ([]byte, bool) {
	text, ok := value.(string)
	if !ok {
		return nil, false
	}
	decoded, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(text, "="))
	return decoded, err == nil
}
