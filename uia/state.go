// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uia

import (
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/uia/messaging"
)

// State is the session's position in the protocol. Exactly one of
// NotConnected, Connected, InProgress, Finished, and Failed.
type State interface {
	fmt.Stringer
	isState()
}

// NotConnected is the initial state.
type NotConnected struct{}

// Connected holds the flows the server offered; the caller chooses one.
type Connected struct {
	Session string
	Flows   []Flow
}

// InProgress is a selected flow with stages still to complete. Remaining
// is a suffix of Flow.Stages and is never empty.
type InProgress struct {
	Session   string
	Flow      Flow
	Remaining []string
}

// Finished is terminal success. Credentials is set when the endpoint
// issues a login (login, registration); Body always holds the raw 200
// response.
type Finished struct {
	Credentials *messaging.Credentials
	Body        json.RawMessage
}

// Failed is terminal failure.
type Failed struct {
	Err error
}

func (NotConnected) isState() {}
func (Connected) isState()    {}
func (InProgress) isState()   {}
func (Finished) isState()     {}
func (Failed) isState()       {}

func (NotConnected) String() string { return "not connected" }

func (s Connected) String() string {
	return fmt.Sprintf("connected (session %s, %d flows)", s.Session, len(s.Flows))
}

func (s InProgress) String() string {
	return fmt.Sprintf("in progress (session %s, remaining %v)", s.Session, s.Remaining)
}

func (s Finished) String() string {
	if s.Credentials != nil {
		return "finished (" + s.Credentials.UserID.String() + ")"
	}
	return "finished"
}

func (s Failed) String() string { return "failed: " + s.Err.Error() }

// NextStage returns the stage the server expects next.
func (s InProgress) NextStage() string { return s.Remaining[0] }

func isTerminal(state State) bool {
	switch state.(type) {
	case Finished, Failed:
		return true
	}
	return false
}

func sessionIDOf(state State) string {
	switch state := state.(type) {
	case Connected:
		return state.Session
	case InProgress:
		return state.Session
	}
	return ""
}
