// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uia

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Each typed error below matches exactly one.
var (
	ErrTransport    = errors.New("uia: transport failure")
	ErrDecode       = errors.New("uia: undecodable response")
	ErrOrdering     = errors.New("uia: operation out of order")
	ErrVerification = errors.New("uia: stage rejected")
	ErrCrypto       = errors.New("uia: crypto failure")
	ErrProtocol     = errors.New("uia: protocol violation")
	ErrArgument     = errors.New("uia: invalid argument")

	// ErrSessionClosed matches an OrderingError raised because the
	// session is already Finished or Failed.
	ErrSessionClosed = errors.New("uia: session is closed")

	// ErrBusy is returned when a second call starts while one is in
	// flight on the same session. The session is not touched.
	ErrBusy = errors.New("uia: another call is in progress on this session")

	// ErrCancelled is the error held by a session ended with Cancel.
	ErrCancelled = errors.New("uia: session cancelled")
)

// TransportError wraps a network failure, an unexpected HTTP status, or an
// exhausted rate-limit budget. The session is Failed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("uia: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error        { return e.Err }
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// DecodeError reports a response body that could not be parsed. The
// session is Failed.
type DecodeError struct {
	Op     string
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("uia: %s: decoding %d response: %v", e.Op, e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error        { return e.Err }
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// OrderingError reports an operation attempted in the wrong state or a
// stage that is not next. State is never changed.
type OrderingError struct {
	Op     string
	State  string
	Reason string
	closed bool
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("uia: %s: %s (state: %s)", e.Op, e.Reason, e.State)
}

func (e *OrderingError) Is(target error) bool {
	return target == ErrOrdering || (e.closed && target == ErrSessionClosed)
}

// VerificationError reports a stage the server did not accept. The
// session stays InProgress so the stage can be retried.
type VerificationError struct {
	Stage   string
	Code    string
	Message string
}

func (e *VerificationError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("uia: stage %s was not accepted", e.Stage)
	}
	return fmt.Sprintf("uia: stage %s was not accepted: %s: %s", e.Stage, e.Code, e.Message)
}

func (e *VerificationError) Is(target error) bool { return target == ErrVerification }

// CryptoError reports a BS-SPEKE stage that could not be prepared: a
// missing handshake, server parameters that do not decode, or a
// key-derivation failure. Nothing was sent; the session is unchanged.
type CryptoError struct {
	Stage string
	Err   error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("uia: stage %s: %v", e.Stage, e.Err)
}

func (e *CryptoError) Unwrap() error        { return e.Err }
func (e *CryptoError) Is(target error) bool { return target == ErrCrypto }

// ArgumentError reports a caller-supplied value that was rejected before
// anything was sent: a nil password, an empty token, a malformed
// username. The session is unchanged.
type ArgumentError struct {
	Op  string
	Err error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("uia: %s: %v", e.Op, e.Err)
}

func (e *ArgumentError) Unwrap() error        { return e.Err }
func (e *ArgumentError) Is(target error) bool { return target == ErrArgument }

// ProtocolError reports a server that broke the UIA contract: it withdrew
// the selected flow, advertised a malformed one, or answered 401 with
// nothing left to do. The session is Failed.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string        { return "uia: protocol violation: " + e.Reason }
func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }
