// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
	"time"
)

// MatrixError represents a structured error response from the Matrix homeserver.
// Callers can use errors.As to extract the structured information:
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) {
//	    if matrixErr.Code == ErrCodeForbidden { ... }
//	}
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN", "M_UNKNOWN_TOKEN").
	// Empty when the server's body was not a Matrix error object.
	Code string `json:"errcode"`
	// Message is the human-readable error description from the server.
	Message string `json:"error"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *MatrixError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("matrix: unexpected status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard Matrix error codes.
const (
	ErrCodeForbidden     = "M_FORBIDDEN"
	ErrCodeUnknownToken  = "M_UNKNOWN_TOKEN"
	ErrCodeNotFound      = "M_NOT_FOUND"
	ErrCodeUserInUse     = "M_USER_IN_USE"
	ErrCodeInvalidUser   = "M_INVALID_USERNAME"
	ErrCodeLimitExceeded = "M_LIMIT_EXCEEDED"
	ErrCodeUnrecognized  = "M_UNRECOGNIZED"
	ErrCodeUnknown       = "M_UNKNOWN"
	ErrCodeInvalidParam  = "M_INVALID_PARAM"
	ErrCodeMissingParam  = "M_MISSING_PARAM"
	ErrCodeThreepidAuth  = "M_THREEPID_AUTH_FAILED"
)

// IsMatrixError checks whether err is a *MatrixError with the given error code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// ErrRateLimited matches every *RateLimitError.
var ErrRateLimited = errors.New("messaging: rate limited")

// RateLimitError is returned when every attempt the retry policy allows
// was answered with 429.
type RateLimitError struct {
	// Attempts is the number of requests made, all rate-limited.
	Attempts int
	// LastDelay is the delay the next retry would have used.
	LastDelay time.Duration
	// Matrix is the error body of the final 429, when it decoded.
	Matrix *MatrixError
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("messaging: rate limited after %d attempts", e.Attempts)
}

// Is reports true for ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Unwrap exposes the final MatrixError.
func (e *RateLimitError) Unwrap() error {
	if e.Matrix == nil {
		return nil
	}
	return e.Matrix
}
