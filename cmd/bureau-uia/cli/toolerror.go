// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/uia/messaging"
	"github.com/bureau-foundation/uia/uia"
)

// ErrorCategory classifies command errors so scripts can tell bad input
// from a rejected credential from a server that is down.
type ErrorCategory string

const (
	// CategoryValidation indicates the caller provided invalid input.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound indicates a referenced resource does not exist.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryForbidden indicates the server rejected a credential.
	CategoryForbidden ErrorCategory = "forbidden"

	// CategoryTransient indicates a temporary failure: network error,
	// timeout, rate limit. Retrying later may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal indicates an unexpected error.
	CategoryInternal ErrorCategory = "internal"
)

// ToolError is a categorized error returned by commands. It wraps the
// inner error so errors.Is and errors.As still see the full chain.
type ToolError struct {
	Category ErrorCategory
	Err      error
}

func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// Validation creates a validation error: the caller provided bad input.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error: a referenced resource does not exist.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error: an unexpected failure or I/O error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// Categorize returns the category of err. ToolErrors keep their own;
// UIA and transport errors are mapped by kind.
func Categorize(err error) ErrorCategory {
	var toolError *ToolError
	if errors.As(err, &toolError) {
		return toolError.Category
	}
	switch {
	case errors.Is(err, messaging.ErrRateLimited), errors.Is(err, uia.ErrTransport):
		return CategoryTransient
	case errors.Is(err, uia.ErrVerification):
		return CategoryForbidden
	case errors.Is(err, uia.ErrFlowChoiceRequired), errors.Is(err, uia.ErrCancelled), errors.Is(err, uia.ErrArgument):
		return CategoryValidation
	}
	return CategoryInternal
}
