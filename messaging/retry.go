// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Retry defaults.
const (
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxAttempts = 5
	DefaultMaxDelay    = 5 * time.Minute
)

// RetryPolicy controls how Call handles 429 responses.
type RetryPolicy struct {
	// BaseDelay is the wait before the first retry. Each later retry
	// waits twice as long as the one before.
	BaseDelay time.Duration
	// MaxAttempts is the total number of requests, including the first.
	// MaxAttempts 5 means at most 4 retries.
	MaxAttempts int
	// MaxDelay caps every delay, including server hints.
	MaxDelay time.Duration
}

func (p RetryPolicy) withDefaults() (RetryPolicy, error) {
	if p.BaseDelay < 0 || p.MaxAttempts < 0 || p.MaxDelay < 0 {
		return RetryPolicy{}, fmt.Errorf("messaging: retry policy values must not be negative: %+v", p)
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		return RetryPolicy{}, fmt.Errorf("messaging: retry MaxDelay %v is below BaseDelay %v", p.MaxDelay, p.BaseDelay)
	}
	return p, nil
}

// backoff produces the delay sequence for one Call. Every value is at
// least the one before it: doubling never shrinks, a hint only raises,
// and the cap is constant.
type backoff struct {
	policy RetryPolicy
	delay  time.Duration
}

func newBackoff(policy RetryPolicy) *backoff {
	return &backoff{policy: policy}
}

// next returns the delay before the upcoming retry. hint is the server's
// requested wait, zero if none.
func (b *backoff) next(hint time.Duration) time.Duration {
	if b.delay == 0 {
		b.delay = b.policy.BaseDelay
	} else {
		b.delay *= 2
	}
	if hint > b.delay {
		b.delay = hint
	}
	if b.delay > b.policy.MaxDelay {
		b.delay = b.policy.MaxDelay
	}
	return b.delay
}

// parseRateLimit extracts the Matrix error and the larger of the body's
// retry_after_ms and the Retry-After header.
func (c *Client) parseRateLimit(response *Response) (*MatrixError, time.Duration) {
	var hint time.Duration
	var matrixErr *MatrixError

	var body rateLimitBody
	if err := json.Unmarshal(response.Body, &body); err == nil && body.Code != "" {
		matrixErr = &MatrixError{Code: body.Code, Message: body.Message, StatusCode: response.StatusCode}
		if body.RetryAfterMS > 0 {
			hint = time.Duration(body.RetryAfterMS) * time.Millisecond
		}
	}

	if header := strings.TrimSpace(response.Header.Get("Retry-After")); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			if seconds > 0 {
				hint = max(hint, time.Duration(seconds)*time.Second)
			}
		} else if when, err := http.ParseTime(header); err == nil {
			hint = max(hint, when.Sub(c.clock.Now()))
		}
	}
	return matrixErr, hint
}
