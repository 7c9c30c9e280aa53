// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/bureau-foundation/uia/lib/ref"
	"github.com/bureau-foundation/uia/lib/secret"
)

// Request describes one logical call to the homeserver.
type Request struct {
	// Method is the HTTP method. Defaults to POST when Body is set and
	// GET otherwise.
	Method string
	// Path is appended to the homeserver base URL, e.g.
	// "/_matrix/client/v3/login".
	Path string
	// Query is encoded into the URL when non-nil.
	Query url.Values
	// AccessToken, when non-nil, is sent as a bearer token. The buffer is
	// read but not closed.
	AccessToken *secret.Buffer
	// Body is JSON-encoded when non-nil.
	Body any
	// ExpectedStatuses are returned as a Response instead of an error.
	// Defaults to 200 only.
	ExpectedStatuses []int
}

// Response is a reply with one of the expected statuses.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Credentials is the body of a successful login or registration.
type Credentials struct {
	UserID       ref.UserID `json:"user_id"`
	AccessToken  string     `json:"access_token"`
	DeviceID     string     `json:"device_id"`
	HomeServer   string     `json:"home_server,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresInMS  int64      `json:"expires_in_ms,omitempty"`
	WellKnown    *WellKnown `json:"well_known,omitempty"`
}

// Validate checks that the fields needed to make authenticated calls are
// present.
func (c *Credentials) Validate() error {
	if c.UserID.IsZero() {
		return fmt.Errorf("messaging: credentials missing user_id")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("messaging: credentials missing access_token")
	}
	return nil
}

// WellKnown is the client discovery document served at
// /.well-known/matrix/client.
type WellKnown struct {
	Homeserver     WellKnownServer  `json:"m.homeserver"`
	IdentityServer *WellKnownServer `json:"m.identity_server,omitempty"`
}

// WellKnownServer is one base URL entry in a WellKnown document.
type WellKnownServer struct {
	BaseURL string `json:"base_url"`
}

// ServerVersionsResponse is the response from GET /_matrix/client/versions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}

// WhoAmIResponse is the response from GET /_matrix/client/v3/account/whoami.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// rateLimitBody is the M_LIMIT_EXCEEDED error shape.
type rateLimitBody struct {
	MatrixError
	RetryAfterMS int64 `json:"retry_after_ms"`
}
