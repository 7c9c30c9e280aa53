// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/uia/lib/ref"
	"github.com/bureau-foundation/uia/lib/secret"
)

// Session is an authenticated handle for one user and device.
type Session struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID
	deviceID    string
}

// SessionFromCredentials moves the access token of a completed login or
// registration into protected memory. The caller must call Close on the
// returned Session.
func (c *Client) SessionFromCredentials(credentials *Credentials) (*Session, error) {
	if err := credentials.Validate(); err != nil {
		return nil, err
	}
	tokenBuffer, err := secret.NewFromString(credentials.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return &Session{
		client:      c,
		accessToken: tokenBuffer,
		userID:      credentials.UserID,
		deviceID:    credentials.DeviceID,
	}, nil
}

// UserID returns the Matrix user ID this session is authenticated as.
func (s *Session) UserID() ref.UserID { return s.userID }

// DeviceID returns the device ID assigned by the homeserver.
func (s *Session) DeviceID() string { return s.deviceID }

// AccessToken returns the protected token buffer. It stays owned by the
// Session and is invalid after Close.
func (s *Session) AccessToken() *secret.Buffer { return s.accessToken }

// WhoAmI confirms the token is live and returns the user it belongs to.
func (s *Session) WhoAmI(ctx context.Context) (ref.UserID, error) {
	response, err := s.client.WhoAmI(ctx, s.accessToken)
	if err != nil {
		return ref.UserID{}, err
	}
	return response.UserID, nil
}

// Logout invalidates the access token on the homeserver.
func (s *Session) Logout(ctx context.Context) error {
	_, err := s.client.Call(ctx, Request{
		Method:      http.MethodPost,
		Path:        "/_matrix/client/v3/logout",
		AccessToken: s.accessToken,
		Body:        struct{}{},
	})
	if err != nil {
		return fmt.Errorf("messaging: logout failed: %w", err)
	}
	return nil
}

// Close releases the protected token memory. Idempotent.
func (s *Session) Close() error {
	if s.accessToken != nil {
		s.accessToken.Close()
	}
	return nil
}
