// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uia

import "github.com/bureau-foundation/uia/lib/bsspeke"

// stageScratch holds state that must outlive one request: the BS-SPEKE
// handshake from the OPRF round (keyed by the OPRF stage) and the email
// client secret between request and submit (keyed by the request stage).
// Owned by the Session and guarded by its mutex.
type stageScratch struct {
	handshakes    map[StageKind]*bsspeke.Client
	clientSecrets map[StageKind]string
}

func newStageScratch() *stageScratch {
	return &stageScratch{
		handshakes:    make(map[StageKind]*bsspeke.Client),
		clientSecrets: make(map[StageKind]string),
	}
}

// putHandshake stores client under kind, closing any handshake it
// replaces.
func (s *stageScratch) putHandshake(kind StageKind, client *bsspeke.Client) {
	if previous, ok := s.handshakes[kind]; ok && previous != client {
		previous.Close()
	}
	s.handshakes[kind] = client
}

func (s *stageScratch) handshake(kind StageKind) (*bsspeke.Client, bool) {
	client, ok := s.handshakes[kind]
	return client, ok
}

// takeHandshake removes the handshake without closing it.
func (s *stageScratch) takeHandshake(kind StageKind) (*bsspeke.Client, bool) {
	client, ok := s.handshakes[kind]
	delete(s.handshakes, kind)
	return client, ok
}

func (s *stageScratch) putClientSecret(kind StageKind, secret string) {
	s.clientSecrets[kind] = secret
}

func (s *stageScratch) clientSecret(kind StageKind) (string, bool) {
	secret, ok := s.clientSecrets[kind]
	return secret, ok
}

func (s *stageScratch) dropClientSecret(kind StageKind) {
	delete(s.clientSecrets, kind)
}

// clear closes every handshake and forgets every secret.
func (s *stageScratch) clear() {
	for kind, client := range s.handshakes {
		client.Close()
		delete(s.handshakes, kind)
	}
	clear(s.clientSecrets)
}

func (s *stageScratch) empty() bool {
	return len(s.handshakes) == 0 && len(s.clientSecrets) == 0
}
