// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uia

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bureau-foundation/uia/lib/bsspeke"
)

// TermsParams lists the policies the user accepts with m.login.terms.
type TermsParams struct {
	Policies map[string]Policy `json:"policies"`
}

// Policy is one versioned policy with a document per language.
type Policy struct {
	Version   string
	Documents map[string]PolicyDocument
}

// PolicyDocument is the name and URL of a policy in one language.
type PolicyDocument struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// UnmarshalJSON splits the "version" key from the per-language keys.
func (p *Policy) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	policy := Policy{Documents: make(map[string]PolicyDocument, len(raw))}
	for key, value := range raw {
		if key == "version" {
			if err := json.Unmarshal(value, &policy.Version); err != nil {
				return fmt.Errorf("policy version: %w", err)
			}
			continue
		}
		var document PolicyDocument
		if err := json.Unmarshal(value, &document); err != nil {
			return fmt.Errorf("policy document %q: %w", key, err)
		}
		policy.Documents[key] = document
	}
	*p = policy
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON.
func (p Policy) MarshalJSON() ([]byte, error) {
	raw := make(map[string]any, len(p.Documents)+1)
	for language, document := range p.Documents {
		raw[language] = document
	}
	raw["version"] = p.Version
	return json.Marshal(raw)
}

// Document returns the document for language, falling back to "en" and
// then to any document.
func (p Policy) Document(language string) (PolicyDocument, bool) {
	if document, ok := p.Documents[language]; ok {
		return document, true
	}
	if document, ok := p.Documents["en"]; ok {
		return document, true
	}
	for _, document := range p.Documents {
		return document, true
	}
	return PolicyDocument{}, false
}

// BSSpekeParams are returned for the save and verify stages after the OPRF
// round.
type BSSpekeParams struct {
	BlindSalt string            `json:"blind_salt"`
	PHFParams bsspeke.PHFParams `json:"phf_params"`
}

// DecodeBlindSalt returns the raw blind salt. Padded and unpadded base64
// are both accepted.
func (p BSSpekeParams) DecodeBlindSalt() ([]byte, error) {
	return decodeBase64(p.BlindSalt)
}

// EmailParams are returned for the email stages. Addresses lists the
// addresses the server will accept, possibly masked.
type EmailParams struct {
	Addresses []string `json:"addresses,omitempty"`
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, fmt.Errorf("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(value, "="))
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	return decoded, nil
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
