// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/uia/lib/netutil"
	"github.com/bureau-foundation/uia/lib/ref"
)

// DiscoverHomeserver resolves a server name to its client API base URL via
// https://<server>/.well-known/matrix/client. A missing document (404)
// falls back to https://<server>.
func DiscoverHomeserver(ctx context.Context, httpClient *http.Client, server ref.ServerName) (string, error) {
	if server.IsZero() {
		return "", fmt.Errorf("messaging: server name is required for discovery")
	}
	return discover(ctx, httpClient, "https://"+server.String())
}

func discover(ctx context.Context, httpClient *http.Client, origin string) (string, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/.well-known/matrix/client", nil)
	if err != nil {
		return "", fmt.Errorf("messaging: creating discovery request: %w", err)
	}
	response, err := httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("messaging: discovery request to %s failed: %w", origin, err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return "", fmt.Errorf("messaging: reading discovery response: %w", err)
	}
	if response.StatusCode == http.StatusNotFound {
		return origin, nil
	}
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("messaging: discovery at %s returned %d: %s",
			origin, response.StatusCode, netutil.Snippet(body, 200))
	}

	var wellKnown WellKnown
	if err := json.Unmarshal(body, &wellKnown); err != nil {
		return "", fmt.Errorf("messaging: failed to parse discovery document: %w", err)
	}
	baseURL := strings.TrimRight(wellKnown.Homeserver.BaseURL, "/")
	if baseURL == "" {
		return "", fmt.Errorf("messaging: discovery document at %s has no m.homeserver base_url", origin)
	}
	if parsed, err := url.Parse(baseURL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("messaging: discovery document at %s has invalid base_url %q", origin, baseURL)
	}
	return baseURL, nil
}
