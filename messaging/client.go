// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/uia/lib/clock"
	"github.com/bureau-foundation/uia/lib/netutil"
	"github.com/bureau-foundation/uia/lib/secret"
	"github.com/bureau-foundation/uia/lib/version"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the Matrix homeserver (e.g., "http://localhost:6167").
	HomeserverURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Clock drives backoff sleeps. If nil, the real clock is used.
	Clock clock.Clock
	// Retry controls 429 handling. Zero fields take the defaults.
	Retry RetryPolicy
	// UserAgent is sent with every request. Defaults to version.UserAgent().
	UserAgent string
}

// Client is an unauthenticated Matrix client. It holds the homeserver URL
// and HTTP transport, shared across Sessions and UIA sessions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	clock      clock.Clock
	retry      RetryPolicy
	userAgent  string
}

// NewClient creates a new unauthenticated Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}

	// Stored as a string with the trailing slash stripped; request URLs
	// are built by concatenation.
	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q must be http or https", config.HomeserverURL)
	}

	retry, err := config.Retry.withDefaults()
	if err != nil {
		return nil, err
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = version.UserAgent()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.HomeserverURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		clock:      clk,
		retry:      retry,
		userAgent:  userAgent,
	}, nil
}

// BaseURL returns the homeserver URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Call sends request, retrying on 429 per the client's RetryPolicy. A
// reply whose status is in request.ExpectedStatuses is returned as a
// Response. Any other status produces a *MatrixError; exhausting the retry
// budget produces a *RateLimitError.
func (c *Client) Call(ctx context.Context, request Request) (*Response, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
		if request.Body != nil {
			method = http.MethodPost
		}
	}
	expected := request.ExpectedStatuses
	if len(expected) == 0 {
		expected = []int{http.StatusOK}
	}

	requestURL := c.baseURL + request.Path
	if request.Query != nil {
		requestURL += "?" + request.Query.Encode()
	}

	var encoded []byte
	if request.Body != nil {
		var err error
		encoded, err = json.Marshal(request.Body)
		if err != nil {
			return nil, fmt.Errorf("messaging: failed to encode request body: %w", err)
		}
		// The encoded body may carry passwords or tokens.
		defer secret.Zero(encoded)
	}

	backoff := newBackoff(c.retry)
	for attempt := 1; ; attempt++ {
		response, err := c.send(ctx, method, requestURL, request.AccessToken, encoded)
		if err != nil {
			return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, request.Path, err)
		}

		if response.StatusCode == http.StatusTooManyRequests {
			matrixErr, hint := c.parseRateLimit(response)
			delay := backoff.next(hint)
			if attempt >= c.retry.MaxAttempts {
				c.logger.Warn("rate limit retries exhausted",
					"method", method,
					"path", request.Path,
					"attempts", attempt,
				)
				return nil, &RateLimitError{Attempts: attempt, LastDelay: delay, Matrix: matrixErr}
			}
			c.logger.Info("rate limited, backing off",
				"method", method,
				"path", request.Path,
				"attempt", attempt,
				"delay", delay,
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("messaging: waiting to retry %s %s: %w", method, request.Path, err)
			}
			continue
		}

		if slices.Contains(expected, response.StatusCode) {
			return response, nil
		}
		return nil, newMatrixError(response)
	}
}

// send performs a single HTTP round trip and reads the bounded body.
func (c *Client) send(ctx context.Context, method, requestURL string, accessToken *secret.Buffer, encoded []byte) (*Response, error) {
	var bodyReader io.Reader
	if encoded != nil {
		bodyReader = bytes.NewReader(encoded)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpRequest.Header.Set("User-Agent", c.userAgent)
	if encoded != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}
	if accessToken != nil {
		httpRequest.Header.Set("Authorization", "Bearer "+accessToken.String())
	}

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	body, err := netutil.ReadResponse(httpResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &Response{
		StatusCode: httpResponse.StatusCode,
		Header:     httpResponse.Header,
		Body:       body,
	}, nil
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	select {
	case <-c.clock.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// newMatrixError builds the error for an unexpected status. All Matrix
// error responses share one JSON shape; anything else keeps a snippet of
// the raw body as the message.
func newMatrixError(response *Response) *MatrixError {
	var matrixErr MatrixError
	if err := json.Unmarshal(response.Body, &matrixErr); err != nil || matrixErr.Code == "" {
		matrixErr = MatrixError{Message: netutil.Snippet(response.Body, 200)}
	}
	matrixErr.StatusCode = response.StatusCode
	return &matrixErr
}

// ServerVersions returns the Matrix protocol versions and unstable features
// supported by the homeserver. Unauthenticated; useful for checking whether
// the homeserver is reachable.
func (c *Client) ServerVersions(ctx context.Context) (*ServerVersionsResponse, error) {
	response, err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/_matrix/client/versions"})
	if err != nil {
		return nil, fmt.Errorf("messaging: server versions failed: %w", err)
	}

	var versions ServerVersionsResponse
	if err := json.Unmarshal(response.Body, &versions); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse versions response: %w", err)
	}
	return &versions, nil
}

// WhoAmI returns the user the access token belongs to.
func (c *Client) WhoAmI(ctx context.Context, accessToken *secret.Buffer) (*WhoAmIResponse, error) {
	if accessToken == nil {
		return nil, fmt.Errorf("messaging: access token is required for whoami")
	}
	response, err := c.Call(ctx, Request{
		Method:      http.MethodGet,
		Path:        "/_matrix/client/v3/account/whoami",
		AccessToken: accessToken,
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var whoami WhoAmIResponse
	if err := json.Unmarshal(response.Body, &whoami); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return &whoami, nil
}
