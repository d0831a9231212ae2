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
	"strings"

	"github.com/bureau-foundation/hookbridge/lib/clock"
	"github.com/bureau-foundation/hookbridge/lib/httpx"
	"github.com/bureau-foundation/hookbridge/lib/ref"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the Matrix homeserver
	// (e.g., "http://localhost:8008"). Required.
	HomeserverURL string

	// ServerName is the Matrix server name the homeserver serves.
	// Virtual user IDs are constructed against it. Required.
	ServerName ref.ServerName

	// ASToken is the appservice token from the registration file,
	// sent as the bearer token on every request. Required.
	ASToken string

	// BotLocalpart is the localpart of the bridge bot user (the
	// registration's sender_localpart). Required.
	BotLocalpart string

	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used.
	HTTPClient *http.Client

	// Clock timestamps outgoing transaction IDs. If nil, the real
	// clock is used.
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Client is an application-service Matrix client. It holds the
// homeserver URL, HTTP transport, and the as_token shared by all
// Intents derived from it.
type Client struct {
	baseURL    string
	serverName ref.ServerName
	asToken    string
	botUserID  ref.UserID
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger
}

// NewClient creates an appservice Matrix client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}
	if config.ServerName.IsZero() {
		return nil, fmt.Errorf("messaging: ServerName is required")
	}
	if config.ASToken == "" {
		return nil, fmt.Errorf("messaging: ASToken is required")
	}
	if config.BotLocalpart == "" {
		return nil, fmt.Errorf("messaging: BotLocalpart is required")
	}

	// Validate the URL structure. The string form (trailing slash
	// stripped) is stored and request URLs are built by direct
	// concatenation — url.URL.String() re-encodes Path in ways that
	// break pre-encoded segments.
	if _, err := url.Parse(config.HomeserverURL); err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.HomeserverURL, "/"),
		serverName: config.ServerName,
		asToken:    config.ASToken,
		botUserID:  ref.MakeUserID(config.BotLocalpart, config.ServerName),
		httpClient: httpClient,
		clock:      clk,
		logger:     logger,
	}, nil
}

// ServerName returns the Matrix server name the client is configured
// against.
func (c *Client) ServerName() ref.ServerName { return c.serverName }

// BotUserID returns the bridge bot's fully-qualified user ID.
func (c *Client) BotUserID() ref.UserID { return c.botUserID }

// WhoAmI validates the as_token and returns the appservice's own user
// ID. Useful at startup to confirm the registration is active on the
// homeserver.
func (c *Client) WhoAmI(ctx context.Context) (ref.UserID, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", ref.UserID{}, nil)
	if err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response struct {
		UserID ref.UserID `json:"user_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.UserID{}, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return response.UserID, nil
}

// doRequest performs an HTTP request to the homeserver and returns the
// response body. On 2xx, returns the body. On 4xx/5xx, returns the
// body alongside a *MatrixError.
//
// impersonate selects the acting user via the user_id query parameter
// (appservice identity assertion). Pass the zero UserID to act as the
// appservice itself. query may be nil for endpoints without additional
// query parameters.
func (c *Client) doRequest(ctx context.Context, method, path string, impersonate ref.UserID, requestBody any, query ...url.Values) ([]byte, error) {
	values := url.Values{}
	if len(query) > 0 && query[0] != nil {
		values = query[0]
	}
	if !impersonate.IsZero() {
		values.Set("user_id", impersonate.String())
	}

	requestURL := c.baseURL + path
	if len(values) > 0 {
		requestURL += "?" + values.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to create request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Authorization", "Bearer "+c.asToken)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := httpx.ReadBody(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All Matrix error responses use the same JSON shape.
	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil {
		// Server returned non-JSON error. Should not happen with a
		// spec-compliant server — fail loud with the raw body.
		return nil, fmt.Errorf("messaging: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	matrixErr.StatusCode = response.StatusCode

	return responseBody, &matrixErr
}
