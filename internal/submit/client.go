// Package submit sends finished orders to the shop backend.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"shop-miniapp/internal/model"
)

// ordersPath is the backend order intake endpoint.
const ordersPath = "/api/client/orders"

// maxErrorBody caps how much of a non-JSON error body is shown to the user.
const maxErrorBody = 200

// maxResponseBody caps how much of any backend reply is read.
const maxResponseBody = 64 << 10

// Client posts orders to the backend. It implements checkout.Submitter.
//
// Each Submit is exactly one POST. There are no retries: a retried order the
// backend already accepted would be placed twice.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a client for the backend at baseURL.
// apiKey is sent as X-Api-Key when non-empty.
func NewClient(httpClient *http.Client, baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
	}, nil
}

// errorResponse is the backend's error body.
type errorResponse struct {
	Error string `json:"error"`
}

// Submit posts order. It returns nil on any 2xx, whatever the body.
//
// Failures are *model.APIError:
//   - NETWORK_ERROR: transport failure, timeout or cancellation
//   - VALIDATION_ERROR: 400, or another 4xx with an {"error": ...} body
//   - SERVER_ERROR: every other non-2xx
func (c *Client) Submit(ctx context.Context, order *model.Order) error {
	if order == nil {
		return model.NewValidationError("order", "order is required")
	}

	payload, err := json.Marshal(order)
	if err != nil {
		return model.NewInternalError(fmt.Errorf("marshaling order: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ordersPath, bytes.NewReader(payload))
	if err != nil {
		return model.NewInternalError(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewNetworkError("order backend", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// The order is placed once the status is 2xx. A long or broken
		// body after that does not undo it.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return model.NewNetworkError("order backend", err)
	}
	return parseErrorResponse(resp.StatusCode, body)
}

// parseErrorResponse converts a non-2xx backend reply to an APIError.
func parseErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	parsed := json.Unmarshal(body, &errResp) == nil && strings.TrimSpace(errResp.Error) != ""

	if statusCode == http.StatusBadRequest || (parsed && statusCode >= 400 && statusCode < 500) {
		msg := "order rejected"
		if parsed {
			msg = strings.TrimSpace(errResp.Error)
		}
		return model.NewRejectedError(msg)
	}

	if parsed {
		return model.NewServerError(statusCode, strings.TrimSpace(errResp.Error))
	}
	return model.NewServerError(statusCode, truncate(strings.TrimSpace(string(body)), maxErrorBody))
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
