// Package tms implements the client for the TMS identity/token HTTP service
// consumed by the first two provisioning stages.
package tms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"context"

	"github.com/sistema-id/smarttoken-provisioning/interfaces"
)

const (
	createUserPath  = "/tms/user/create"
	assignTokenPath = "/tms/token/assign"
)

// NetworkError reports a failed TMS call: transport failure, non-200
// response, or unusable body. These are recoverable; the user retries the
// action.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tms %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("tms %s: endpoint returned non-200 response: %d", e.Op, e.StatusCode)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Client talks to the TMS service.
type Client struct {
	// BaseURL is the server base, e.g. https://sistemadev.com.
	BaseURL string

	// HTTPClient overrides http.DefaultClient when set.
	HTTPClient *http.Client

	Log *slog.Logger
}

// NewClient creates a TMS client for the given base URL.
func NewClient(baseURL string, log *slog.Logger) *Client {
	return &Client{BaseURL: baseURL, Log: log}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("tms %s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tms %s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Log.Debug("TMS response failed", "op", op, "code", resp.StatusCode)
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if len(respBody) == 0 {
		return nil, &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("empty response body")}
	}
	return respBody, nil
}

// CreateUser registers the user with TMS and returns the assigned user id.
// Failures yield an empty id; the caller stays in its current stage and may
// retry.
func (c *Client) CreateUser(ctx context.Context, req interfaces.UserRequest) (string, error) {
	respBody, err := c.post(ctx, "user create", createUserPath, req)
	if err != nil {
		return "", err
	}

	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &NetworkError{Op: "user create", StatusCode: http.StatusOK, Err: fmt.Errorf("parse response: %w", err)}
	}
	if parsed.ID == "" {
		return "", &NetworkError{Op: "user create", StatusCode: http.StatusOK, Err: fmt.Errorf("response missing user id")}
	}

	c.Log.Debug("TMS user created", "id", parsed.ID)
	return parsed.ID, nil
}

// AssignToken requests a token assignment for the user. Failures yield a nil
// assignment; the caller surfaces a null-valued token record and may retry.
func (c *Client) AssignToken(ctx context.Context, req interfaces.TokenRequest) (*interfaces.TokenAssignment, error) {
	respBody, err := c.post(ctx, "token assign", assignTokenPath, req)
	if err != nil {
		return nil, err
	}

	var parsed interfaces.TokenAssignment
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &NetworkError{Op: "token assign", StatusCode: http.StatusOK, Err: fmt.Errorf("parse response: %w", err)}
	}

	c.Log.Debug("TMS token assigned", "token", parsed.Token)
	return &parsed, nil
}
