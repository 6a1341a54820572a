// Package client provides a Go client for the fhevmkit server API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client is an fhevmkit server API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. Long polls through WaitState
// need a client timeout above the wait duration.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new fhevmkit client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// State is the server's view of its bound instance
type State struct {
	Status   string    `json:"status"`
	Enabled  bool      `json:"enabled"`
	Endpoint string    `json:"endpoint,omitempty"`
	ChainID  *int64    `json:"chainId,omitempty"`
	Instance *Instance `json:"instance,omitempty"`
	Error    *APIError `json:"error,omitempty"`
}

// Ready reports whether an instance is available
func (s *State) Ready() bool {
	return s.Status == "ready" && s.Instance != nil
}

// Instance describes a ready instance
type Instance struct {
	Path            string `json:"path"`
	ChainID         int64  `json:"chainId,omitempty"`
	RPCURL          string `json:"rpcUrl,omitempty"`
	ACLAddress      string `json:"aclAddress,omitempty"`
	PublicKeyLength int    `json:"publicKeyLength"`
}

// ConfigRequest changes the bound endpoint. Nil fields are left unchanged;
// an empty RPCURL clears the endpoint.
type ConfigRequest struct {
	RPCURL  *string `json:"rpcUrl,omitempty"`
	ChainID *int64  `json:"chainId,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// Health is the response of the health endpoints
type Health struct {
	Status   string `json:"status"`
	Instance string `json:"instance,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Health checks the server's readiness endpoint
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.do(ctx, http.MethodGet, "/readyz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// State returns the current binding state
func (c *Client) State(ctx context.Context) (*State, error) {
	var resp State
	if err := c.do(ctx, http.MethodGet, "/api/v1/instance", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitState returns the binding state once it leaves loading, or after wait
// elapses. The server caps wait at one minute.
func (c *Client) WaitState(ctx context.Context, wait time.Duration) (*State, error) {
	var resp State
	path := "/api/v1/instance?wait=" + url.QueryEscape(wait.String())
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh asks the server to rebuild its instance
func (c *Client) Refresh(ctx context.Context) (*State, error) {
	var resp State
	if err := c.do(ctx, http.MethodPost, "/api/v1/instance/refresh", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Configure changes the endpoint the server binds to
func (c *Client) Configure(ctx context.Context, req ConfigRequest) (*State, error) {
	var resp State
	if err := c.do(ctx, http.MethodPut, "/api/v1/instance/config", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return &errResp.Error
}
