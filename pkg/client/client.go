// Package client is a Go client for the mock server admin API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/getmockd/mockserver/pkg/engine"
	"github.com/getmockd/mockserver/pkg/engine/api"
	"github.com/getmockd/mockserver/pkg/mock"
	"github.com/getmockd/mockserver/pkg/recorder"
)

// DefaultTimeout is the HTTP timeout of a new Client.
const DefaultTimeout = 30 * time.Second

// ErrorCodeConnection is the APIError code used when the admin API cannot
// be reached.
const ErrorCodeConnection = "connection_error"

// APIError represents an error response from the admin API.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Is maps admin API error codes back to the engine's sentinel errors, so
// callers can use errors.Is(err, engine.ErrDuplicateName) remotely.
func (e *APIError) Is(target error) bool {
	switch e.ErrorCode {
	case "duplicate_name":
		return target == engine.ErrDuplicateName
	case "not_found":
		return target == engine.ErrNotFound
	case "invalid_port":
		return target == engine.ErrInvalidPort
	case "invalid_definition":
		return target == engine.ErrInvalidDefinition
	case "listener_bind_failure":
		return target == engine.ErrListenerBindFailure
	case "not_running":
		return target == engine.ErrServerNotRunning
	}
	return false
}

// IsConnectionError reports whether err means the admin API was unreachable.
func IsConnectionError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == ErrorCodeConnection
}

// Client talks to the admin API over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout for the client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client for the admin API at baseURL, e.g.
// "http://127.0.0.1:4290". A missing scheme defaults to http.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the admin API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health returns the server health.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddMock registers def and returns the definition as registered.
func (c *Client) AddMock(ctx context.Context, def *mock.Definition) (*mock.Definition, error) {
	var out mock.Definition
	if err := c.do(ctx, http.MethodPost, "/mocks", def, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveMock unregisters the named mock and returns its events, which are
// empty when skipReport is set.
func (c *Client) RemoveMock(ctx context.Context, name string, skipReport bool) ([]recorder.Event, error) {
	path := "/mocks/" + url.PathEscape(name)
	if skipReport {
		path += "?skipReport=true"
	}
	var out api.RemoveMockResponse
	if err := c.do(ctx, http.MethodDelete, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// ListMocks returns the registered mocks in registration order.
func (c *Client) ListMocks(ctx context.Context) ([]*mock.Definition, error) {
	var out api.MockListResponse
	if err := c.do(ctx, http.MethodGet, "/mocks", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Mocks, nil
}

// GetMock returns the named mock.
func (c *Client) GetMock(ctx context.Context, name string) (*mock.Definition, error) {
	var out mock.Definition
	if err := c.do(ctx, http.MethodGet, "/mocks/"+url.PathEscape(name), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PeekMocks returns the recorded events of every mock.
func (c *Client) PeekMocks(ctx context.Context) (map[string][]recorder.Event, error) {
	var out api.PeekResponse
	if err := c.do(ctx, http.MethodGet, "/events", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Mocks, nil
}

// PeekMock returns the recorded events of one mock.
func (c *Client) PeekMock(ctx context.Context, name string) ([]recorder.Event, error) {
	var out api.MockEventsResponse
	if err := c.do(ctx, http.MethodGet, "/mocks/"+url.PathEscape(name)+"/events", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// do sends a request with an optional JSON body and decodes a response
// with status want into out.
func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{
			ErrorCode: ErrorCodeConnection,
			Message:   fmt.Sprintf("cannot connect to admin API at %s: %v", c.baseURL, err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		return parseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// parseError parses an error response from the API.
func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorCode:  errResp.Error,
			Message:    errResp.Message,
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		ErrorCode:  "unknown_error",
		Message:    fmt.Sprintf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
	}
}
