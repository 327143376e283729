// Package rest is a thin JSON-over-HTTP helper for the ThorVision server API.
// It owns error classification: transport and payload failures surface as
// *ConnectivityError, while responses the server actually produced with a
// non-2xx status surface as *StatusError so callers can map rejections to
// operation-specific errors.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ConnectivityError reports that the server was unreachable or returned a
// payload the client could not decode.
type ConnectivityError struct {
	URL string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("thorvision server unreachable or malformed response (%s): %v", e.URL, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// StatusError reports a well-formed non-2xx response. Body carries the raw
// response text (truncated) for diagnostics.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("thorvision server rejected request (%s): status %d: %s", e.URL, e.Status, e.Body)
}

// NotFound reports whether the server answered 404 or a "not found" style
// message body. Stop-stream teardown treats this as success.
func (e *StatusError) NotFound() bool {
	return e.Status == http.StatusNotFound || strings.Contains(strings.ToLower(e.Body), "not found")
}

const maxErrBody = 512

// Client issues JSON requests against a single base URL.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New returns a client for the given base URL, e.g. "http://192.168.177.100:8000".
// A nil logger disables logging; a nil httpClient uses http.DefaultClient
// (timeouts are the transport's responsibility).
func New(baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     log.Named("rest"),
	}
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// GetJSON issues GET <base><path> and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &ConnectivityError{URL: c.baseURL + path, Err: err}
	}
	return c.do(req, out)
}

// PostJSON issues POST <base><path> with a JSON-encoded body and, when out is
// non-nil, decodes the response body into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &ConnectivityError{URL: c.baseURL + path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &ConnectivityError{URL: c.baseURL + path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	url := req.URL.String()

	resp, err := c.http.Do(req)
	if err != nil {
		return &ConnectivityError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		serr := &StatusError{URL: url, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		c.log.Debug("request rejected", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return serr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ConnectivityError{URL: url, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
