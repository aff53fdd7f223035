// Package httpclient is the outbound HTTP client used by the auth flow and the
// session guard. Each Client owns its own default headers, so credentials are
// attached per session rather than through process-wide state.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

// StatusError carries the status and a bounded slice of the body of a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

const maxErrorBody = 4 << 10

// Client issues requests relative to an optional base URL and stamps every
// request with its default headers.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL

	mu      sync.RWMutex
	headers http.Header
}

// New wraps httpClient. baseURL may be empty; relative request URLs are then
// sent as given.
func New(httpClient *http.Client, baseURL string) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	c := &Client{httpClient: httpClient, headers: make(http.Header)}
	if baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		c.baseURL = u
	}
	return c, nil
}

// NoRedirect returns a copy of httpClient that hands 3xx responses back to
// the caller instead of following them.
func NoRedirect(httpClient *http.Client) *http.Client {
	cp := *httpClient
	cp.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &cp
}

// HTTPClient exposes the wrapped client for libraries that take one directly.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// SetHeader sets a default header sent with every later request.
func (c *Client) SetHeader(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Set(name, value)
}

// ClearHeader removes a default header.
func (c *Client) ClearHeader(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers.Del(name)
}

// Header returns the current default value of name.
func (c *Client) Header(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.headers.Get(name)
}

// RequestOption adjusts a single request after default headers are applied.
type RequestOption func(*http.Request)

// WithHeader overrides a header for one request only.
func WithHeader(name, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(name, value)
	}
}

func (c *Client) resolve(rawURL string) (string, error) {
	if c.baseURL == nil {
		return rawURL, nil
	}
	ref, err := url.Parse(strings.TrimPrefix(rawURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if ref.IsAbs() {
		return rawURL, nil
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

// NewRequest builds a request carrying a snapshot of the default headers.
func (c *Client) NewRequest(ctx context.Context, method, rawURL string, body io.Reader, opts ...RequestOption) (*http.Request, error) {
	target, err := c.resolve(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	c.mu.RLock()
	for name, values := range c.headers {
		req.Header[name] = append([]string(nil), values...)
	}
	c.mu.RUnlock()

	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	return req, nil
}

// Do sends req and decodes a 2xx JSON body into out when out is non-nil.
func (c *Client) Do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any, opts ...RequestOption) error {
	req, err := c.NewRequest(ctx, http.MethodGet, rawURL, nil, opts...)
	if err != nil {
		return err
	}
	return c.Do(req, out)
}

// PostForm issues a form-encoded POST and decodes the JSON response into out.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, out any, opts ...RequestOption) error {
	req, err := c.NewRequest(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), opts...)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Do(req, out)
}
