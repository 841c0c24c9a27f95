// Package rest is a small JSON REST client for the federation backend with
// bearer authentication and client-side rate limiting.
package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// DefaultTimeout bounds each request when no timeout option is given.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 64 << 10

// RequestIDHeader carries a per-request id for correlating server logs.
const RequestIDHeader = "X-Request-ID"

// Option configures a Client.
type Option func(*Client)

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit allows rps requests per second with the given burst. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient replaces the underlying HTTP client. WithTimeout is ignored
// when set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client implements types.RESTClient over net/http.
type Client struct {
	base    *url.URL
	token   string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates a client rooted at baseURL. Request paths are joined onto the
// base path.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrAPIBaseURLInvalid, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, types.ErrAPIBaseURLInvalid
	}
	c := &Client{
		base:    u,
		timeout: DefaultTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// Get implements types.RESTClient.
func (c *Client) Get(ctx context.Context, path string, opts types.RequestOptions) (*types.Response, error) {
	return c.Do(ctx, http.MethodGet, path, opts)
}

// Post implements types.RESTClient.
func (c *Client) Post(ctx context.Context, path string, opts types.RequestOptions) (*types.Response, error) {
	return c.Do(ctx, http.MethodPost, path, opts)
}

// Put implements types.RESTClient.
func (c *Client) Put(ctx context.Context, path string, opts types.RequestOptions) (*types.Response, error) {
	return c.Do(ctx, http.MethodPut, path, opts)
}

// Patch implements types.RESTClient.
func (c *Client) Patch(ctx context.Context, path string, opts types.RequestOptions) (*types.Response, error) {
	return c.Do(ctx, http.MethodPatch, path, opts)
}

// Delete implements types.RESTClient.
func (c *Client) Delete(ctx context.Context, path string, opts types.RequestOptions) (*types.Response, error) {
	return c.Do(ctx, http.MethodDelete, path, opts)
}

// Do sends one request. Non-2xx replies return *APIError.
func (c *Client) Do(ctx context.Context, method, path string, opts types.RequestOptions) (*types.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	var body io.Reader
	if opts.Data != nil {
		b, err := json.Marshal(opts.Data)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, opts.Params), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("path", path).Str("request_id", reqID).Msg("request failed")
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Method: method, Path: path, Err: err}
	}
	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Str("request_id", reqID).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, newAPIError(method, path, resp.StatusCode, data)
	}
	return &types.Response{Status: resp.StatusCode, Data: data}, nil
}

func (c *Client) resolve(path string, params map[string]string) string {
	u := *c.base
	if path != "" {
		u.Path = c.base.Path + "/" + strings.TrimLeft(path, "/")
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// NetworkError wraps a failure to reach the server or read its reply.
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UserMessage implements the user-facing message contract.
func (e *NetworkError) UserMessage() string {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return "the server took too long to respond"
	}
	return "network error, check your connection"
}

// APIError is a non-2xx reply. Detail and Message are taken from a JSON body
// of the form {"detail": ...} or {"message": ...} when present.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Detail  string
	Message string
	Body    []byte
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	e := &APIError{Method: method, Path: path, Status: status, Body: body}
	var parsed struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		e.Detail = detailText(parsed.Detail)
		e.Message = parsed.Message
	}
	return e
}

// detailText accepts a string detail or a list of {"msg": ...} objects.
func detailText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(raw, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.UserMessage())
}

// UserMessage returns the server's detail, then its message, then a generic
// text naming the status.
func (e *APIError) UserMessage() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Message != "":
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// UserMessage maps any error to text suitable for a notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "the server took too long to respond"
	}
	return err.Error()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

var _ types.RESTClient = (*Client)(nil)
