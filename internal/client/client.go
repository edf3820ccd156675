// Package client is the HTTP transport behind the runtime CLI. It sends one
// request per call with bearer authentication and decodes JSON replies.
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
)

const (
	defaultUserAgent = "apicli"
	defaultTimeout   = 30 * time.Second
)

// KV is an ordered name/value pair; repeated names are sent as repeated
// entries.
type KV struct {
	Name  string
	Value string
}

// Request describes one API call. Path is joined onto the client's base URL.
type Request struct {
	Method  string
	Path    string
	Query   []KV
	Headers []KV
	// Body is marshaled as JSON when non-nil.
	Body any
}

// Response carries the status and the decoded body: any JSON value, or the
// raw text as a string when the reply is not JSON.
type Response struct {
	Status int
	Body   any
}

type Client struct {
	baseURL   string
	token     string
	userAgent string
	timeout   time.Duration
	http      *http.Client
}

type Option func(*Client)

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// WithTimeout bounds each request. It applies to the client in place after
// all options ran, including one given through WithHTTPClient.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client; tests point it at httptest.
// The given client is copied, never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(baseURL, token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("client: base URL is empty")
	}
	c := &Client{
		baseURL:   baseURL,
		token:     token,
		userAgent: defaultUserAgent,
		http:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c, nil
}

// Execute sends req and returns the decoded reply. Non-2xx statuses are not
// errors; callers inspect Response.Status.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	u, err := buildURL(c.baseURL, req.Path)
	if err != nil {
		return nil, err
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for _, kv := range req.Query {
			q.Add(kv.Name, kv.Value)
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	// The first entry for a name replaces any default; later ones are added.
	seen := make(map[string]struct{}, len(req.Headers))
	for _, h := range req.Headers {
		key := http.CanonicalHeaderKey(h.Name)
		if _, ok := seen[key]; !ok {
			httpReq.Header.Del(key)
			seen[key] = struct{}{}
		}
		httpReq.Header.Add(key, h.Value)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{Status: resp.StatusCode, Body: decodeBody(raw)}, nil
}

func decodeBody(raw []byte) any {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil || dec.More() {
		return string(raw)
	}
	return v
}

// buildURL joins base and path with exactly one slash between them.
func buildURL(base, path string) (*url.URL, error) {
	full := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	u, err := url.Parse(full)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", full, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: missing scheme or host", full)
	}
	return u, nil
}
