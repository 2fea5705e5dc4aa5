// Package backend talks to the interview backend's session API. It creates
// the session record for one interview attempt and derives the address of
// the duplex channel for that session.
package backend

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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/intervox/internal/observe"
)

// SessionPath is the collection path for interview sessions. The duplex
// channel for a session lives at SessionPath + "/" + id.
const SessionPath = "/api/v1/interview/session"

// ErrCannotStart is returned when no session could be created. An attempt
// that sees it must not open a channel.
var ErrCannotStart = errors.New("backend: cannot start interview")

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 512

// CreateRequest is the session creation body.
type CreateRequest struct {
	SubjectID string `json:"ats_analysis_id"`
	UserID    string `json:"user_id"`
}

// CreateResponse is the session creation reply.
type CreateResponse struct {
	SessionID string `json:"session_id"`
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. Default: a client with a 15s
// timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records bootstrap latency into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithHeader adds a header to every request, e.g. an identity token.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Add(key, value) }
}

// Client is a session API client. It is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	header  http.Header
	metrics *observe.Metrics
}

// New returns a client for the backend at baseURL. The scheme must be http
// or https.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend: base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend: base url %q: missing host", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: 15 * time.Second},
		header: make(http.Header),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// CreateSession allocates a session for subjectID and userID and returns its
// id. Every failure wraps [ErrCannotStart].
func (c *Client) CreateSession(ctx context.Context, subjectID, userID string) (id string, err error) {
	ctx, span := observe.StartSpan(ctx, "backend.CreateSession")
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.BootstrapDuration.Record(ctx, time.Since(start).Seconds())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String(observe.SessionAttr, id))
		}
		span.End()
	}()

	body, err := json.Marshal(CreateRequest{SubjectID: subjectID, UserID: userID})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", ErrCannotStart, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath(SessionPath).String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrCannotStart, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCannotStart, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%w: status %d: %s", ErrCannotStart, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrCannotStart, err)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("%w: response carried no session id", ErrCannotStart)
	}
	return out.SessionID, nil
}

// ChannelURL returns the duplex channel address for a session. The scheme
// mirrors the base URL: http becomes ws and https becomes wss.
func (c *Client) ChannelURL(sessionID, userID string) (string, error) {
	if sessionID == "" {
		return "", errors.New("backend: channel url: empty session id")
	}
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u = *u.JoinPath(SessionPath, sessionID)
	q := url.Values{}
	q.Set("user_id", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
