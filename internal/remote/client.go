// Package remote is the terminal client's connection to a board server.
// It implements the engine's persistence interface over the JSON API and
// follows a board's event stream.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/h0rv/kanban/internal/api"
	"github.com/h0rv/kanban/internal/domain"
)

// Client talks to one board server as one user.
type Client struct {
	baseURL  string
	user     string
	clientID string
	http     *http.Client
	stream   *http.Client
	log      *slog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for API calls. Event streams share its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClientID fixes the id this client reports as the origin of its mutations.
func WithClientID(id string) Option {
	return func(c *Client) { c.clientID = id }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithBackoff sets the reconnect delay bounds for event streams.
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(c *Client) { c.minBackoff, c.maxBackoff = minDelay, maxDelay }
}

// New creates a client for the server at baseURL acting as user.
func New(baseURL, user string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		user:       user,
		clientID:   uuid.NewString(),
		http:       &http.Client{Timeout: 15 * time.Second},
		log:        slog.New(slog.DiscardHandler),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	// Streams stay open indefinitely, so they must not inherit a timeout.
	c.stream = &http.Client{Transport: c.http.Transport}
	return c
}

// User returns the user id the client acts as.
func (c *Client) User() string { return c.user }

// ClientID returns the id sent with every mutation.
func (c *Client) ClientID() string { return c.clientID }

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(api.HeaderUserID, c.user)
	req.Header.Set(api.HeaderClientID, c.clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// makeRequest sends in as JSON and decodes the response into out.
// Failures come back as domain errors so the engine can classify them.
func (c *Client) makeRequest(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w: %w", method, path, domain.ErrTransient, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body api.ErrorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}

	switch body.Code {
	case api.CodePolicyRejected:
		return &domain.PolicyError{Reason: body.Reason}
	case api.CodeStale:
		return fmt.Errorf("%w (%s)", domain.ErrStale, msg)
	case api.CodeNotFound:
		return fmt.Errorf("%w (%s)", domain.ErrNotFound, msg)
	case api.CodeInvalid:
		return fmt.Errorf("%w (%s)", domain.ErrInvalid, msg)
	case api.CodeUnauthorized:
		return fmt.Errorf("%w (%s)", domain.ErrUnauthorized, msg)
	case api.CodeForbidden:
		return fmt.Errorf("%w (%s)", domain.ErrForbidden, msg)
	}

	switch resp.StatusCode {
	case http.StatusConflict:
		return fmt.Errorf("%w (%s)", domain.ErrStale, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w (%s)", domain.ErrNotFound, msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w (%s)", domain.ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w (%s)", domain.ErrForbidden, msg)
	}
	return fmt.Errorf("server: %s: %w", msg, domain.ErrTransient)
}

// permanent reports whether retrying a request can never succeed.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrNotFound)
}
